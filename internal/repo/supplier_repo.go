// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SupplierProfile model used by new-request fan-out targeting.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// CreateSupplierProfile inserts a supplier profile. One profile per user
// account; a second insert returns ErrDuplicate.
func CreateSupplierProfile(ctx context.Context, db *gorm.DB, p *domain.SupplierProfile) (*domain.SupplierProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Channel == "" {
		p.Channel = domain.ChannelWhatsApp
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetSupplierByUser fetches the profile for a seller account, or ErrNotFound.
func GetSupplierByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.SupplierProfile, error) {
	var p domain.SupplierProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListSuppliers returns every supplier profile. Fan-out targeting filters the
// result in memory; the supplier population is small enough that pushing the
// substring match into SQL is not worth the coupling.
func ListSuppliers(ctx context.Context, db *gorm.DB) ([]domain.SupplierProfile, error) {
	var out []domain.SupplierProfile
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}
