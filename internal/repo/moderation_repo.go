// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ModerationRecord model.
//
// Moderation records are write-once: the unique index on request_id enforces
// at most one automated adjudication per request, and there is deliberately
// no update function.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// ErrDuplicate indicates that a uniquely-constrained record already exists.
var ErrDuplicate = errors.New("duplicate")

// CreateModerationRecord inserts the single automated adjudication outcome
// for a request. Returns ErrDuplicate when a record already exists.
func CreateModerationRecord(ctx context.Context, db *gorm.DB, requestID, decision string, confidence float64, rationale string) (*domain.ModerationRecord, error) {
	rec := &domain.ModerationRecord{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Decision:   decision,
		Confidence: confidence,
		Rationale:  rationale,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// GetModerationRecord fetches the adjudication outcome for a request, or
// ErrNotFound when the request was never adjudicated.
func GetModerationRecord(ctx context.Context, db *gorm.DB, requestID string) (*domain.ModerationRecord, error) {
	var rec domain.ModerationRecord
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListHeldRequests returns requests still pending whose adjudication landed
// on needs_human_review, oldest first, for the admin review queue.
func ListHeldRequests(ctx context.Context, db *gorm.DB, limit int) ([]domain.PartRequest, error) {
	var out []domain.PartRequest
	q := db.WithContext(ctx).
		Joins("JOIN moderation_records mr ON mr.request_id = part_requests.id").
		Where("mr.decision = ? AND part_requests.status = ?",
			domain.DecisionNeedsReview, domain.RequestStatusPending).
		Order("part_requests.created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// isUniqueViolation detects unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
