// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the PartRequest
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD,
// window queries, and conditional status transitions.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional transitions that affect zero rows return ErrStaleState so
//     the service layer can surface a state conflict without re-reading.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleState is returned by conditional transition updates when the row's
// current status no longer matches the expected prior status. Callers must
// treat it as a state conflict, not retry blindly.
var ErrStaleState = errors.New("stale state")

// CreateRequest inserts a new PartRequest in status pending. The ID is a
// randomly generated UUID and CreatedAt is set to UTC.
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.PartRequest) (*domain.PartRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.RequestStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a request by ID, or ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.PartRequest, error) {
	var r domain.PartRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequestOwned fetches a request by ID ensuring it belongs to buyerID.
// Missing and not-owned are indistinguishable to the caller (ErrNotFound),
// so ownership is never leaked through error shape.
func GetRequestOwned(ctx context.Context, db *gorm.DB, id, buyerID string) (*domain.PartRequest, error) {
	var r domain.PartRequest
	err := db.WithContext(ctx).
		Where("id = ? AND buyer_id = ?", id, buyerID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRequests returns the total number of requests owned by buyerID.
func CountRequests(ctx context.Context, db *gorm.DB, buyerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("buyer_id = ?", buyerID).
		Count(&total).Error
	return total, err
}

// ListRequestsPage returns a paginated slice of requests for buyerID, ordered
// by creation time descending. The caller computes offset and limit.
func ListRequestsPage(ctx context.Context, db *gorm.DB, buyerID string, offset, limit int) ([]domain.PartRequest, error) {
	var out []domain.PartRequest
	err := db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TransitionRequest performs the atomic conditional status update
// from → to for the given request. Exactly this single UPDATE enforces the
// forward-only lifecycle under concurrent callers: zero affected rows means
// the request is missing or its status moved, and ErrStaleState is returned.
func TransitionRequest(ctx context.Context, db *gorm.DB, id, from, to string) error {
	res := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// CancelRequest moves an owned, non-terminal request to cancelled.
// Completed and already-cancelled requests are left untouched (ErrStaleState).
func CancelRequest(ctx context.Context, db *gorm.DB, id, buyerID string) error {
	res := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("id = ? AND buyer_id = ? AND status NOT IN ?",
			id, buyerID,
			[]string{domain.RequestStatusCompleted, domain.RequestStatusCancelled}).
		Updates(map[string]any{"status": domain.RequestStatusCancelled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// FindDuplicateRequest reports whether a non-completed request with the same
// phone, make, model, and canonical part name was created at or after since.
// Cancelled and completed rows do not block resubmission.
func FindDuplicateRequest(ctx context.Context, db *gorm.DB, phone, mk, mdl, partCanon string, since time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("phone = ? AND make = ? AND model = ? AND part_name_canon = ?", phone, mk, mdl, partCanon).
		Where("status NOT IN ?", []string{domain.RequestStatusCompleted, domain.RequestStatusCancelled}).
		Where("created_at >= ?", since).
		Count(&n).Error
	return n > 0, err
}

// CountRequestsByPhoneSince returns how many requests the phone produced at
// or after since, regardless of status. Rate windows are computed from
// creation timestamps at evaluation time; no counters are persisted.
func CountRequestsByPhoneSince(ctx context.Context, db *gorm.DB, phone string, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("phone = ? AND created_at >= ?", phone, since).
		Count(&n).Error
	return n, err
}

// CountRequestsByBuyerSince returns how many requests the account produced at
// or after since, regardless of status.
func CountRequestsByBuyerSince(ctx context.Context, db *gorm.DB, buyerID string, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PartRequest{}).
		Where("buyer_id = ? AND created_at >= ?", buyerID, since).
		Count(&n).Error
	return n, err
}
