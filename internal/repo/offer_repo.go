// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Offer
// model, including the conditional transitions that enforce the offer state
// machine under concurrent callers.
//
// Every status change here is a single conditional UPDATE guarded by the
// expected prior state (optimistic concurrency). The accept transition is the
// only place that may also touch sibling offers, and only when the service
// layer opts into sibling auto-rejection.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// CreateOffer inserts a new pending Offer against a request.
func CreateOffer(ctx context.Context, db *gorm.DB, o *domain.Offer) (*domain.Offer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OfferStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOffer fetches an offer by ID, or ErrNotFound.
func GetOffer(ctx context.Context, db *gorm.DB, id string) (*domain.Offer, error) {
	var o domain.Offer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOffersByRequest returns all offers on a request, newest first.
func ListOffersByRequest(ctx context.Context, db *gorm.DB, requestID string) ([]domain.Offer, error) {
	var out []domain.Offer
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// AcceptOffer performs the compare-and-swap pending → accepted, flips
// contact_unlocked, and denormalizes the buyer onto the offer. The extra
// NOT EXISTS guard keeps two concurrent accepts on different sibling offers
// from both succeeding: the losing UPDATE sees an accepted sibling and
// affects zero rows (ErrStaleState).
func AcceptOffer(ctx context.Context, db *gorm.DB, id, buyerID string) error {
	res := db.WithContext(ctx).Exec(`
		UPDATE offers
		SET status = ?, contact_unlocked = ?, buyer_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
		  AND NOT EXISTS (
		      SELECT 1 FROM offers sib
		      WHERE sib.request_id = offers.request_id AND sib.status = ?
		  )`,
		domain.OfferStatusAccepted, true, buyerID, time.Now().UTC(),
		id, domain.OfferStatusPending,
		domain.OfferStatusAccepted,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// RejectOffer performs the compare-and-swap pending → rejected.
func RejectOffer(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id = ? AND status = ?", id, domain.OfferStatusPending).
		Updates(map[string]any{"status": domain.OfferStatusRejected, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// RejectPendingSiblings moves every still-pending sibling of acceptedID on
// requestID to rejected. Used only when sibling auto-rejection is enabled;
// affecting zero rows is not an error (there may be no siblings).
func RejectPendingSiblings(ctx context.Context, db *gorm.DB, requestID, acceptedID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ? AND id <> ? AND status = ?", requestID, acceptedID, domain.OfferStatusPending).
		Updates(map[string]any{"status": domain.OfferStatusRejected, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ExpirePendingBefore sweeps pending offers created before cutoff to expired
// and returns how many rows were affected.
func ExpirePendingBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("status = ? AND created_at < ?", domain.OfferStatusPending, cutoff).
		Updates(map[string]any{"status": domain.OfferStatusExpired, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// CompleteOffer flips transaction_completed on an accepted, contact-unlocked
// offer and stamps the completion time. The guard on both flags keeps the
// completion invariant (completed ⇒ unlocked ⇒ accepted) intact even if
// callers race.
func CompleteOffer(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id = ? AND status = ? AND contact_unlocked = ? AND transaction_completed = ?",
			id, domain.OfferStatusAccepted, true, false).
		Updates(map[string]any{
			"transaction_completed": true,
			"completed_at":          at,
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// UnlockOfferContact flips contact_unlocked on an accepted offer. Kept as an
// independent transition so a payment-gated unlock can be composed in front
// of it without reshaping the state machine. Idempotent unlocks (already
// true) affect zero rows and surface as ErrStaleState for the caller to
// interpret.
func UnlockOfferContact(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id = ? AND status = ? AND contact_unlocked = ?", id, domain.OfferStatusAccepted, false).
		Updates(map[string]any{"contact_unlocked": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}
