// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Review
// model and the derived rating-eligibility query.
//
// Rating eligibility is computed on read, never materialized: the set of
// (offer, buyer, seller) tuples owing a rating is exactly the completed
// offers for the buyer minus the offers that buyer already reviewed.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// PendingRating is one (offer, seller) pair still owed a rating by a buyer.
type PendingRating struct {
	OfferID     string    `json:"offer_id"`
	SellerID    string    `json:"seller_id"`
	SellerName  string    `json:"seller_name"`
	CompletedAt time.Time `json:"completed_at"`
}

// CreateReview inserts a review row. The (offer_id, reviewer_id) pair must be
// unique; a second submission returns ErrDuplicate, never an overwrite.
func CreateReview(ctx context.Context, db *gorm.DB, offerID, reviewerID, sellerID string, rating int, comment string) (*domain.Review, error) {
	rev := &domain.Review{
		ID:         uuid.NewString(),
		OfferID:    offerID,
		ReviewerID: reviewerID,
		SellerID:   sellerID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rev).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rev, nil
}

// HasReview reports whether reviewerID already reviewed offerID.
func HasReview(ctx context.Context, db *gorm.DB, offerID, reviewerID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("offer_id = ? AND reviewer_id = ?", offerID, reviewerID).
		Count(&n).Error
	return n > 0, err
}

// ListPendingRatings selects the buyer's completed offers that have no review
// authored by that buyer yet, newest completion first. Seller names come from
// supplier profiles; sellers without a profile fall back to their user id.
func ListPendingRatings(ctx context.Context, db *gorm.DB, buyerID string) ([]PendingRating, error) {
	var out []PendingRating
	err := db.WithContext(ctx).Raw(`
		SELECT o.id AS offer_id,
		       o.seller_id AS seller_id,
		       COALESCE(sp.name, o.seller_id) AS seller_name,
		       o.completed_at AS completed_at
		FROM offers o
		LEFT JOIN supplier_profiles sp ON sp.user_id = o.seller_id
		WHERE o.transaction_completed = ?
		  AND o.buyer_id = ?
		  AND NOT EXISTS (
		      SELECT 1 FROM reviews r
		      WHERE r.offer_id = o.id AND r.reviewer_id = ?
		  )
		ORDER BY o.completed_at DESC`,
		true, buyerID, buyerID,
	).Scan(&out).Error
	return out, err
}
