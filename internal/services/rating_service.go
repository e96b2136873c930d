// Package services – RatingService
//
// RatingService lets buyers rate sellers after a completed transaction. A
// transaction becomes ratable the moment its offer is marked complete, and
// each buyer rates a given offer at most once.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/repo"
)

// RatingService reads and records seller reviews.
type RatingService struct {
	DB *gorm.DB
}

// Pending lists the buyer's completed, not-yet-rated transactions, newest
// completion first.
func (s *RatingService) Pending(ctx context.Context, buyerID string) ([]repo.PendingRating, error) {
	return repo.ListPendingRatings(ctx, s.DB, buyerID)
}

// Submit records a 1-5 star review of the offer's seller by the buyer who
// completed the transaction. Duplicate submissions return
// ErrDuplicateRating; offers whose transaction never completed return
// ErrNotRatable.
func (s *RatingService) Submit(ctx context.Context, reviewerID, offerID string, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	offer, err := repo.GetOffer(ctx, s.DB, offerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	if offer.BuyerID != reviewerID {
		return nil, ErrOfferNotFound
	}
	if !offer.TransactionCompleted {
		return nil, ErrNotRatable
	}
	// The unique index still backstops concurrent submissions.
	if done, err := repo.HasReview(ctx, s.DB, offerID, reviewerID); err != nil {
		return nil, err
	} else if done {
		return nil, ErrDuplicateRating
	}

	rev, err := repo.CreateReview(ctx, s.DB, offerID, reviewerID, offer.SellerID, rating, comment)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateRating
		}
		return nil, err
	}
	return rev, nil
}
