// Package services – OfferService
//
// OfferService owns the offer side of the marketplace: sellers bid on
// published requests, buyers accept or reject, contact details unlock, and
// the transaction completes. Every transition hinges on a conditional UPDATE
// in the repo layer, so two racing callers cannot both win; the optional
// Redis lock merely shortens the race before acceptance.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/lock"
	"github.com/partline/go-parts-backend/internal/notify"
	"github.com/partline/go-parts-backend/internal/repo"
)

// MakeOfferInput carries the seller-supplied fields of a new offer.
type MakeOfferInput struct {
	Price   float64
	Message string
}

// OfferService coordinates the offer lifecycle against a single request.
type OfferService struct {
	DB         *gorm.DB
	Dispatcher *notify.Dispatcher
	Lock       *lock.AcceptLock

	// AutoRejectSiblings rejects remaining pending offers when one is
	// accepted. Off by default: sellers keep standing offers in case the
	// accepted deal falls through.
	AutoRejectSiblings bool
	// OfferTTL is the age past which ExpirePending sweeps pending offers.
	OfferTTL time.Duration
}

// Make records a seller's offer against an open request and notifies the
// buyer. Sellers cannot bid on their own requests, and closed requests
// (contact unlocked, completed, cancelled) take no further offers.
func (s *OfferService) Make(ctx context.Context, sellerID, requestID string, in MakeOfferInput) (*domain.Offer, error) {
	if in.Price <= 0 {
		return nil, invalidf("price", "must be positive")
	}

	req, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.BuyerID == sellerID {
		return nil, ErrOwnRequestOffer
	}
	switch req.Status {
	case domain.RequestStatusPending, domain.RequestStatusOfferReceived:
	default:
		return nil, ErrStateConflict
	}

	offer := &domain.Offer{
		RequestID: requestID,
		SellerID:  sellerID,
		Price:     in.Price,
		Message:   in.Message,
		Status:    domain.OfferStatusPending,
	}
	if _, err := repo.CreateOffer(ctx, s.DB, offer); err != nil {
		return nil, err
	}

	s.notifyBuyer(ctx, req, fmt.Sprintf("New offer on your %s request: %.2f", req.PartName, in.Price))
	return offer, nil
}

// List returns all offers on a request visible to the caller. The buyer sees
// all offers; a seller sees the request's offers too, matching the
// marketplace's open-bidding model.
func (s *OfferService) List(ctx context.Context, requestID string) ([]domain.Offer, error) {
	if _, err := repo.GetRequest(ctx, s.DB, requestID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return repo.ListOffersByRequest(ctx, s.DB, requestID)
}

// Accept marks the offer accepted for the request's buyer. At most one offer
// per request can ever reach accepted; a second acceptance attempt, however
// interleaved, returns ErrStateConflict. Both parties are notified with each
// other's contact details.
func (s *OfferService) Accept(ctx context.Context, buyerID, offerID string) (*domain.Offer, error) {
	tr := otel.Tracer("services/OfferService")
	ctx, span := tr.Start(ctx, "Accept",
		trace.WithAttributes(attribute.String("offer.id", offerID)),
	)
	defer span.End()

	offer, req, err := s.offerForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	ok, err := s.Lock.Acquire(ctx, offer.RequestID, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStateConflict
	}
	defer func() { _ = s.Lock.Release(ctx, offer.RequestID, token) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.AcceptOffer(ctx, tx, offerID, buyerID); err != nil {
			return err
		}
		// A request already past pending (second offer accepted after the
		// first unlocked) would fail this guard, and AcceptOffer's sibling
		// check fails first anyway.
		if err := repo.TransitionRequest(ctx, tx, offer.RequestID,
			domain.RequestStatusPending, domain.RequestStatusOfferReceived); err != nil {
			return err
		}
		if s.AutoRejectSiblings {
			if _, err := repo.RejectPendingSiblings(ctx, tx, offer.RequestID, offerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return nil, ErrStateConflict
		}
		return nil, err
	}

	offer, err = repo.GetOffer(ctx, s.DB, offerID)
	if err != nil {
		return nil, err
	}

	s.notifyBuyer(ctx, req,
		fmt.Sprintf("Offer accepted. Seller contact for %s will follow once unlocked.", req.PartName))
	s.notifySeller(ctx, offer.SellerID,
		fmt.Sprintf("Your offer of %.2f on %s %s %s was accepted.", offer.Price, req.Make, req.Model, req.PartName))
	return offer, nil
}

// Reject marks a pending offer rejected. Only the request's buyer may
// reject, and the request itself does not change state: other pending offers
// remain live.
func (s *OfferService) Reject(ctx context.Context, buyerID, offerID string) error {
	offer, req, err := s.offerForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return err
	}
	if err := repo.RejectOffer(ctx, s.DB, offerID); err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return ErrStateConflict
		}
		return err
	}
	s.notifySeller(ctx, offer.SellerID,
		fmt.Sprintf("Your offer on %s was declined.", req.PartName))
	return nil
}

// Unlock reveals contact details for an accepted offer: the request moves to
// contact_unlocked and both parties receive the counterpart's phone number.
// Calling it before any offer is accepted, or twice, is a state conflict.
func (s *OfferService) Unlock(ctx context.Context, buyerID, offerID string) (*domain.Offer, error) {
	offer, req, err := s.offerForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != domain.OfferStatusAccepted {
		return nil, ErrStateConflict
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !offer.ContactUnlocked {
			if err := repo.UnlockOfferContact(ctx, tx, offerID); err != nil {
				return err
			}
		}
		return repo.TransitionRequest(ctx, tx, offer.RequestID,
			domain.RequestStatusOfferReceived, domain.RequestStatusContactUnlocked)
	})
	if err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return nil, ErrStateConflict
		}
		return nil, err
	}

	offer.ContactUnlocked = true
	buyerMsg := fmt.Sprintf("Seller contact for %s unlocked. Reach out to close the deal.", req.PartName)
	if sp, err := repo.GetSupplierByUser(ctx, s.DB, offer.SellerID); err == nil {
		buyerMsg = fmt.Sprintf("Seller contact for %s: %s", req.PartName, sp.Phone)
	}
	s.notifyBuyer(ctx, req, buyerMsg)
	s.notifySeller(ctx, offer.SellerID,
		fmt.Sprintf("Buyer contact for %s: %s", req.PartName, req.Phone))
	return offer, nil
}

// Complete marks the transaction done: the offer records completion time and
// the request reaches its terminal completed state. Requires an accepted,
// contact-unlocked offer; only the buyer can complete.
func (s *OfferService) Complete(ctx context.Context, buyerID, offerID string) (*domain.Offer, error) {
	offer, req, err := s.offerForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CompleteOffer(ctx, tx, offerID, now); err != nil {
			return err
		}
		return repo.TransitionRequest(ctx, tx, offer.RequestID,
			domain.RequestStatusContactUnlocked, domain.RequestStatusCompleted)
	})
	if err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return nil, ErrStateConflict
		}
		return nil, err
	}

	offer.TransactionCompleted = true
	offer.CompletedAt = &now
	s.notifySeller(ctx, offer.SellerID,
		fmt.Sprintf("Deal on %s marked complete by the buyer.", req.PartName))
	return offer, nil
}

// ExpirePending sweeps pending offers older than OfferTTL into expired.
// Returns how many rows were swept. Invoked from the admin surface; cheap
// enough to run on a cron.
func (s *OfferService) ExpirePending(ctx context.Context) (int64, error) {
	ttl := s.OfferTTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-ttl)
	return repo.ExpirePendingBefore(ctx, s.DB, cutoff)
}

// offerForBuyer loads the offer and its request, verifying the caller owns
// the request. Unowned offers read as not found so the endpoint does not
// leak their existence.
func (s *OfferService) offerForBuyer(ctx context.Context, buyerID, offerID string) (*domain.Offer, *domain.PartRequest, error) {
	offer, err := repo.GetOffer(ctx, s.DB, offerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrOfferNotFound
		}
		return nil, nil, err
	}
	req, err := repo.GetRequest(ctx, s.DB, offer.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if req.BuyerID != buyerID {
		return nil, nil, ErrOfferNotFound
	}
	return offer, req, nil
}

// notifyBuyer sends an SMS-channel notification to the request's phone.
func (s *OfferService) notifyBuyer(ctx context.Context, req *domain.PartRequest, msg string) {
	if s.Dispatcher == nil {
		return
	}
	_, err := s.Dispatcher.Dispatch(ctx, notify.Target{
		UserID:      req.BuyerID,
		Channel:     domain.ChannelSMS,
		Destination: req.Phone,
	}, msg)
	if err != nil {
		s.Dispatcher.Logger.Error().Err(err).Str("request_id", req.ID).Msg("buyer notification failed")
	}
}

// notifySeller routes through the seller's supplier profile. Sellers without
// a profile are skipped with a log line; notification loss must not fail the
// transition that triggered it.
func (s *OfferService) notifySeller(ctx context.Context, sellerID, msg string) {
	if s.Dispatcher == nil {
		return
	}
	sp, err := repo.GetSupplierByUser(ctx, s.DB, sellerID)
	if err != nil {
		s.Dispatcher.Logger.Warn().Err(err).Str("seller_id", sellerID).Msg("seller profile lookup failed, notification skipped")
		return
	}
	_, err = s.Dispatcher.Dispatch(ctx, notify.Target{
		UserID:      sellerID,
		Channel:     sp.Channel,
		Destination: sp.Phone,
	}, msg)
	if err != nil {
		s.Dispatcher.Logger.Error().Err(err).Str("seller_id", sellerID).Msg("seller notification failed")
	}
}
