// Package services – RequestService
//
// This file implements RequestService, the orchestrator of the intake
// pipeline: validate → SpamGuard → (suspicious ⇒ AI adjudication) → persist
// request and moderation record atomically → fan out supplier notifications
// when the request auto-publishes.
//
// Failure posture: spam and validation failures are terminal for the call
// with no partial writes. Moderation outcomes other than a high-confidence
// approval still persist the request (status pending, visible to
// administrators) — a classifier outage must never lose a submission.
// Notification fan-out happens after commit and is best-effort.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/match"
	"github.com/partline/go-parts-backend/internal/moderation"
	"github.com/partline/go-parts-backend/internal/notify"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/spam"
)

// heuristicConfidence is recorded for submissions the spam heuristics
// cleared without involving the classifier.
const heuristicConfidence = 1.0

// phoneRE accepts E.164-ish numbers with optional separators. Strict carrier
// validation belongs to the delivery provider, not intake.
var phoneRE = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{6,18}[0-9]$`)

// SubmitInput carries the buyer-supplied fields of a new part request.
type SubmitInput struct {
	Make        string
	Model       string
	Year        int
	PartName    string
	Description string
	Phone       string
	Location    string
	PhotoURL    string
}

// SubmitResult is the outcome of a successful submission. Published is true
// only when the request cleared moderation for immediate supplier fan-out;
// otherwise the request is held pending administrative review (or carries a
// rejecting record) and Moderation explains why.
type SubmitResult struct {
	Request    *domain.PartRequest
	Moderation *domain.ModerationRecord
	Published  bool
}

// RequestService owns part request intake and the buyer-facing read paths.
type RequestService struct {
	DB          *gorm.DB
	Guard       *spam.Guard
	Adjudicator *moderation.Adjudicator
	Dispatcher  *notify.Dispatcher
}

// Submit runs the full intake pipeline for one submission.
func (s *RequestService) Submit(ctx context.Context, buyerID string, in SubmitInput) (*SubmitResult, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("buyer.id", buyerID)),
	)
	defer span.End()

	if err := validateSubmission(&in); err != nil {
		return nil, err
	}

	sub := spam.Submission{
		Make:        in.Make,
		Model:       in.Model,
		Year:        in.Year,
		PartName:    in.PartName,
		Description: in.Description,
		Phone:       in.Phone,
		Location:    in.Location,
	}

	now := time.Now().UTC()
	verdict, err := s.Guard.Evaluate(ctx, s.DB, buyerID, sub, now)
	if err != nil {
		return nil, err
	}
	if !verdict.Allowed {
		span.SetAttributes(attribute.String("spam.reason", verdict.Reason))
		return nil, &SpamRejectionError{Reason: verdict.Reason, RetryAfter: verdict.RetryAfter}
	}

	// Suspicious submissions go to the classifier; clean ones publish on the
	// heuristic alone. The adjudicator degrades internally, so outcome is
	// always usable.
	var outcome moderation.Outcome
	if suspicious, reason := s.Guard.Suspicious(sub); suspicious {
		span.SetAttributes(attribute.String("spam.suspicious", reason))
		outcome = s.Adjudicator.Adjudicate(ctx, sub)
	} else {
		outcome = moderation.Outcome{
			Decision:   domain.DecisionApproved,
			Confidence: heuristicConfidence,
			Rationale:  "passed heuristic screening",
		}
	}
	published := s.Adjudicator.AutoPublish(outcome)

	req := &domain.PartRequest{
		BuyerID:       buyerID,
		Make:          in.Make,
		Model:         in.Model,
		Year:          in.Year,
		PartName:      in.PartName,
		PartNameCanon: spam.CanonicalPartName(in.PartName),
		Description:   in.Description,
		Phone:         in.Phone,
		Location:      in.Location,
		PhotoURL:      in.PhotoURL,
		Status:        domain.RequestStatusPending,
	}

	var rec *domain.ModerationRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateRequest(ctx, tx, req); err != nil {
			return err
		}
		r, err := repo.CreateModerationRecord(ctx, tx, req.ID, outcome.Decision, outcome.Confidence, outcome.Rationale)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if published {
		s.fanOutToSuppliers(ctx, req)
	}

	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("moderation.decision", outcome.Decision),
		attribute.Bool("request.published", published),
	)
	return &SubmitResult{Request: req, Moderation: rec, Published: published}, nil
}

// fanOutToSuppliers creates one notification record per location-matched
// supplier. Best-effort by design: errors are logged inside the dispatcher
// and never fail the submission.
func (s *RequestService) fanOutToSuppliers(ctx context.Context, req *domain.PartRequest) {
	if s.Dispatcher == nil {
		return
	}
	profiles, err := repo.ListSuppliers(ctx, s.DB)
	if err != nil {
		s.Dispatcher.Logger.Error().Err(err).Str("request_id", req.ID).Msg("supplier fan-out skipped")
		return
	}
	matched := match.Suppliers(req, profiles)
	targets := make([]notify.Target, 0, len(matched))
	for _, p := range matched {
		targets = append(targets, notify.Target{
			UserID:      p.UserID,
			Channel:     p.Channel,
			Destination: p.Phone,
		})
	}
	msg := fmt.Sprintf("New part request: %s for %s %s %d in %s",
		req.PartName, req.Make, req.Model, req.Year, req.Location)
	s.Dispatcher.DispatchAll(ctx, targets, msg)
}

// Cancel moves an owned, non-terminal request to cancelled.
func (s *RequestService) Cancel(ctx context.Context, buyerID, requestID string) error {
	if _, err := repo.GetRequestOwned(ctx, s.DB, requestID, buyerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	if err := repo.CancelRequest(ctx, s.DB, requestID, buyerID); err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return ErrStateConflict
		}
		return err
	}
	return nil
}

// Get fetches an owned request.
func (s *RequestService) Get(ctx context.Context, buyerID, requestID string) (*domain.PartRequest, error) {
	r, err := repo.GetRequestOwned(ctx, s.DB, requestID, buyerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListPage returns a page of the buyer's requests and the total count.
// It applies defaults for invalid page/pageSize.
func (s *RequestService) ListPage(ctx context.Context, buyerID string, page, pageSize int) ([]domain.PartRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountRequests(ctx, s.DB, buyerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.PartRequest{}, 0, nil
	}

	items, err := repo.ListRequestsPage(ctx, s.DB, buyerID, offset, pageSize)
	return items, total, err
}

// HeldQueue lists requests parked for human review, oldest first, for the
// admin moderation surface.
func (s *RequestService) HeldQueue(ctx context.Context, limit int) ([]domain.PartRequest, error) {
	items, err := repo.ListHeldRequests(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PartRequest{}
	}
	return items, nil
}

// validateSubmission normalizes and checks buyer input before any state is
// touched.
func validateSubmission(in *SubmitInput) error {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.PartName = strings.TrimSpace(in.PartName)
	in.Description = strings.TrimSpace(in.Description)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Location = strings.TrimSpace(in.Location)

	switch {
	case in.Make == "":
		return invalidf("make", "required")
	case in.Model == "":
		return invalidf("model", "required")
	case in.PartName == "":
		return invalidf("part_name", "required")
	case in.Phone == "":
		return invalidf("phone", "required")
	}
	if in.Year < 1950 || in.Year > time.Now().Year()+1 {
		return invalidf("year", "must be between 1950 and %d", time.Now().Year()+1)
	}
	if !phoneRE.MatchString(in.Phone) {
		return invalidf("phone", "not a plausible phone number")
	}
	return nil
}
