// Package spam implements the stateless anti-abuse checks applied to part
// request submissions before moderation: duplicate suppression and the
// hourly/daily rate windows, plus the cheap heuristic pre-check that routes
// suspicious submissions to the classifier.
//
// The windows are pure functions over time-bounded queries against the
// historical request table. No counters are persisted, which keeps the
// evaluator horizontally scalable; correctness under concurrent submissions
// relies on the store providing read-after-write consistency for the insert
// that follows a passing evaluation.
package spam

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/repo"
)

// Rejection reasons surfaced to callers. retry windows accompany the two
// rate-limit reasons.
const (
	ReasonDuplicate   = "duplicate_request"
	ReasonHourlyLimit = "hourly_limit"
	ReasonDailyLimit  = "daily_limit"
)

// Verdict is the outcome of an Evaluate call. RetryAfter is zero for
// duplicate rejections (resubmission is pointless, not merely early).
type Verdict struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Submission carries the request fields the guard inspects. It mirrors the
// buyer-supplied content, not the persisted row.
type Submission struct {
	Make        string
	Model       string
	Year        int
	PartName    string
	Description string
	Phone       string
	Location    string
}

// Guard evaluates submissions against the historical request table.
// The zero value is not usable; construct with NewGuard.
type Guard struct {
	// DuplicateWindow bounds the lookback for identical resubmissions.
	DuplicateWindow time.Duration
	// HourlyWindow / HourlyMax bound submissions per phone.
	HourlyWindow time.Duration
	HourlyMax    int64
	// DailyWindow / DailyMax bound submissions per account.
	DailyWindow time.Duration
	DailyMax    int64

	// SpamKeywords flag a submission as suspicious when present in the part
	// name or description. ExpensiveParts flag part categories that demand a
	// description before auto-approval is even considered.
	SpamKeywords   []string
	ExpensiveParts []string
}

// NewGuard returns a Guard with the production windows: duplicates within
// 24h, at most 3 submissions per phone per hour, at most 10 per account per
// day, and the default keyword lists.
func NewGuard() *Guard {
	return &Guard{
		DuplicateWindow: 24 * time.Hour,
		HourlyWindow:    time.Hour,
		HourlyMax:       3,
		DailyWindow:     24 * time.Hour,
		DailyMax:        10,
		SpamKeywords:    defaultSpamKeywords,
		ExpensiveParts:  defaultExpensiveParts,
	}
}

// Evaluate applies the rules in order, first match wins:
//  1. duplicate suppression (same phone + make + model + canonical part name,
//     non-completed, within DuplicateWindow)
//  2. hourly per-phone limit
//  3. daily per-account limit
//
// All window checks are computed against request-creation timestamps at
// evaluation time.
func (g *Guard) Evaluate(ctx context.Context, db *gorm.DB, buyerID string, sub Submission, now time.Time) (Verdict, error) {
	dup, err := repo.FindDuplicateRequest(ctx, db,
		sub.Phone, sub.Make, sub.Model, CanonicalPartName(sub.PartName),
		now.Add(-g.DuplicateWindow))
	if err != nil {
		return Verdict{}, err
	}
	if dup {
		return Verdict{Reason: ReasonDuplicate}, nil
	}

	hourly, err := repo.CountRequestsByPhoneSince(ctx, db, sub.Phone, now.Add(-g.HourlyWindow))
	if err != nil {
		return Verdict{}, err
	}
	if hourly >= g.HourlyMax {
		return Verdict{Reason: ReasonHourlyLimit, RetryAfter: g.HourlyWindow}, nil
	}

	daily, err := repo.CountRequestsByBuyerSince(ctx, db, buyerID, now.Add(-g.DailyWindow))
	if err != nil {
		return Verdict{}, err
	}
	if daily >= g.DailyMax {
		return Verdict{Reason: ReasonDailyLimit, RetryAfter: g.DailyWindow}, nil
	}

	return Verdict{Allowed: true}, nil
}

// Suspicious reports whether the submission should be routed to the
// classifier instead of auto-approving: a spam keyword in the part name or
// description, or an expensive-part category named without any description.
// Suspicion is not rejection; the adjudicator decides.
func (g *Guard) Suspicious(sub Submission) (bool, string) {
	text := strings.ToLower(sub.PartName + " " + sub.Description)
	for _, kw := range g.SpamKeywords {
		if strings.Contains(text, kw) {
			return true, "spam keyword: " + kw
		}
	}
	if strings.TrimSpace(sub.Description) == "" {
		name := CanonicalPartName(sub.PartName)
		for _, p := range g.ExpensiveParts {
			if strings.Contains(name, p) {
				return true, "expensive part without description: " + p
			}
		}
	}
	return false, ""
}

// CanonicalPartName case-folds a part name and collapses internal whitespace,
// so "Brake  Pads" and "brake pads" dedupe against each other.
func CanonicalPartName(name string) string {
	name = whitespaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	return foldCaser.String(name)
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	foldCaser    = cases.Fold()
)

// defaultSpamKeywords are matched case-insensitively against part name and
// description. Kept deliberately short; the classifier handles the long tail.
var defaultSpamKeywords = []string{
	"free money", "click here", "whatsapp me", "lottery", "crypto",
	"investment", "loan offer", "casino", "viagra",
}

// defaultExpensiveParts are categories where a bare name with no description
// is a common scam pattern (resale bait).
var defaultExpensiveParts = []string{
	"engine", "gearbox", "transmission", "ecu", "catalytic converter",
	"turbocharger", "airbag",
}
