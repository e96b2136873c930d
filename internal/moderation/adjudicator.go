// Package moderation implements the AI adjudication step of the intake
// pipeline. Submissions flagged as suspicious by the spam heuristics are sent
// to an external language-model classifier; the classifier's free-form JSON
// is coerced into a fixed verdict at a strict parse-or-degrade boundary.
//
// The failure posture is deliberately conservative: any transport error,
// timeout, or non-conforming payload degrades to needs_human_review with
// confidence 0.5. A moderation failure must never silently auto-approve, and
// must never fail the submission outright.
package moderation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/spam"
)

// Outcome is the adjudicator's decision for one submission. Decision is one
// of the domain.Decision* constants; Confidence is in [0,1].
type Outcome struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Classifier is the boundary to the external model. Implementations return
// the raw model text; parsing and degradation stay in the adjudicator so a
// non-conforming classifier can never leak an unchecked decision.
type Classifier interface {
	Classify(ctx context.Context, sub spam.Submission) (string, error)
}

// Adjudicator renders approve/reject/escalate decisions for suspicious
// submissions.
type Adjudicator struct {
	Classifier Classifier

	// Timeout bounds the classifier call; defaults to 12s when <= 0.
	Timeout time.Duration
	// Threshold is the minimum confidence for auto-publication of an
	// approved decision; defaults to 0.7 when <= 0.
	Threshold float64
}

const (
	defaultTimeout   = 12 * time.Second
	defaultThreshold = 0.7
	// holdConfidence is recorded when the classifier fails or returns an
	// unparseable payload.
	holdConfidence = 0.5
)

// Adjudicate calls the classifier with a bounded context and coerces the
// response into an Outcome. Every failure path yields needs_human_review at
// confidence 0.5, never an error: the caller persists the outcome and moves
// on, leaving the request visible to administrators.
func (a *Adjudicator) Adjudicate(ctx context.Context, sub spam.Submission) Outcome {
	tr := otel.Tracer("moderation/Adjudicator")
	ctx, span := tr.Start(ctx, "Adjudicate")
	defer span.End()

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.Classifier == nil {
		span.SetAttributes(attribute.String("moderation.degrade", "no_classifier"))
		return Outcome{
			Decision:   domain.DecisionNeedsReview,
			Confidence: holdConfidence,
			Rationale:  "no classifier configured",
		}
	}

	raw, err := a.Classifier.Classify(ctx, sub)
	if err != nil {
		span.SetAttributes(attribute.String("moderation.degrade", "classifier_error"))
		return Outcome{
			Decision:   domain.DecisionNeedsReview,
			Confidence: holdConfidence,
			Rationale:  "classifier unavailable: " + err.Error(),
		}
	}

	out, ok := parseVerdict(raw)
	if !ok {
		span.SetAttributes(attribute.String("moderation.degrade", "unparseable"))
		return Outcome{
			Decision:   domain.DecisionNeedsReview,
			Confidence: holdConfidence,
			Rationale:  "classifier response did not match expected structure",
		}
	}
	span.SetAttributes(
		attribute.String("moderation.decision", out.Decision),
		attribute.Float64("moderation.confidence", out.Confidence),
	)
	return out
}

// AutoPublish reports whether an outcome clears the publication gate:
// approved AND confidence strictly above the threshold. Everything else
// stays queued for human review or blocked.
func (a *Adjudicator) AutoPublish(out Outcome) bool {
	thr := a.Threshold
	if thr <= 0 {
		thr = defaultThreshold
	}
	return out.Decision == domain.DecisionApproved && out.Confidence > thr
}

// parseVerdict is the strict parse side of the parse-or-degrade boundary.
// The model may wrap its JSON in prose or markdown fences; the first JSON
// object found is extracted and must carry a known decision and a confidence
// in [0,1] to count as parsed.
func parseVerdict(raw string) (Outcome, bool) {
	frag, ok := extractJSONObject(raw)
	if !ok {
		return Outcome{}, false
	}

	var v struct {
		Decision   string   `json:"decision"`
		Confidence *float64 `json:"confidence"`
		Rationale  string   `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(frag), &v); err != nil {
		return Outcome{}, false
	}

	switch strings.ToLower(strings.TrimSpace(v.Decision)) {
	case domain.DecisionApproved, domain.DecisionRejected, domain.DecisionNeedsReview:
	default:
		return Outcome{}, false
	}
	if v.Confidence == nil || *v.Confidence < 0 || *v.Confidence > 1 {
		return Outcome{}, false
	}

	return Outcome{
		Decision:   strings.ToLower(strings.TrimSpace(v.Decision)),
		Confidence: *v.Confidence,
		Rationale:  strings.TrimSpace(v.Rationale),
	}, true
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// String-aware so braces inside quoted values do not unbalance the scan.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
