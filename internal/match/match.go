// Package match selects the suppliers targeted by new-request fan-out.
//
// Targeting is a deliberately simple, non-geospatial heuristic: a supplier
// matches a request when either location string contains the other
// (case-insensitive), with a token fallback so "Accra, Greater Accra" still
// matches a profile that just says "Accra". Precision is a known limitation;
// the point is a cheap first pass that errs toward notifying.
package match

import (
	"regexp"
	"strings"

	"github.com/partline/go-parts-backend/internal/domain"
)

// tokenRE splits locations into comparable word tokens.
var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Locations reports whether a supplier location and a request location should
// be considered the same area.
func Locations(supplierLoc, requestLoc string) bool {
	s := strings.ToLower(strings.TrimSpace(supplierLoc))
	r := strings.ToLower(strings.TrimSpace(requestLoc))
	if s == "" || r == "" {
		return false
	}
	if strings.Contains(s, r) || strings.Contains(r, s) {
		return true
	}

	// Token fallback: any shared token of 3+ runes counts. Short tokens
	// ("st", "rd") produce too many false areas.
	rTokens := make(map[string]struct{})
	for _, t := range tokenRE.FindAllString(r, -1) {
		if len(t) >= 3 {
			rTokens[t] = struct{}{}
		}
	}
	for _, t := range tokenRE.FindAllString(s, -1) {
		if len(t) < 3 {
			continue
		}
		if _, ok := rTokens[t]; ok {
			return true
		}
	}
	return false
}

// Suppliers filters profiles down to those matching the request's location.
// The request owner never receives their own fan-out even if they also run a
// supplier profile.
func Suppliers(req *domain.PartRequest, profiles []domain.SupplierProfile) []domain.SupplierProfile {
	out := make([]domain.SupplierProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID == req.BuyerID {
			continue
		}
		if Locations(p.Location, req.Location) {
			out = append(out, p)
		}
	}
	return out
}
