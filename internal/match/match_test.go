package match

import (
	"testing"

	"github.com/partline/go-parts-backend/internal/domain"
)

func TestLocations(t *testing.T) {
	cases := []struct {
		name     string
		supplier string
		request  string
		want     bool
	}{
		{"exact", "Accra", "Accra", true},
		{"case insensitive", "ACCRA", "accra", true},
		{"supplier contains request", "Greater Accra Region", "Accra", true},
		{"request contains supplier", "Accra", "Accra, Greater Accra", true},
		{"shared token", "Accra Central", "East Accra", true},
		{"short shared token only", "12 St North", "34 St South", false},
		{"no overlap", "Kumasi", "Accra", false},
		{"empty supplier", "", "Accra", false},
		{"empty request", "Accra", "", false},
		{"whitespace only", "   ", "Accra", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Locations(c.supplier, c.request); got != c.want {
				t.Fatalf("Locations(%q, %q) = %v, want %v", c.supplier, c.request, got, c.want)
			}
		})
	}
}

func TestSuppliers(t *testing.T) {
	req := &domain.PartRequest{BuyerID: "buyer-1", Location: "Accra"}
	profiles := []domain.SupplierProfile{
		{UserID: "seller-1", Location: "Accra Central"},
		{UserID: "seller-2", Location: "Kumasi"},
		{UserID: "buyer-1", Location: "Accra"}, // request owner, must be skipped
		{UserID: "seller-3", Location: "Greater Accra"},
	}

	got := Suppliers(req, profiles)
	if len(got) != 2 {
		t.Fatalf("got %d suppliers, want 2: %+v", len(got), got)
	}
	if got[0].UserID != "seller-1" || got[1].UserID != "seller-3" {
		t.Fatalf("unexpected supplier set: %+v", got)
	}
}

func TestSuppliers_Empty(t *testing.T) {
	req := &domain.PartRequest{BuyerID: "buyer-1", Location: "Tamale"}
	got := Suppliers(req, []domain.SupplierProfile{{UserID: "s", Location: "Accra"}})
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}
