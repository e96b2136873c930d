package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/services"
)

func TestPendingRatings_EmptyIsNotNull(t *testing.T) {
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{pending: func(context.Context, string) ([]repo.PendingRating, error) {
		return nil, nil
	}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ratings/pending", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp PendingRatingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Pending == nil || len(resp.Pending) != 0 {
		t.Fatalf("expected empty slice, got %v", resp.Pending)
	}
}

func TestPendingRatings_List(t *testing.T) {
	offerID := uuid.NewString()
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{pending: func(_ context.Context, buyerID string) ([]repo.PendingRating, error) {
		if buyerID != "buyer-1" {
			t.Fatalf("buyer = %q", buyerID)
		}
		return []repo.PendingRating{{OfferID: offerID, SellerID: "seller-a", SellerName: "Accra Auto Spares", CompletedAt: time.Now().UTC()}}, nil
	}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ratings/pending", nil)
	req.Header.Set("X-User-ID", "buyer-1")
	r.ServeHTTP(w, req)

	var resp PendingRatingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Pending) != 1 || resp.Pending[0].OfferID != offerID {
		t.Fatalf("pending wrong: %+v", resp.Pending)
	}
}

func TestSubmitRating_ErrorMappings(t *testing.T) {
	offerID := uuid.NewString()
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"offer missing", services.ErrOfferNotFound, http.StatusNotFound},
		{"already rated", services.ErrDuplicateRating, http.StatusConflict},
		{"not completed", services.ErrNotRatable, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{submit: func(context.Context, string, string, int, string) (*domain.Review, error) {
				return nil, tc.err
			}})
			r := newTestRouter(h)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/offers/"+offerID+"/rating",
				bytes.NewBufferString(`{"rating":4}`)))
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestSubmitRating_BindingError(t *testing.T) {
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{submit: func(context.Context, string, string, int, string) (*domain.Review, error) {
		t.Fatalf("service must not be called on binding error")
		return nil, nil
	}})
	r := newTestRouter(h)

	// Out of range fails validation before the service sees it.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/offers/"+uuid.NewString()+"/rating",
		bytes.NewBufferString(`{"rating":7}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitRating_Created(t *testing.T) {
	offerID := uuid.NewString()
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{submit: func(_ context.Context, reviewerID, id string, rating int, comment string) (*domain.Review, error) {
		return &domain.Review{ID: uuid.NewString(), OfferID: id, ReviewerID: reviewerID, SellerID: "seller-a", Rating: rating, Comment: comment}, nil
	}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/offers/"+offerID+"/rating",
		bytes.NewBufferString(`{"rating":5,"comment":"great"}`))
	req.Header.Set("X-User-ID", "buyer-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var resp RatingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Review.Rating != 5 || resp.Review.ReviewerID != "buyer-1" {
		t.Fatalf("review wrong: %+v", resp.Review)
	}
}
