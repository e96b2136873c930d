package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/partline/go-parts-backend/internal/domain"
)

func TestListNotifications(t *testing.T) {
	var gotUser string
	var gotLimit int
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{}).
		WithNotifications(stubNotifySvc{history: func(_ context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
			gotUser, gotLimit = userID, limit
			return []domain.NotificationRecord{{ID: uuid.NewString(), UserID: userID, Channel: "sms"}}, nil
		}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications?limit=5000", nil)
	req.Header.Set("X-User-ID", "buyer-7")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotUser != "buyer-7" || gotLimit != 100 {
		t.Fatalf("user=%q limit=%d, want buyer-7/100", gotUser, gotLimit)
	}
	var resp NotificationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(resp.Notifications))
	}
}

func TestListNotifications_EmptyIsArray(t *testing.T) {
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{}).WithNotifications(stubNotifySvc{})
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, `"notifications":[]`) {
		t.Fatalf("empty body = %s", body)
	}
}

func TestNotifications_UnavailableWithoutService(t *testing.T) {
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{})
	r := newTestRouter(h)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/notifications", nil),
		httptest.NewRequest(http.MethodPost, "/admin/notifications/flush", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected 503, got %d", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestFlushNotifications(t *testing.T) {
	var gotLimit int
	h := New(stubReqSvc{}, stubOfferSvc{}, stubRatingSvc{}).
		WithNotifications(stubNotifySvc{flush: func(_ context.Context, limit int) (int, error) {
			gotLimit = limit
			return 3, nil
		}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/notifications/flush", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotLimit != 100 {
		t.Fatalf("default limit = %d, want 100", gotLimit)
	}
	var resp FlushNotificationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Flushed != 3 {
		t.Fatalf("flushed = %d, want 3", resp.Flushed)
	}
}
