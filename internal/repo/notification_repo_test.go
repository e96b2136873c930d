package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/partline/go-parts-backend/internal/domain"
)

func TestMarkNotificationSent_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateNotification(ctx, db, "user-1", domain.ChannelSMS, "+233201234567", "new offer")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	if err := MarkNotificationSent(ctx, db, rec.ID, at); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	// A delivery retry finds the row already sent.
	if err := MarkNotificationSent(ctx, db, rec.ID, time.Now().UTC()); !errors.Is(err, ErrStaleState) {
		t.Fatalf("re-mark: err = %v, want ErrStaleState", err)
	}

	var got domain.NotificationRecord
	if err := db.Where("id = ?", rec.ID).First(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Sent || got.SentAt == nil {
		t.Fatalf("sent state wrong: %+v", got)
	}
}

func TestListUnsentNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, _ := CreateNotification(ctx, db, "user-1", domain.ChannelSMS, "+1", "a")
	db.Model(&domain.NotificationRecord{}).Where("id = ?", first.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour))
	second, _ := CreateNotification(ctx, db, "user-2", domain.ChannelWhatsApp, "+2", "b")
	sent, _ := CreateNotification(ctx, db, "user-3", domain.ChannelSMS, "+3", "c")
	if err := MarkNotificationSent(ctx, db, sent.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark: %v", err)
	}

	out, err := ListUnsentNotifications(ctx, db, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("unsent = %d, want 2", len(out))
	}
	// Oldest first so retries drain in order.
	if out[0].ID != first.ID || out[1].ID != second.ID {
		t.Fatalf("sweep order wrong: %+v", out)
	}
}

func TestListNotificationsByUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old, _ := CreateNotification(ctx, db, "user-1", domain.ChannelSMS, "+1", "older")
	db.Model(&domain.NotificationRecord{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour))
	CreateNotification(ctx, db, "user-1", domain.ChannelSMS, "+1", "newer")
	CreateNotification(ctx, db, "user-2", domain.ChannelSMS, "+2", "other user")

	out, err := ListNotificationsByUser(ctx, db, "user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("records = %d, want 2", len(out))
	}
	if out[0].Message != "newer" {
		t.Fatalf("not newest first: %+v", out)
	}

	limited, err := ListNotificationsByUser(ctx, db, "user-1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited list: n=%d err=%v", len(limited), err)
	}
}
