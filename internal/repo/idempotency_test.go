package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "user-1", "request_submit", "key-1", "res-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ResourceID != "res-1" || rec.Status != 201 {
		t.Fatalf("record wrong: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "user-1", "request_submit", "key-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResourceID != "res-1" {
		t.Fatalf("resource = %q, want res-1", got.ResourceID)
	}

	// Key is scoped per user and per operation.
	if _, err := GetIdempotency(ctx, db, "user-2", "request_submit", "key-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user: err = %v, want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, "user-1", "other_scope", "key-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other scope: err = %v, want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, "user-1", "", "key-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope: err = %v, want ErrNotFound", err)
	}
}

func TestIdempotency_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "user-1", "request_submit", "key-1", "res-1", 201, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "user-1", "request_submit", "key-1", "res-2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate: err = %v, want ErrDuplicate", err)
	}
	// Same key under another user is a distinct record.
	if _, err := CreateIdempotency(ctx, db, "user-2", "request_submit", "key-1", "res-3", 202, time.Hour); err != nil {
		t.Fatalf("other user create: %v", err)
	}
}

func TestIdempotency_Expired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "user-1", "request_submit", "key-1", "res-1", 201, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	future := time.Now().UTC().Add(2 * time.Minute)
	if _, err := GetIdempotency(ctx, db, "user-1", "request_submit", "key-1", future); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired: err = %v, want ErrNotFound", err)
	}
}
