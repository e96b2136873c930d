// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// NotificationRecord model.
//
// The pipeline only ever creates rows here; Sent/SentAt are flipped by the
// out-of-process delivery worker through MarkNotificationSent.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// CreateNotification inserts one dispatch record. Each recipient of a fan-out
// gets its own independent row; there is no batch insert on purpose, so a
// failure for one recipient never rolls back the others.
func CreateNotification(ctx context.Context, db *gorm.DB, userID, channel, destination, message string) (*domain.NotificationRecord, error) {
	rec := &domain.NotificationRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkNotificationSent records a successful downstream delivery. Already-sent
// rows are left untouched so delivery retries stay idempotent.
func MarkNotificationSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.NotificationRecord{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{"sent": true, "sent_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ListNotificationsByUser returns a user's dispatch records, newest first.
func ListNotificationsByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListUnsentNotifications returns pending dispatch records oldest first, for
// the delivery worker's retry sweep.
func ListUnsentNotifications(ctx context.Context, db *gorm.DB, limit int) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	q := db.WithContext(ctx).
		Where("sent = ?", false).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
