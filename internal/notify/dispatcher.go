// Package notify implements the notification fan-out of the pipeline.
//
// The dispatcher's contract ends at durable record creation: Dispatch writes
// one NotificationRecord per recipient and, when a producer is configured,
// hands the record off to the delivery topic. Delivery itself (SMS, WhatsApp,
// email gateways) is a separate worker's problem. Fan-out to N recipients
// produces N independent rows; a failure for one recipient is logged and
// never rolls back or fails the others, and dispatch failures never propagate
// to the operation that triggered them.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/repo"
)

// DeliveryPublisher hands delivery events to the transport. *Producer is the
// production implementation.
type DeliveryPublisher interface {
	Publish(ctx context.Context, ev DeliveryEvent) error
}

// Target identifies one recipient of a fan-out.
type Target struct {
	UserID      string
	Channel     string
	Destination string
}

// Dispatcher creates notification records and optionally enqueues them for
// delivery. Producer may be nil (records only, delivery worker polls the
// table instead).
type Dispatcher struct {
	DB       *gorm.DB
	Producer DeliveryPublisher
	Logger   zerolog.Logger
}

// Dispatch durably records one notification and best-effort enqueues it.
// The record is the source of truth; a failed enqueue is logged and the
// record remains for the delivery worker's unsent sweep.
func (d *Dispatcher) Dispatch(ctx context.Context, t Target, message string) (*domain.NotificationRecord, error) {
	rec, err := repo.CreateNotification(ctx, d.DB, t.UserID, t.Channel, t.Destination, message)
	if err != nil {
		return nil, err
	}

	if d.Producer != nil {
		if err := d.Producer.Publish(ctx, DeliveryEvent{
			NotificationID: rec.ID,
			UserID:         rec.UserID,
			Channel:        rec.Channel,
			Destination:    rec.Destination,
			Message:        rec.Message,
		}); err != nil {
			d.Logger.Warn().
				Err(err).
				Str("notification_id", rec.ID).
				Str("channel", rec.Channel).
				Msg("delivery enqueue failed; record kept for retry sweep")
		}
	}
	return rec, nil
}

// DispatchAll fans out the same message to every target. Failures are logged
// per recipient and do not stop the remaining dispatches; the number of
// successfully recorded notifications is returned.
func (d *Dispatcher) DispatchAll(ctx context.Context, targets []Target, message string) int {
	created := 0
	for _, t := range targets {
		if _, err := d.Dispatch(ctx, t, message); err != nil {
			d.Logger.Error().
				Err(err).
				Str("user_id", t.UserID).
				Str("channel", t.Channel).
				Msg("notification record create failed")
			continue
		}
		created++
	}
	return created
}

// History returns the user's dispatch records, newest first.
func (d *Dispatcher) History(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
	return repo.ListNotificationsByUser(ctx, d.DB, userID, limit)
}

// FlushUnsent re-publishes recorded notifications that never reached the
// delivery topic, oldest first, and marks each one sent once its publish
// succeeds. Hand-off is at-least-once; the delivery worker dedupes on
// notification ID. With no producer configured the sweep is a no-op.
func (d *Dispatcher) FlushUnsent(ctx context.Context, limit int) (int, error) {
	if d.Producer == nil {
		return 0, nil
	}
	recs, err := repo.ListUnsentNotifications(ctx, d.DB, limit)
	if err != nil {
		return 0, err
	}
	flushed := 0
	for _, rec := range recs {
		if err := d.Producer.Publish(ctx, DeliveryEvent{
			NotificationID: rec.ID,
			UserID:         rec.UserID,
			Channel:        rec.Channel,
			Destination:    rec.Destination,
			Message:        rec.Message,
		}); err != nil {
			d.Logger.Warn().
				Err(err).
				Str("notification_id", rec.ID).
				Msg("flush publish failed; record kept for the next sweep")
			continue
		}
		if err := repo.MarkNotificationSent(ctx, d.DB, rec.ID, time.Now().UTC()); err != nil {
			d.Logger.Error().
				Err(err).
				Str("notification_id", rec.ID).
				Msg("mark sent failed after publish")
			continue
		}
		flushed++
	}
	return flushed, nil
}
