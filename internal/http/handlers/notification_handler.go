// Notification HTTP handlers.
//
// Notifications are created by the pipeline's fan-out; this file only exposes
// the read side (a user's dispatch history) and the admin sweep that re-hands
// stuck records to the delivery topic.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partline/go-parts-backend/internal/domain"
)

// NotificationService defines the notification read and delivery-sweep
// operations consumed by HTTP handlers.
type NotificationService interface {
	// History returns the user's dispatch records, newest first.
	History(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error)
	// FlushUnsent re-enqueues records that never reached the delivery topic.
	FlushUnsent(ctx context.Context, limit int) (int, error)
}

// NotificationsResponse lists a user's dispatch records.
type NotificationsResponse struct {
	Notifications []domain.NotificationRecord `json:"notifications"`
}

// FlushNotificationsResponse reports how many records a sweep re-enqueued.
type FlushNotificationsResponse struct {
	Flushed int `json:"flushed"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List own notifications
// @Description Returns the caller's notification dispatch records, newest first.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "User ID"                example(buyer-1)
// @Param       limit      query   int     false  "Maximum rows returned"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.NotificationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	if h.notifySvc == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "notifications unavailable")
		return
	}
	recs, err := h.notifySvc.History(c.Request.Context(), userID(c), clampLimit(c, 20, 100))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if recs == nil {
		recs = []domain.NotificationRecord{}
	}
	ok(c, http.StatusOK, NotificationsResponse{Notifications: recs})
}

// FlushNotifications godoc
// @ID          flushNotifications
// @Summary     Re-enqueue undelivered notifications
// @Description Sweeps notification records that never reached the delivery topic
// @Description back onto it, oldest first. Intended for the admin surface or a cron.
// @Tags        Admin
// @Produce     json
//
// @Param       limit  query  int  false  "Maximum rows swept"  minimum(1) maximum(500) default(100)
//
// @Success     200  {object} handlers.FlushNotificationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/notifications/flush [post]
func (h *Handlers) FlushNotifications(c *gin.Context) {
	if h.notifySvc == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "notifications unavailable")
		return
	}
	n, err := h.notifySvc.FlushUnsent(c.Request.Context(), clampLimit(c, 100, 500))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, FlushNotificationsResponse{Flushed: n})
}
