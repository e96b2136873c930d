// Part request HTTP handlers.
//
// This file exposes REST endpoints for buyer part requests:
//   - POST /requests               (submit, runs the intake pipeline)
//   - GET  /requests               (list own requests, paginated, ETag support)
//   - POST /requests/{id}/cancel   (cancel an open request)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// submission exists for (user, "request_submit", key), the handler returns the
// recorded request and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/services"
	"github.com/partline/go-parts-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RequestService defines part request lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RequestService interface {
	// Submit runs the intake pipeline for a new request.
	Submit(ctx context.Context, buyerID string, in services.SubmitInput) (*services.SubmitResult, error)
	// Get fetches a request owned by buyerID.
	Get(ctx context.Context, buyerID, requestID string) (*domain.PartRequest, error)
	// ListPage returns a page of the buyer's requests and the total count.
	ListPage(ctx context.Context, buyerID string, page, pageSize int) ([]domain.PartRequest, int64, error)
	// Cancel moves an owned, non-terminal request to cancelled.
	Cancel(ctx context.Context, buyerID, requestID string) error
	// HeldQueue lists requests parked for human review, oldest first.
	HeldQueue(ctx context.Context, limit int) ([]domain.PartRequest, error)
}

// OfferService defines offer lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type OfferService interface {
	// Make records a seller's offer against an open request.
	Make(ctx context.Context, sellerID, requestID string, in services.MakeOfferInput) (*domain.Offer, error)
	// List returns all offers on a request.
	List(ctx context.Context, requestID string) ([]domain.Offer, error)
	// Accept marks the offer accepted for the request's buyer.
	Accept(ctx context.Context, buyerID, offerID string) (*domain.Offer, error)
	// Reject marks a pending offer rejected.
	Reject(ctx context.Context, buyerID, offerID string) error
	// Unlock reveals contact details for an accepted offer.
	Unlock(ctx context.Context, buyerID, offerID string) (*domain.Offer, error)
	// Complete marks the transaction done.
	Complete(ctx context.Context, buyerID, offerID string) (*domain.Offer, error)
	// ExpirePending sweeps stale pending offers into expired.
	ExpirePending(ctx context.Context) (int64, error)
}

// RatingService defines post-transaction rating operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RatingService interface {
	// Pending lists completed, not-yet-rated transactions for the buyer.
	Pending(ctx context.Context, buyerID string) ([]repo.PendingRating, error)
	// Submit records a 1-5 star review of the offer's seller.
	Submit(ctx context.Context, reviewerID, offerID string, rating int, comment string) (*domain.Review, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for requests, offers, and ratings.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	reqSvc    RequestService
	offerSvc  OfferService
	ratingSvc RatingService
	notifySvc NotificationService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(reqSvc RequestService, offerSvc OfferService, ratingSvc RatingService) *Handlers {
	return &Handlers{reqSvc: reqSvc, offerSvc: offerSvc, ratingSvc: ratingSvc}
}

// WithNotifications attaches the backing service for the notification
// endpoints. Without it those endpoints answer 503.
func (h *Handlers) WithNotifications(svc NotificationService) *Handlers {
	h.notifySvc = svc
	return h
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// SubmitRequestRequest is the JSON payload for submitting a part request.
type SubmitRequestRequest struct {
	Make        string `json:"make"      binding:"required,min=1" example:"Toyota"`
	Model       string `json:"model"     binding:"required,min=1" example:"Corolla"`
	Year        int    `json:"year"      binding:"required"       example:"2015"`
	PartName    string `json:"part_name" binding:"required,min=1" example:"brake pads"`
	Description string `json:"description" example:"front axle, ceramic preferred"`
	Phone       string `json:"phone"     binding:"required,min=7" example:"+35799123456"`
	Location    string `json:"location"  example:"Nicosia"`
	PhotoURL    string `json:"photo_url" example:"https://cdn.example.com/p/1.jpg"`
}

// SubmitRequestResponse is the JSON envelope for a newly created request.
// Published reports whether the request went straight to supplier fan-out or
// is held for moderation; held responses carry Code "moderation_hold".
type SubmitRequestResponse struct {
	Request    *domain.PartRequest `json:"request"`
	Published  bool                `json:"published"`
	Moderation string              `json:"moderation"`
	Code       string              `json:"code,omitempty" example:"moderation_hold"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRequestsResponse wraps a page of requests and pagination information.
type ListRequestsResponse struct {
	Requests   []domain.PartRequest `json:"requests"`
	Pagination Pagination           `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// idempotencyKey reads a validated Idempotency-Key header if present.
func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

// failService maps shared service-layer errors to HTTP responses. Returns
// false when the error needs handler-specific treatment instead.
func failService(c *gin.Context, err error) bool {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, ve.Error())
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
	case errors.Is(err, services.ErrOfferNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "offer not found")
	case errors.Is(err, services.ErrStateConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "resource is not in a valid state for this operation")
	default:
		return false
	}
	return true
}

//
// Handlers
//

// SubmitRequest godoc
// @ID          submitRequest
// @Summary     Submit a part request
// @Description Runs the full intake pipeline: spam screening, AI moderation when needed,
// @Description and supplier notification fan-out on publication. Requests held for human
// @Description review return 202 instead of 201.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Buyer user ID"  example(buyer-1)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SubmitRequestRequest  true  "Part request payload"
//
// @Success     201  {object}  handlers.SubmitRequestResponse  "Published request"
// @Success     202  {object}  handlers.SubmitRequestResponse  "Held for review"
// @Failure     400  {object}  handlers.ErrorResponse          "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse          "Spam rejection"
// @Failure     500  {object}  handlers.ErrorResponse          "Internal error"
// @Router      /requests [post]
func (h *Handlers) SubmitRequest(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	buyer := userID(c)

	// Idempotency (replay path) – read recorded result if present.
	idemKey := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.reqSvc.(*services.RequestService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, buyer, scopeRequestSubmit, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetRequest(ctx, svc.DB, rec.ResourceID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					resp := SubmitRequestResponse{Request: prev, Published: rec.Status == http.StatusCreated}
					if !resp.Published {
						resp.Code = ErrCodeModerationHold
					}
					ok(c, rec.Status, resp)
					return
				}
			}
		}
	}

	res, err := h.reqSvc.Submit(ctx, buyer, services.SubmitInput{
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		PartName:    req.PartName,
		Description: req.Description,
		Phone:       req.Phone,
		Location:    req.Location,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		var se *services.SpamRejectionError
		if errors.As(err, &se) {
			if se.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(se.RetryAfter.Seconds())))
			}
			fail(c, http.StatusTooManyRequests, ErrCodeSpamRejected, se.Error())
			return
		}
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	status := http.StatusAccepted
	if res.Published {
		status = http.StatusCreated
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.reqSvc.(*services.RequestService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, buyer, scopeRequestSubmit, idemKey, res.Request.ID, status, ttl)
		}
	}

	resp := SubmitRequestResponse{
		Request:    res.Request,
		Published:  res.Published,
		Moderation: res.Moderation.Decision,
	}
	if !res.Published {
		resp.Code = ErrCodeModerationHold
	}
	ok(c, status, resp)
}

// scopeRequestSubmit namespaces idempotency records for request submission.
const scopeRequestSubmit = "request_submit"

// ListRequests godoc
// @ID          listRequests
// @Summary     List own part requests (paginated)
// @Description Returns a page of the buyer's requests. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "Buyer user ID"               example(buyer-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRequestsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.reqSvc.(*services.RequestService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.RequestsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"requests:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.reqSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRequestsResponse{
		Requests: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// CancelRequest godoc
// @ID          cancelRequest
// @Summary     Cancel a part request
// @Description Cancels an open request owned by the current user. Completed or already
// @Description cancelled requests return 409.
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"   example(buyer-1)
// @Param       id         path    string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Request already terminal"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/{id}/cancel [post]
func (h *Handlers) CancelRequest(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	if err := h.reqSvc.Cancel(c.Request.Context(), userID(c), requestID); err != nil {
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// HeldRequestsResponse lists requests awaiting human review.
type HeldRequestsResponse struct {
	Requests []domain.PartRequest `json:"requests"`
}

// HeldRequests godoc
// @ID          heldRequests
// @Summary     List requests held for human review
// @Description Returns pending requests whose automated adjudication landed on
// @Description needs_human_review, oldest first.
// @Tags        Admin
// @Produce     json
//
// @Param       limit  query  int  false  "Maximum rows returned"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.HeldRequestsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/requests/held [get]
func (h *Handlers) HeldRequests(c *gin.Context) {
	items, err := h.reqSvc.HeldQueue(c.Request.Context(), clampLimit(c, 50, 200))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.PartRequest{}
	}
	ok(c, http.StatusOK, HeldRequestsResponse{Requests: items})
}

// clampLimit parses the "limit" query parameter, applying the default for
// missing or non-positive values and capping at max.
func clampLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
