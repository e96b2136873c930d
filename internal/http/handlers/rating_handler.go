// Rating HTTP handlers.
//
// This file exposes REST endpoints for post-transaction seller ratings:
//   - GET  /ratings/pending        (completed transactions awaiting a rating)
//   - POST /offers/{id}/rating     (rate the seller of a completed offer)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/services"
)

//
// DTOs
//

// SubmitRatingRequest is the JSON payload for rating a seller.
type SubmitRatingRequest struct {
	// Rating is the star value, 1 to 5.
	Rating int `json:"rating" binding:"required,min=1,max=5" example:"5"`
	// Comment is optional free text.
	Comment string `json:"comment" example:"fast response, part as described"`
}

// RatingResponse is the JSON envelope for a recorded review.
type RatingResponse struct {
	Review *domain.Review `json:"review"`
}

// PendingRatingsResponse lists completed transactions the caller has not
// rated yet, newest completion first.
type PendingRatingsResponse struct {
	Pending []repo.PendingRating `json:"pending"`
}

//
// Handlers
//

// PendingRatings godoc
// @ID          pendingRatings
// @Summary     List transactions awaiting a rating
// @Tags        Ratings
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"  example(buyer-1)
//
// @Success     200  {object}  handlers.PendingRatingsResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /ratings/pending [get]
func (h *Handlers) PendingRatings(c *gin.Context) {
	items, err := h.ratingSvc.Pending(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []repo.PendingRating{}
	}
	ok(c, http.StatusOK, PendingRatingsResponse{Pending: items})
}

// SubmitRating godoc
// @ID          submitRating
// @Summary     Rate the seller of a completed offer
// @Description Records a 1-5 star review. Only the buyer of a completed transaction may
// @Description rate, and only once per offer.
// @Tags        Ratings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"    example(buyer-1)
// @Param       id         path    string  true  "Offer ID (UUID)"  format(uuid)
// @Param       body       body    handlers.SubmitRatingRequest  true  "Rating payload"
//
// @Success     201  {object}  handlers.RatingResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Already rated or not ratable"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /offers/{id}/rating [post]
func (h *Handlers) SubmitRating(c *gin.Context) {
	offerID := c.Param("id")
	if _, err := uuid.Parse(offerID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a UUID")
		return
	}

	var req SubmitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		return
	}

	rev, err := h.ratingSvc.Submit(c.Request.Context(), userID(c), offerID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		case errors.Is(err, services.ErrDuplicateRating):
			fail(c, http.StatusConflict, ErrCodeConflict, "offer already rated")
		case errors.Is(err, services.ErrNotRatable):
			fail(c, http.StatusConflict, ErrCodeConflict, "transaction not completed")
		default:
			if failService(c, err) {
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, RatingResponse{Review: rev})
}
