// Offer HTTP handlers.
//
// This file exposes REST endpoints for the offer lifecycle:
//   - POST /requests/{id}/offers     (seller makes an offer)
//   - GET  /requests/{id}/offers     (list offers on a request)
//   - POST /offers/{id}/accept       (buyer accepts)
//   - POST /offers/{id}/reject       (buyer rejects)
//   - POST /offers/{id}/unlock       (reveal contact details)
//   - POST /offers/{id}/complete     (mark transaction done)
//   - POST /admin/offers/expire      (sweep stale pending offers)
//
// Handlers are transport-thin: they validate input, call OfferService, and
// translate sentinel errors into the stable error taxonomy.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/services"
)

//
// DTOs
//

// MakeOfferRequest is the JSON payload for a seller's offer.
type MakeOfferRequest struct {
	// Price is the quoted price. Must be positive.
	Price float64 `json:"price" binding:"required,gt=0" example:"85.50"`
	// Message optionally describes condition, warranty, or pickup terms.
	Message string `json:"message" example:"OEM set, 80% pad left"`
}

// OfferResponse is the JSON envelope for a single offer.
type OfferResponse struct {
	Offer *domain.Offer `json:"offer"`
}

// ListOffersResponse wraps all offers on one request.
type ListOffersResponse struct {
	Offers []domain.Offer `json:"offers"`
}

// ExpireOffersResponse reports how many offers a sweep expired.
type ExpireOffersResponse struct {
	Expired int64 `json:"expired"`
}

//
// Handlers
//

// MakeOffer godoc
// @ID          makeOffer
// @Summary     Make an offer on a part request
// @Description Records the caller's offer against an open request and notifies the buyer.
// @Description Sellers cannot bid on their own requests.
// @Tags        Offers
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Seller user ID"     example(seller-1)
// @Param       id         path    string  true  "Request ID (UUID)"  format(uuid)
// @Param       body       body    handlers.MakeOfferRequest  true  "Offer payload"
//
// @Success     201  {object}  handlers.OfferResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Own request"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse "Request closed to offers"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /requests/{id}/offers [post]
func (h *Handlers) MakeOffer(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	var req MakeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price required and must be positive")
		return
	}

	offer, err := h.offerSvc.Make(c.Request.Context(), userID(c), requestID, services.MakeOfferInput{
		Price:   req.Price,
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, services.ErrOwnRequestOffer) {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot make an offer on your own request")
			return
		}
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, OfferResponse{Offer: offer})
}

// ListOffers godoc
// @ID          listOffers
// @Summary     List offers on a request
// @Tags        Offers
// @Produce     json
//
// @Param       id  path  string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.ListOffersResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /requests/{id}/offers [get]
func (h *Handlers) ListOffers(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	offers, err := h.offerSvc.List(c.Request.Context(), requestID)
	if err != nil {
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListOffersResponse{Offers: offers})
}

// AcceptOffer godoc
// @ID          acceptOffer
// @Summary     Accept an offer
// @Description Accepts the offer on behalf of the request's buyer. At most one offer per
// @Description request can ever be accepted; concurrent or repeated attempts return 409.
// @Tags        Offers
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"    example(buyer-1)
// @Param       id         path    string  true  "Offer ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.OfferResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Another offer already accepted"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /offers/{id}/accept [post]
func (h *Handlers) AcceptOffer(c *gin.Context) {
	h.offerTransition(c, h.offerSvc.Accept)
}

// RejectOffer godoc
// @ID          rejectOffer
// @Summary     Reject an offer
// @Description Rejects a pending offer. Other pending offers on the request stay live.
// @Tags        Offers
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"    example(buyer-1)
// @Param       id         path    string  true  "Offer ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Offer not pending"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /offers/{id}/reject [post]
func (h *Handlers) RejectOffer(c *gin.Context) {
	offerID := c.Param("id")
	if _, err := uuid.Parse(offerID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a UUID")
		return
	}

	if err := h.offerSvc.Reject(c.Request.Context(), userID(c), offerID); err != nil {
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// UnlockOffer godoc
// @ID          unlockOffer
// @Summary     Unlock contact details
// @Description Reveals contact details for an accepted offer and notifies both parties.
// @Description Calling before acceptance, or twice, returns 409.
// @Tags        Offers
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"    example(buyer-1)
// @Param       id         path    string  true  "Offer ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.OfferResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Offer not accepted or already unlocked"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /offers/{id}/unlock [post]
func (h *Handlers) UnlockOffer(c *gin.Context) {
	h.offerTransition(c, h.offerSvc.Unlock)
}

// CompleteOffer godoc
// @ID          completeOffer
// @Summary     Mark transaction complete
// @Description Marks the accepted, unlocked offer's transaction as done. The request
// @Description reaches its terminal completed state and the seller becomes ratable.
// @Tags        Offers
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Buyer user ID"    example(buyer-1)
// @Param       id         path    string  true  "Offer ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.OfferResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Contact not unlocked yet"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /offers/{id}/complete [post]
func (h *Handlers) CompleteOffer(c *gin.Context) {
	h.offerTransition(c, h.offerSvc.Complete)
}

// ExpireOffers godoc
// @ID          expireOffers
// @Summary     Expire stale pending offers
// @Description Sweeps pending offers older than the configured TTL into expired.
// @Description Intended for the admin surface or a cron.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  handlers.ExpireOffersResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /admin/offers/expire [post]
func (h *Handlers) ExpireOffers(c *gin.Context) {
	n, err := h.offerSvc.ExpirePending(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ExpireOffersResponse{Expired: n})
}

// offerTransition is the shared shape of accept/unlock/complete: parse the
// offer id, run the transition for the current user, map errors, return the
// updated offer.
func (h *Handlers) offerTransition(c *gin.Context, fn func(ctx context.Context, buyerID, offerID string) (*domain.Offer, error)) {
	offerID := c.Param("id")
	if _, err := uuid.Parse(offerID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a UUID")
		return
	}

	offer, err := fn(c.Request.Context(), userID(c), offerID)
	if err != nil {
		if failService(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, OfferResponse{Offer: offer})
}
