package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type bookingRequestService interface {
	List(ctx context.Context, p models.Principal, q dto.ListRequestsQuery) ([]models.BookingRequest, *models.Pagination, *models.PaymentSummary, error)
	Get(ctx context.Context, p models.Principal, id string) (*models.BookingRequest, error)
	Submit(ctx context.Context, p models.Principal, in dto.SubmitRequest) (*models.BookingRequest, error)
	BookForRenter(ctx context.Context, p models.Principal, in dto.AdminBookingRequest) (*models.BookingRequest, error)
	Approve(ctx context.Context, id string, in dto.ApproveRequest) (*models.BookingRequest, error)
	Decline(ctx context.Context, id string, in dto.DeclineRequest) (*models.BookingRequest, error)
	UpdateEndDate(ctx context.Context, id string, in dto.UpdateEndDateRequest) (*models.BookingRequest, error)
	UpdateAmount(ctx context.Context, id string, in dto.UpdateAmountRequest) (*models.BookingRequest, error)
	MarkPaid(ctx context.Context, id string) (*models.BookingRequest, error)
	Delete(ctx context.Context, p models.Principal, id string) error
}

// BookingRequestHandler exposes renter booking requests and their review.
type BookingRequestHandler struct {
	service bookingRequestService
}

// NewBookingRequestHandler builds a new handler.
func NewBookingRequestHandler(service bookingRequestService) *BookingRequestHandler {
	return &BookingRequestHandler{service: service}
}

// List godoc
// @Summary List booking requests
// @Description Renters see their own requests. Admins see all and may filter by owner.
// @Tags Requests
// @Produce json
// @Param status query string false "pending, approved or declined"
// @Param owner_id query string false "Owner filter (admin only)"
// @Param from query string false "Start date lower bound"
// @Param to query string false "Start date upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *BookingRequestHandler) List(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var q dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	items, pagination, summary, err := h.service.List(c.Request.Context(), p, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if summary != nil {
		meta = map[string]interface{}{"payments": summary}
	}
	response.JSON(c, http.StatusOK, items, pagination, meta)
}

// Get godoc
// @Summary Get booking request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *BookingRequestHandler) Get(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Submit godoc
// @Summary Submit booking request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRequest true "Booking request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests [post]
func (h *BookingRequestHandler) Submit(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "request"))
		return
	}
	item, err := h.service.Submit(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// BookForRenter godoc
// @Summary Book ice on a renter's behalf
// @Description Creates an approved request billed to the given renter.
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.AdminBookingRequest true "Admin booking"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/admin [post]
func (h *BookingRequestHandler) BookForRenter(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.AdminBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "admin booking"))
		return
	}
	item, err := h.service.BookForRenter(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Approve godoc
// @Summary Approve booking request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveRequest true "Approval"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *BookingRequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "approval"))
		return
	}
	h.respond(c)(h.service.Approve(c.Request.Context(), c.Param("id"), req))
}

// Decline godoc
// @Summary Decline booking request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DeclineRequest true "Decline"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/decline [post]
func (h *BookingRequestHandler) Decline(c *gin.Context) {
	var req dto.DeclineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "decline"))
		return
	}
	h.respond(c)(h.service.Decline(c.Request.Context(), c.Param("id"), req))
}

// UpdateEndDate godoc
// @Summary Change the recurrence end date
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateEndDateRequest true "New end date"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/update [post]
func (h *BookingRequestHandler) UpdateEndDate(c *gin.Context) {
	var req dto.UpdateEndDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "update"))
		return
	}
	h.respond(c)(h.service.UpdateEndDate(c.Request.Context(), c.Param("id"), req))
}

// UpdateAmount godoc
// @Summary Change the agreed amount
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateAmountRequest true "New amount"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/update_amount [post]
func (h *BookingRequestHandler) UpdateAmount(c *gin.Context) {
	var req dto.UpdateAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "amount"))
		return
	}
	h.respond(c)(h.service.UpdateAmount(c.Request.Context(), c.Param("id"), req))
}

// MarkPaid godoc
// @Summary Mark booking request paid
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/mark_paid [post]
func (h *BookingRequestHandler) MarkPaid(c *gin.Context) {
	h.respond(c)(h.service.MarkPaid(c.Request.Context(), c.Param("id")))
}

// Delete godoc
// @Summary Delete booking request
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *BookingRequestHandler) Delete(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *BookingRequestHandler) respond(c *gin.Context) func(*models.BookingRequest, error) {
	return func(item *models.BookingRequest, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, item)
	}
}
