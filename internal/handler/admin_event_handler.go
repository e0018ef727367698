package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type adminEventService interface {
	List(ctx context.Context, q dto.ListEventsQuery) ([]models.AdminEvent, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.AdminEvent, error)
	Create(ctx context.Context, p models.Principal, in dto.CreateEventRequest) (*models.AdminEvent, error)
	UpdateEndDate(ctx context.Context, id string, in dto.UpdateEndDateRequest) (*models.AdminEvent, error)
	UpdateAmount(ctx context.Context, id string, in dto.UpdateAmountRequest) (*models.AdminEvent, error)
	MarkPaid(ctx context.Context, id string) (*models.AdminEvent, error)
	Delete(ctx context.Context, id string) error
}

// AdminEventHandler exposes rink-owned occupancy blocks.
type AdminEventHandler struct {
	service adminEventService
}

// NewAdminEventHandler builds a new handler.
func NewAdminEventHandler(service adminEventService) *AdminEventHandler {
	return &AdminEventHandler{service: service}
}

// List godoc
// @Summary List admin events
// @Tags Events
// @Produce json
// @Param from query string false "Start date lower bound"
// @Param to query string false "Start date upper bound"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *AdminEventHandler) List(c *gin.Context) {
	var q dto.ListEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get admin event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *AdminEventHandler) Get(c *gin.Context) {
	h.respond(c)(h.service.Get(c.Request.Context(), c.Param("id")))
}

// Create godoc
// @Summary Create admin event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.CreateEventRequest true "Event"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events [post]
func (h *AdminEventHandler) Create(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "event"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateEndDate godoc
// @Summary Change the event recurrence end date
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEndDateRequest true "New end date"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/update [post]
func (h *AdminEventHandler) UpdateEndDate(c *gin.Context) {
	var req dto.UpdateEndDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "update"))
		return
	}
	h.respond(c)(h.service.UpdateEndDate(c.Request.Context(), c.Param("id"), req))
}

// UpdateAmount godoc
// @Summary Change the event amount
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateAmountRequest true "New amount"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/update_amount [post]
func (h *AdminEventHandler) UpdateAmount(c *gin.Context) {
	var req dto.UpdateAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "amount"))
		return
	}
	h.respond(c)(h.service.UpdateAmount(c.Request.Context(), c.Param("id"), req))
}

// MarkPaid godoc
// @Summary Mark admin event paid
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/mark_paid [post]
func (h *AdminEventHandler) MarkPaid(c *gin.Context) {
	h.respond(c)(h.service.MarkPaid(c.Request.Context(), c.Param("id")))
}

// Delete godoc
// @Summary Delete admin event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *AdminEventHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *AdminEventHandler) respond(c *gin.Context) func(*models.AdminEvent, error) {
	return func(item *models.AdminEvent, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, item)
	}
}
