package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/middleware"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type calendarService interface {
	Calendar(ctx context.Context, q dto.CalendarQuery) (*dto.CalendarResponse, bool, error)
	ICS(ctx context.Context, q dto.CalendarQuery) ([]byte, error)
}

// CalendarHandler serves the projected occupancy calendar.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler builds a new handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// Calendar godoc
// @Summary Occupancy calendar
// @Tags Calendar
// @Produce json
// @Param month query string false "YYYY-MM, wins over start/end"
// @Param start query string false "First day"
// @Param end query string false "Last day"
// @Success 200 {object} response.Envelope
// @Router /calendar [get]
func (h *CalendarHandler) Calendar(c *gin.Context) {
	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	resp, hit, err := h.service.Calendar(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.CalendarServed(c, hit, resp.Start, resp.End, len(resp.Days))
	response.JSON(c, http.StatusOK, resp, nil, middleware.Meta(c))
}

// ICS godoc
// @Summary Occupancy calendar as iCalendar
// @Tags Calendar
// @Produce text/calendar
// @Param month query string false "YYYY-MM"
// @Param start query string false "First day"
// @Param end query string false "Last day"
// @Success 200 {string} string "text/calendar"
// @Router /calendar.ics [get]
func (h *CalendarHandler) ICS(c *gin.Context) {
	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	data, err := h.service.ICS(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "text/calendar; charset=utf-8", "rink-calendar.ics", data)
}
