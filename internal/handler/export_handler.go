package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type requestExporter interface {
	RequestsCSV(ctx context.Context, q dto.ListRequestsQuery) ([]byte, error)
}

// ExportHandler streams tabular exports.
type ExportHandler struct {
	exporter requestExporter
	clock    clock.Clock
}

// NewExportHandler builds a new handler.
func NewExportHandler(exporter requestExporter, clk clock.Clock) *ExportHandler {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &ExportHandler{exporter: exporter, clock: clk}
}

// RequestsCSV godoc
// @Summary Export booking requests as CSV
// @Tags Exports
// @Produce text/csv
// @Param status query string false "pending, approved or declined"
// @Param owner_id query string false "Owner filter"
// @Success 200 {file} file
// @Router /exports/requests.csv [get]
func (h *ExportHandler) RequestsCSV(c *gin.Context) {
	var q dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	data, err := h.exporter.RequestsCSV(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	name := fmt.Sprintf("requests-%s.csv", h.clock.Now().Format("20060102-150405"))
	response.Attachment(c, "text/csv; charset=utf-8", name, data)
}
