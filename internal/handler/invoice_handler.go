package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type invoiceService interface {
	List(ctx context.Context, p models.Principal, q dto.ListInvoicesQuery) ([]models.MonthlyInvoice, error)
	Generate(ctx context.Context, in dto.GenerateInvoicesRequest) (*dto.InvoiceRunResult, error)
	MarkPaid(ctx context.Context, id string) (*models.MonthlyInvoice, error)
	Document(ctx context.Context, p models.Principal, id string) (*dto.InvoiceDocumentResponse, error)
}

type documentDownloader interface {
	Download(token string) (string, []byte, error)
}

// InvoiceHandler exposes monthly invoices and their PDF documents.
type InvoiceHandler struct {
	invoices  invoiceService
	downloads documentDownloader
}

// NewInvoiceHandler builds a new handler.
func NewInvoiceHandler(invoices invoiceService, downloads documentDownloader) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, downloads: downloads}
}

// List godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param owner_id query string false "Owner filter (admin only)"
// @Param year query int false "Year"
// @Param month query int false "Month"
// @Param paid query bool false "Paid filter"
// @Success 200 {object} response.Envelope
// @Router /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var q dto.ListInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "query"))
		return
	}
	items, err := h.invoices.List(c.Request.Context(), p, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Generate godoc
// @Summary Generate monthly invoices
// @Description Idempotent per owner and month. An empty body bills the previous month.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param payload body dto.GenerateInvoicesRequest false "Billing month"
// @Success 200 {object} response.Envelope
// @Router /invoices/generate [post]
func (h *InvoiceHandler) Generate(c *gin.Context) {
	var req dto.GenerateInvoicesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invoice run"))
			return
		}
	}
	result, err := h.invoices.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkPaid godoc
// @Summary Mark invoice paid
// @Description Also marks every request on the invoice paid.
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/mark_paid [post]
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	inv, err := h.invoices.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, inv)
}

// Document godoc
// @Summary Render invoice PDF
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/document [post]
func (h *InvoiceHandler) Document(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	link, err := h.invoices.Document(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

// Download godoc
// @Summary Download invoice PDF via signed token
// @Tags Invoices
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /invoices/download/{token} [get]
func (h *InvoiceHandler) Download(c *gin.Context) {
	name, data, err := h.downloads.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "application/pdf", name, data)
}
