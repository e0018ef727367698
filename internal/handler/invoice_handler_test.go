package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type invoiceServiceMock struct {
	generated []dto.GenerateInvoicesRequest
	principal models.Principal
}

func (m *invoiceServiceMock) List(ctx context.Context, p models.Principal, q dto.ListInvoicesQuery) ([]models.MonthlyInvoice, error) {
	m.principal = p
	return []models.MonthlyInvoice{{ID: "inv-1", OwnerID: p.UserID}}, nil
}

func (m *invoiceServiceMock) Generate(ctx context.Context, in dto.GenerateInvoicesRequest) (*dto.InvoiceRunResult, error) {
	m.generated = append(m.generated, in)
	return &dto.InvoiceRunResult{Year: 2025, Month: 2, Created: 2}, nil
}

func (m *invoiceServiceMock) MarkPaid(ctx context.Context, id string) (*models.MonthlyInvoice, error) {
	return &models.MonthlyInvoice{ID: id, Paid: true}, nil
}

func (m *invoiceServiceMock) Document(ctx context.Context, p models.Principal, id string) (*dto.InvoiceDocumentResponse, error) {
	if p.UserID != "renter-1" {
		return nil, appErrors.ErrForbidden
	}
	return &dto.InvoiceDocumentResponse{DownloadURL: "/api/v1/invoices/download/tok"}, nil
}

type downloaderMock struct{}

func (downloaderMock) Download(token string) (string, []byte, error) {
	if token != "tok" {
		return "", nil, appErrors.Clone(appErrors.ErrForbidden, "token expired")
	}
	return "invoice-inv-1.pdf", []byte("%PDF-1.3"), nil
}

func TestInvoiceHandlerGenerate(t *testing.T) {
	svc := &invoiceServiceMock{}
	h := NewInvoiceHandler(svc, downloaderMock{})

	c, w := newTestContext(http.MethodPost, "/invoices/generate", nil, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	h.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodPost, "/invoices/generate", []byte(`{"year":2024,"month":12}`), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	h.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodPost, "/invoices/generate", []byte(`{"year":"x"}`), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	h.Generate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []dto.GenerateInvoicesRequest{{}, {Year: 2024, Month: 12}}, svc.generated)
}

func TestInvoiceHandlerDocumentAndDownload(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceMock{}, downloaderMock{})

	c, w := newTestContext(http.MethodPost, "/invoices/inv-1/document", nil, renterClaims)
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	h.Document(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "/api/v1/invoices/download/tok", data["download_url"])

	c, w = newTestContext(http.MethodPost, "/invoices/inv-1/document", nil, &models.JWTClaims{UserID: "renter-2", Role: models.RoleRenter})
	h.Document(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodGet, "/invoices/download/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="invoice-inv-1.pdf"`, w.Header().Get("Content-Disposition"))

	c, w = newTestContext(http.MethodGet, "/invoices/download/old", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "old"}}
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type exporterMock struct {
	query dto.ListRequestsQuery
}

func (m *exporterMock) RequestsCSV(ctx context.Context, q dto.ListRequestsQuery) ([]byte, error) {
	m.query = q
	return []byte("id,title\nreq-1,Practice\n"), nil
}

func TestExportHandlerRequestsCSV(t *testing.T) {
	exporter := &exporterMock{}
	clk := clock.NewMockClock(time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC))
	h := NewExportHandler(exporter, clk)
	c, w := newTestContext(http.MethodGet, "/exports/requests.csv?status=approved&owner_id=renter-1", nil, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	h.RequestsCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renter-1", exporter.query.OwnerID)
	assert.Equal(t, `attachment; filename="requests-20250310-140000.csv"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "req-1,Practice")
}
