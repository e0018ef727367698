package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
	"github.com/rinkdesk/ice-booking-api/pkg/storage"
)

type lineListerStub struct {
	lines []models.InvoiceLine
}

func (s lineListerStub) ListLines(ctx context.Context, ids []string) ([]models.InvoiceLine, error) {
	return s.lines, nil
}

func newExportServiceForTest(t *testing.T, requests requestPager) (*ExportService, *storage.LocalStorage, *clock.MockClock) {
	svc, store, _, clk := newExportServiceInDir(t, requests, t.TempDir())
	return svc, store, clk
}

func newExportServiceInDir(t *testing.T, requests requestPager, dir string) (*ExportService, *storage.LocalStorage, string, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(fixtureNow)
	store, err := storage.NewLocalStorage(dir, clk)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour, clk)
	lines := lineListerStub{lines: []models.InvoiceLine{
		{RequestID: "req-1", OwnerID: "renter-1", Title: "Practice", StartDate: "2025-02-06", StartTime: "6:00 PM", EndTime: "7:00 PM", Amount: 100},
		{RequestID: "req-2", OwnerID: "renter-1", Title: "Scrimmage", StartDate: "2025-02-13", StartTime: "6:00 PM", EndTime: "7:30 PM", Amount: 150.5},
	}}
	cfg := ExportConfig{APIPrefix: "/api/v1/", RinkName: "Northside Ice"}
	svc := NewExportService(requests, lines, store, signer, cfg, zap.NewNop(), nil, nil)
	return svc, store, dir, clk
}

func testInvoice() *models.MonthlyInvoice {
	return &models.MonthlyInvoice{
		ID:           "inv-1",
		OwnerID:      "renter-1",
		ContactEmail: "renter@example.com",
		Year:         2025,
		Month:        2,
		Amount:       250.5,
		RequestIDs:   []string{"req-1", "req-2"},
	}
}

func TestExportServiceRequestsCSV(t *testing.T) {
	r1 := request("req-1", "renter-1", booking.StatusApproved, slot("2025-03-20", "6:00 PM", "7:00 PM"))
	r1.Amount = amount(99.5)
	reason := "double booked"
	r2 := request("req-2", "renter-2", booking.StatusDeclined, slot("2025-03-21", "6:00 PM", "7:00 PM"))
	r2.DeclineReason = &reason
	requests := newRequestStore(r1, r2)
	svc, _, _ := newExportServiceForTest(t, requests)

	data, err := svc.RequestsCSV(context.Background(), dto.ListRequestsQuery{Status: "declined"})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDeclined, requests.lastFilter.Status)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, requestExportHeaders, rows[0])
	assert.Equal(t, "req-2", rows[1][0])
	assert.Equal(t, "double booked", rows[1][12])

	data, err = svc.RequestsCSV(context.Background(), dto.ListRequestsQuery{Status: "approved"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "99.50")
}

func TestExportServiceInvoicePDFAndDownload(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t, newRequestStore())

	relPath, err := svc.InvoicePDF(context.Background(), testInvoice())
	require.NoError(t, err)
	assert.Equal(t, "2025-02/inv-1.pdf", relPath)

	file, err := store.Open(relPath)
	require.NoError(t, err)
	info, err := file.Stat()
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Greater(t, info.Size(), int64(0))

	link, err := svc.SignedURL("inv-1", relPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.DownloadURL, "/api/v1/invoices/download/"))
	assert.Equal(t, fixtureNow.Add(time.Hour).Unix(), link.ExpiresAt.Unix())

	token := strings.TrimPrefix(link.DownloadURL, "/api/v1/invoices/download/")
	name, data, err := svc.Download(token)
	require.NoError(t, err)
	assert.Equal(t, "invoice-inv-1.pdf", name)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestExportServiceDownloadFailures(t *testing.T) {
	svc, _, clk := newExportServiceForTest(t, newRequestStore())

	_, _, err := svc.Download("garbage")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	link, err := svc.SignedURL("inv-1", "2025-02/missing.pdf")
	require.NoError(t, err)
	token := strings.TrimPrefix(link.DownloadURL, "/api/v1/invoices/download/")
	_, _, err = svc.Download(token)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	clk.Add(2 * time.Hour)
	_, _, err = svc.Download(token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestExportServiceCleanupDocuments(t *testing.T) {
	svc, _, dir, clk := newExportServiceInDir(t, newRequestStore(), t.TempDir())

	relPath, err := svc.InvoicePDF(context.Background(), testInvoice())
	require.NoError(t, err)
	stale := fixtureNow.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, relPath), stale, stale))

	removed, err := svc.CleanupDocuments(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	clk.Add(time.Minute)
	removed, err = svc.CleanupDocuments(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
