package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
	"github.com/rinkdesk/ice-booking-api/pkg/export"
	"github.com/rinkdesk/ice-booking-api/pkg/storage"
)

// exportPageSize is the batch used when paging through requests for export.
const exportPageSize = 200

type requestPager interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.BookingRequest, int, error)
}

type invoiceLineLister interface {
	ListLines(ctx context.Context, ids []string) ([]models.InvoiceLine, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	RinkName  string
}

// ExportService renders request CSVs and invoice PDFs and hands out signed
// download links for stored documents.
type ExportService struct {
	requests requestPager
	lines    invoiceLineLister
	storage  fileStorage
	signer   *storage.SignedURLSigner
	csv      csvRenderer
	pdf      pdfRenderer
	cfg      ExportConfig
	logger   *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers default to the pkg/export ones.
func NewExportService(requests requestPager, lines invoiceLineLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests: requests,
		lines:    lines,
		storage:  store,
		signer:   signer,
		csv:      csv,
		pdf:      pdf,
		cfg:      cfg,
		logger:   logger,
	}
}

var requestExportHeaders = []string{
	"id", "owner_id", "contact_email", "title", "status", "start_date", "end_date",
	"start_time", "end_time", "recurrence", "amount", "paid", "decline_reason",
}

// RequestsCSV exports every request matching the filters.
func (s *ExportService) RequestsCSV(ctx context.Context, q dto.ListRequestsQuery) ([]byte, error) {
	filter := models.RequestFilter{OwnerID: q.OwnerID, Status: booking.Status(q.Status), PageSize: exportPageSize}
	var err error
	if filter.From, err = normaliseDate(q.From); err != nil {
		return nil, err
	}
	if filter.To, err = normaliseDate(q.To); err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: requestExportHeaders}
	for page, seen := 1, 0; ; page++ {
		filter.Page = page
		batch, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requests for export")
		}
		for _, req := range batch {
			dataset.Append(
				req.ID, req.OwnerID, req.ContactEmail, req.Title, string(req.Status),
				req.StartDate, req.EndDate, req.StartTime, req.EndTime, string(req.Recurrence),
				formatAmount(req.Amount), strconv.FormatBool(req.Paid), derefString(req.DeclineReason),
			)
		}
		seen += len(batch)
		if len(batch) == 0 || seen >= total {
			break
		}
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, nil
}

// InvoicePDF renders and stores an invoice document, returning its storage path.
func (s *ExportService) InvoicePDF(ctx context.Context, inv *models.MonthlyInvoice) (string, error) {
	lines, err := s.lines.ListLines(ctx, inv.RequestIDs)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice lines")
	}

	status := "UNPAID"
	if inv.Paid {
		status = "PAID"
	}
	doc := export.Document{
		Title: fmt.Sprintf("%s invoice %04d-%02d", s.cfg.RinkName, inv.Year, inv.Month),
		Lines: []string{
			"Invoice: " + inv.ID,
			"Billed to: " + billedTo(inv),
			"Status: " + status,
		},
		Table:  export.Dataset{Headers: []string{"Date", "Time", "Booking", "Amount"}},
		Widths: []float64{30, 45, 85, 30},
		Footer: fmt.Sprintf("Total: $%.2f", inv.Amount),
	}
	for _, line := range lines {
		doc.Table.Append(line.StartDate, line.StartTime+" - "+line.EndTime, line.Title, fmt.Sprintf("$%.2f", line.Amount))
	}

	data, err := s.pdf.Render(doc)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice")
	}
	name := fmt.Sprintf("%04d-%02d/%s.pdf", inv.Year, inv.Month, inv.ID)
	relPath, err := s.storage.Save(name, data)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store invoice")
	}
	return relPath, nil
}

// SignedURL issues a download link for a stored document.
func (s *ExportService) SignedURL(documentID, relPath string) (*dto.InvoiceDocumentResponse, error) {
	token, expiresAt, err := s.signer.Generate(documentID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	url := strings.TrimRight(s.cfg.APIPrefix, "/") + "/invoices/download/" + token
	return &dto.InvoiceDocumentResponse{DownloadURL: url, ExpiresAt: expiresAt}, nil
}

// Download resolves a signed token to the stored document.
func (s *ExportService) Download(token string) (string, []byte, error) {
	documentID, relPath, err := s.signer.Parse(token)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return "", nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return "", nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, appErrors.Clone(appErrors.ErrNotFound, "document no longer available")
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document")
	}
	return fmt.Sprintf("invoice-%s.pdf", documentID), data, nil
}

// Discard removes a stored document, logging failures.
func (s *ExportService) Discard(relPath string) {
	if err := s.storage.Delete(relPath); err != nil {
		s.logger.Warn("failed to discard document", zap.String("path", relPath), zap.Error(err))
	}
}

// CleanupDocuments removes stored documents older than ttl.
func (s *ExportService) CleanupDocuments(ttl time.Duration) (int, error) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("invoice documents removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

func billedTo(inv *models.MonthlyInvoice) string {
	if inv.ContactEmail == "" {
		return inv.OwnerID
	}
	return fmt.Sprintf("%s <%s>", inv.OwnerID, inv.ContactEmail)
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return ""
	}
	return strconv.FormatFloat(*amount, 'f', 2, 64)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
