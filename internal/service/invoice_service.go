package service

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/internal/repository"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.MonthlyInvoice, error)
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MonthlyInvoice, error)
	CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, invoice *models.MonthlyInvoice) (bool, error)
	MarkPaid(ctx context.Context, exec sqlx.ExtContext, id string) error
	SetFilePath(ctx context.Context, id, path string) error
}

type billableRequests interface {
	ListBillable(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.InvoiceLine, error)
	MarkPaid(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
}

type invoiceNotifier interface {
	InvoiceReady(ctx context.Context, inv *models.MonthlyInvoice)
}

type invoiceDocuments interface {
	InvoicePDF(ctx context.Context, inv *models.MonthlyInvoice) (string, error)
	SignedURL(documentID, relPath string) (*dto.InvoiceDocumentResponse, error)
	Discard(relPath string)
}

// InvoiceDeps wires the invoice service.
type InvoiceDeps struct {
	DB        txProvider
	Invoices  invoiceRepository
	Requests  billableRequests
	Documents invoiceDocuments
	Notifier  invoiceNotifier
	Norm      *booking.Normalizer
	Validator *validator.Validate
	Logger    *zap.Logger
}

// InvoiceService bills approved, unpaid requests once a month per renter.
type InvoiceService struct {
	tx        txProvider
	invoices  invoiceRepository
	requests  billableRequests
	documents invoiceDocuments
	notifier  invoiceNotifier
	norm      *booking.Normalizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInvoiceService constructs the service.
func NewInvoiceService(deps InvoiceDeps) *InvoiceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		tx:        deps.DB,
		invoices:  deps.Invoices,
		requests:  deps.Requests,
		documents: deps.Documents,
		notifier:  deps.Notifier,
		norm:      deps.Norm,
		validator: newValidator(deps.Validator),
		logger:    logger.Named("invoices"),
	}
}

// Generate creates one invoice per renter for the requested month. Renters
// already invoiced for that month are skipped, so reruns are harmless.
func (s *InvoiceService) Generate(ctx context.Context, in dto.GenerateInvoicesRequest) (result *dto.InvoiceRunResult, err error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid invoice period")
	}
	if (in.Year == 0) != (in.Month == 0) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year and month must be given together")
	}
	year, month := in.Year, time.Month(in.Month)
	if year == 0 {
		prev := s.norm.Today().AddMonths(-1)
		year, month = prev.Year, prev.Month
	}
	from := booking.NewDate(year, month, 1)
	to := from.AddMonths(1).AddDays(-1)

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lines, err := s.requests.ListBillable(ctx, tx, from.String(), to.String())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billable requests")
	}

	result = &dto.InvoiceRunResult{Year: year, Month: int(month), InvoiceIDs: []string{}}
	var created []*models.MonthlyInvoice
	for _, inv := range groupInvoices(lines, year, int(month)) {
		ok, err := s.invoices.CreateIfAbsent(ctx, tx, inv)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
		}
		if !ok {
			result.Skipped++
			continue
		}
		result.Created++
		result.InvoiceIDs = append(result.InvoiceIDs, inv.ID)
		created = append(created, inv)
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit invoices")
	}

	s.logger.Info("monthly invoices generated",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	if s.notifier != nil {
		for _, inv := range created {
			s.notifier.InvoiceReady(ctx, inv)
		}
	}
	return result, nil
}

// groupInvoices folds owner-ordered lines into one invoice per owner.
func groupInvoices(lines []models.InvoiceLine, year, month int) []*models.MonthlyInvoice {
	var out []*models.MonthlyInvoice
	var current *models.MonthlyInvoice
	for _, line := range lines {
		if current == nil || current.OwnerID != line.OwnerID {
			current = &models.MonthlyInvoice{OwnerID: line.OwnerID, ContactEmail: line.ContactEmail, Year: year, Month: month}
			out = append(out, current)
		}
		if current.ContactEmail == "" {
			current.ContactEmail = line.ContactEmail
		}
		current.Amount = math.Round((current.Amount+line.Amount)*100) / 100
		current.RequestIDs = append(current.RequestIDs, line.RequestID)
	}
	return out
}

// List returns invoices visible to the caller.
func (s *InvoiceService) List(ctx context.Context, p models.Principal, q dto.ListInvoicesQuery) ([]models.MonthlyInvoice, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, validationError(err, "invalid invoice filters")
	}
	filter := models.InvoiceFilter{OwnerID: q.OwnerID, Year: q.Year, Month: q.Month, Paid: q.Paid}
	if !p.IsAdmin() {
		filter.OwnerID = p.UserID
	}
	invoices, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	return invoices, nil
}

// MarkPaid settles an invoice and every request it covers. Repeating it is a no-op.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string) (inv *models.MonthlyInvoice, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inv, err = s.invoices.GetByID(ctx, tx, id)
	if err != nil {
		return nil, invoiceLookupError(err)
	}
	if !inv.Paid {
		if err = s.invoices.MarkPaid(ctx, tx, inv.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark invoice paid")
		}
		if _, err = s.requests.MarkPaid(ctx, tx, inv.RequestIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark invoiced requests paid")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit invoice payment")
	}
	inv.Paid = true
	return inv, nil
}

// Document renders the invoice PDF and returns a signed download link.
func (s *InvoiceService) Document(ctx context.Context, p models.Principal, id string) (*dto.InvoiceDocumentResponse, error) {
	inv, err := s.invoices.GetByID(ctx, nil, id)
	if err != nil {
		return nil, invoiceLookupError(err)
	}
	if !p.IsAdmin() && inv.OwnerID != p.UserID {
		return nil, appErrors.ErrForbidden
	}

	relPath, err := s.documents.InvoicePDF(ctx, inv)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.SetFilePath(ctx, inv.ID, relPath); err != nil {
		s.documents.Discard(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record invoice document")
	}
	return s.documents.SignedURL(inv.ID, relPath)
}

func invoiceLookupError(err error) error {
	if repository.IsNotFound(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
}
