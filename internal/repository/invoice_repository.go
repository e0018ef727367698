package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rinkdesk/ice-booking-api/internal/models"
)

const invoiceColumns = `id, owner_id, contact_email, invoice_year, invoice_month, amount, request_ids, paid, file_path, created_at, updated_at`

// InvoiceRepository persists monthly invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns invoices matching the filter, newest month first.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.MonthlyInvoice, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("invoice_year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Month > 0 {
		where = append(where, fmt.Sprintf("invoice_month = $%d", len(args)+1))
		args = append(args, filter.Month)
	}
	if filter.Paid != nil {
		where = append(where, fmt.Sprintf("paid = $%d", len(args)+1))
		args = append(args, *filter.Paid)
	}
	query := fmt.Sprintf("SELECT %s FROM monthly_invoices WHERE %s ORDER BY invoice_year DESC, invoice_month DESC, owner_id ASC",
		invoiceColumns, strings.Join(where, " AND "))
	var invoices []models.MonthlyInvoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, fmt.Errorf("list monthly invoices: %w", err)
	}
	return invoices, nil
}

// GetByID fetches an invoice, returning sql.ErrNoRows when missing.
func (r *InvoiceRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MonthlyInvoice, error) {
	var invoice models.MonthlyInvoice
	if err := sqlx.GetContext(ctx, r.exec(exec), &invoice, "SELECT "+invoiceColumns+" FROM monthly_invoices WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreateIfAbsent inserts the invoice unless one exists for the owner and month.
// It reports whether a row was written.
func (r *InvoiceRepository) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, invoice *models.MonthlyInvoice) (bool, error) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const query = `
INSERT INTO monthly_invoices (id, owner_id, contact_email, invoice_year, invoice_month, amount, request_ids, paid, file_path, created_at, updated_at)
VALUES (:id, :owner_id, :contact_email, :invoice_year, :invoice_month, :amount, :request_ids, :paid, :file_path, :created_at, :updated_at)
ON CONFLICT (owner_id, invoice_year, invoice_month) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, invoice)
	if err != nil {
		return false, fmt.Errorf("insert monthly invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkPaid flags the invoice paid.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE monthly_invoices SET paid = TRUE, updated_at = $1 WHERE id = $2`
	return expectOne(r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), id))
}

// AdjustOpenForRequest shifts the total of every unpaid invoice that bills
// requestID by delta and reports how many invoices changed.
func (r *InvoiceRepository) AdjustOpenForRequest(ctx context.Context, exec sqlx.ExtContext, requestID string, delta float64) (int64, error) {
	const query = `UPDATE monthly_invoices SET amount = amount + $1, updated_at = $2 WHERE paid = FALSE AND $3 = ANY(request_ids)`
	res, err := r.exec(exec).ExecContext(ctx, query, delta, time.Now().UTC(), requestID)
	if err != nil {
		return 0, fmt.Errorf("adjust open invoices for request %s: %w", requestID, err)
	}
	return res.RowsAffected()
}

// SetFilePath records where the rendered document lives.
func (r *InvoiceRepository) SetFilePath(ctx context.Context, id, path string) error {
	const query = `UPDATE monthly_invoices SET file_path = $1, updated_at = $2 WHERE id = $3`
	return expectOne(r.db.ExecContext(ctx, query, path, time.Now().UTC(), id))
}
