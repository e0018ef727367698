package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/models"
)

// Dates and times are rendered in their wire encodings so records never
// carry a driver-chosen time zone.
const timingColumns = `TO_CHAR(start_date, 'YYYY-MM-DD') AS start_date, TO_CHAR(end_date, 'YYYY-MM-DD') AS end_date,
TO_CHAR(start_time, 'FMHH12:MI AM') AS start_time, TO_CHAR(end_time, 'FMHH12:MI AM') AS end_time, recurrence`

const requestColumns = `id, owner_id, contact_email, title, description, status, decline_reason, ` + timingColumns + `, amount, paid, created_at, updated_at`

const lineColumns = `id, owner_id, contact_email, title, TO_CHAR(start_date, 'YYYY-MM-DD') AS start_date,
TO_CHAR(start_time, 'FMHH12:MI AM') AS start_time, TO_CHAR(end_time, 'FMHH12:MI AM') AS end_time, COALESCE(amount, 0) AS amount`

// BookingRequestRepository persists renter booking requests.
type BookingRequestRepository struct {
	db *sqlx.DB
}

// NewBookingRequestRepository constructs the repository.
func NewBookingRequestRepository(db *sqlx.DB) *BookingRequestRepository {
	return &BookingRequestRepository{db: db}
}

func (r *BookingRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns requests matching filters with the total count.
func (r *BookingRequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.BookingRequest, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.From != "" {
		where = append(where, fmt.Sprintf("end_date >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, filter.To)
	}
	whereClause := strings.Join(where, " AND ")
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM booking_requests WHERE %s ORDER BY start_date ASC, start_time ASC, id ASC LIMIT %d OFFSET %d`,
		requestColumns, whereClause, size, offset)
	var requests []models.BookingRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list booking requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM booking_requests WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count booking requests: %w", err)
	}
	return requests, total, nil
}

// GetByID fetches a request, returning sql.ErrNoRows when missing.
func (r *BookingRequestRepository) GetByID(ctx context.Context, id string) (*models.BookingRequest, error) {
	var req models.BookingRequest
	if err := r.db.GetContext(ctx, &req, "SELECT "+requestColumns+" FROM booking_requests WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetForUpdate fetches a request and locks its row for the rest of the transaction.
func (r *BookingRequestRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BookingRequest, error) {
	var req models.BookingRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, "SELECT "+requestColumns+" FROM booking_requests WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListApprovedBetween returns approved requests whose date span intersects
// [from, to]. Empty bounds are open.
func (r *BookingRequestRepository) ListApprovedBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.BookingRequest, error) {
	where := []string{"status = 'approved'"}
	args := []interface{}{}
	if from != "" {
		where = append(where, fmt.Sprintf("end_date >= $%d", len(args)+1))
		args = append(args, from)
	}
	if to != "" {
		where = append(where, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, to)
	}
	query := fmt.Sprintf("SELECT %s FROM booking_requests WHERE %s ORDER BY start_date ASC, id ASC", requestColumns, strings.Join(where, " AND "))
	var requests []models.BookingRequest
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list approved booking requests: %w", err)
	}
	return requests, nil
}

// Create inserts a new request.
func (r *BookingRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = booking.StatusPending
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	const query = `
INSERT INTO booking_requests (id, owner_id, contact_email, title, description, status, decline_reason, start_date, end_date, start_time, end_time, recurrence, amount, paid, created_at, updated_at)
VALUES (:id, :owner_id, :contact_email, :title, :description, :status, :decline_reason, :start_date, :end_date, :start_time, :end_time, :recurrence, :amount, :paid, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, req); err != nil {
		return fmt.Errorf("insert booking request: %w", err)
	}
	return nil
}

// UpdateReview persists the outcome of an approve or decline.
func (r *BookingRequestRepository) UpdateReview(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error {
	req.UpdatedAt = time.Now().UTC()
	const query = `UPDATE booking_requests SET status = $1, decline_reason = $2, amount = $3, updated_at = $4 WHERE id = $5`
	return expectOne(r.exec(exec).ExecContext(ctx, query, string(req.Status), req.DeclineReason, req.Amount, req.UpdatedAt, req.ID))
}

// UpdateEndDate moves the recurrence end date.
func (r *BookingRequestRepository) UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error {
	const query = `UPDATE booking_requests SET end_date = $1, updated_at = $2 WHERE id = $3`
	return expectOne(r.exec(exec).ExecContext(ctx, query, endDate, time.Now().UTC(), id))
}

// UpdateAmount sets the billed amount.
func (r *BookingRequestRepository) UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error {
	const query = `UPDATE booking_requests SET amount = $1, updated_at = $2 WHERE id = $3`
	return expectOne(r.exec(exec).ExecContext(ctx, query, amount, time.Now().UTC(), id))
}

// MarkPaid flags the given requests as paid and returns how many changed.
func (r *BookingRequestRepository) MarkPaid(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE booking_requests SET paid = TRUE, updated_at = $1 WHERE id = ANY($2) AND paid = FALSE`
	res, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark booking requests paid: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a request.
func (r *BookingRequestRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return expectOne(r.exec(exec).ExecContext(ctx, "DELETE FROM booking_requests WHERE id = $1", id))
}

// PaymentSummary totals approved amounts, optionally for one owner.
func (r *BookingRequestRepository) PaymentSummary(ctx context.Context, ownerID string) (*models.PaymentSummary, error) {
	query := `SELECT COALESCE(SUM(amount) FILTER (WHERE paid), 0) AS paid,
COALESCE(SUM(amount) FILTER (WHERE NOT paid), 0) AS unpaid,
COALESCE(SUM(amount), 0) AS total
FROM booking_requests WHERE status = 'approved' AND amount IS NOT NULL`
	args := []interface{}{}
	if ownerID != "" {
		query += " AND owner_id = $1"
		args = append(args, ownerID)
	}
	var summary models.PaymentSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("summarise payments: %w", err)
	}
	return &summary, nil
}

// ListBillable returns approved, unpaid, priced requests starting in [from, to].
func (r *BookingRequestRepository) ListBillable(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.InvoiceLine, error) {
	const query = `SELECT ` + lineColumns + ` FROM booking_requests
WHERE status = 'approved' AND paid = FALSE AND amount IS NOT NULL AND start_date BETWEEN $1 AND $2
ORDER BY owner_id ASC, start_date ASC, id ASC`
	var lines []models.InvoiceLine
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lines, query, from, to); err != nil {
		return nil, fmt.Errorf("list billable booking requests: %w", err)
	}
	return lines, nil
}

// ListLines returns invoice lines for the given request ids.
func (r *BookingRequestRepository) ListLines(ctx context.Context, ids []string) ([]models.InvoiceLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + lineColumns + ` FROM booking_requests WHERE id = ANY($1) ORDER BY start_date ASC, start_time ASC, id ASC`
	var lines []models.InvoiceLine
	if err := r.db.SelectContext(ctx, &lines, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	return lines, nil
}

func pageWindow(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return size, (page - 1) * size
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
