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

const eventColumns = `id, created_by, title, description, ` + timingColumns + `, amount, paid, created_at, updated_at`

// AdminEventRepository persists rink-owned occupancy blocks.
type AdminEventRepository struct {
	db *sqlx.DB
}

// NewAdminEventRepository constructs the repository.
func NewAdminEventRepository(db *sqlx.DB) *AdminEventRepository {
	return &AdminEventRepository{db: db}
}

func (r *AdminEventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns events whose span intersects the filter window.
func (r *AdminEventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.AdminEvent, int, error) {
	where, args := spanWhere(filter.From, filter.To)
	whereClause := strings.Join(where, " AND ")
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM admin_events WHERE %s ORDER BY start_date ASC, start_time ASC, id ASC LIMIT %d OFFSET %d`,
		eventColumns, whereClause, size, offset)
	var events []models.AdminEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admin events: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM admin_events WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count admin events: %w", err)
	}
	return events, total, nil
}

// ListBetween returns every event intersecting [from, to]; empty bounds are open.
func (r *AdminEventRepository) ListBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.AdminEvent, error) {
	where, args := spanWhere(from, to)
	query := fmt.Sprintf("SELECT %s FROM admin_events WHERE %s ORDER BY start_date ASC, id ASC", eventColumns, strings.Join(where, " AND "))
	var events []models.AdminEvent
	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query, args...); err != nil {
		return nil, fmt.Errorf("list admin events between: %w", err)
	}
	return events, nil
}

// GetByID fetches an event, returning sql.ErrNoRows when missing.
func (r *AdminEventRepository) GetByID(ctx context.Context, id string) (*models.AdminEvent, error) {
	var event models.AdminEvent
	if err := r.db.GetContext(ctx, &event, "SELECT "+eventColumns+" FROM admin_events WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetForUpdate fetches an event and locks its row.
func (r *AdminEventRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AdminEvent, error) {
	var event models.AdminEvent
	if err := sqlx.GetContext(ctx, r.exec(exec), &event, "SELECT "+eventColumns+" FROM admin_events WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts an event.
func (r *AdminEventRepository) Create(ctx context.Context, exec sqlx.ExtContext, event *models.AdminEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `
INSERT INTO admin_events (id, created_by, title, description, start_date, end_date, start_time, end_time, recurrence, amount, paid, created_at, updated_at)
VALUES (:id, :created_by, :title, :description, :start_date, :end_date, :start_time, :end_time, :recurrence, :amount, :paid, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("insert admin event: %w", err)
	}
	return nil
}

// UpdateEndDate moves the recurrence end date.
func (r *AdminEventRepository) UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error {
	const query = `UPDATE admin_events SET end_date = $1, updated_at = $2 WHERE id = $3`
	return expectOne(r.exec(exec).ExecContext(ctx, query, endDate, time.Now().UTC(), id))
}

// UpdateAmount sets the billed amount.
func (r *AdminEventRepository) UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error {
	const query = `UPDATE admin_events SET amount = $1, updated_at = $2 WHERE id = $3`
	return expectOne(r.exec(exec).ExecContext(ctx, query, amount, time.Now().UTC(), id))
}

// MarkPaid flags the event paid.
func (r *AdminEventRepository) MarkPaid(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE admin_events SET paid = TRUE, updated_at = $1 WHERE id = $2`
	return expectOne(r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), id))
}

// Delete removes an event.
func (r *AdminEventRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return expectOne(r.exec(exec).ExecContext(ctx, "DELETE FROM admin_events WHERE id = $1", id))
}

func spanWhere(from, to string) ([]string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if from != "" {
		where = append(where, fmt.Sprintf("end_date >= $%d", len(args)+1))
		args = append(args, from)
	}
	if to != "" {
		where = append(where, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, to)
	}
	return where, args
}
