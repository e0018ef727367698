package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var requestRowColumns = []string{"id", "owner_id", "contact_email", "title", "description", "status", "decline_reason",
	"start_date", "end_date", "start_time", "end_time", "recurrence", "amount", "paid", "created_at", "updated_at"}

func TestBookingRequestRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow("req-1", "user-1", "a@example.com", "Hockey", "", "approved", nil, "2025-03-17", "2025-03-17", "6:00 PM", "7:30 PM", "none", "50.00", false, now, now)
	mock.ExpectQuery(`SELECT id, owner_id, .* FROM booking_requests WHERE 1=1 AND owner_id = \$1 AND status = \$2 ORDER BY start_date ASC, start_time ASC, id ASC LIMIT 50 OFFSET 0`).
		WithArgs("user-1", "approved").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM booking_requests WHERE 1=1 AND owner_id = $1 AND status = $2")).
		WithArgs("user-1", "approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.RequestFilter{OwnerID: "user-1", Status: booking.StatusApproved})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, booking.StatusApproved, list[0].Status)
	assert.Equal(t, "6:00 PM", list[0].StartTime)
	require.NotNil(t, list[0].Amount)
	assert.InDelta(t, 50.0, *list[0].Amount, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO booking_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.BookingRequest{
		OwnerID: "user-1",
		Title:   "Figure skating",
		Timing: models.Timing{
			StartDate: "2025-03-03", EndDate: "2025-03-31",
			StartTime: "5:00 PM", EndTime: "6:00 PM",
			Recurrence: booking.RuleWeekly,
		},
	}
	require.NoError(t, repo.Create(context.Background(), nil, req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, booking.StatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryGetForUpdateInTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM booking_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(requestRowColumns).
			AddRow("req-1", "user-1", "", "Hockey", "", "pending", nil, "2025-03-17", "2025-03-17", "6:00 PM", "7:30 PM", "none", nil, false, now, now))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	req, err := repo.GetForUpdate(context.Background(), tx, "req-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Nil(t, req.Amount)
	assert.Equal(t, booking.RuleNone, req.Recurrence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryUpdateReviewNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	amount := 50.0
	mock.ExpectExec(regexp.QuoteMeta("UPDATE booking_requests SET status = $1, decline_reason = $2, amount = $3, updated_at = $4 WHERE id = $5")).
		WithArgs("approved", nil, amount, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateReview(context.Background(), nil, &models.BookingRequest{ID: "missing", Status: booking.StatusApproved, Billing: models.Billing{Amount: &amount}})
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryListApprovedBetween(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	mock.ExpectQuery(`FROM booking_requests WHERE status = 'approved' AND end_date >= \$1 AND start_date <= \$2 ORDER BY start_date ASC, id ASC`).
		WithArgs("2025-03-01", "2025-03-31").
		WillReturnRows(sqlmock.NewRows(requestRowColumns))

	list, err := repo.ListApprovedBetween(context.Background(), nil, "2025-03-01", "2025-03-31")
	require.NoError(t, err)
	assert.Empty(t, list)

	mock.ExpectQuery(`FROM booking_requests WHERE status = 'approved' ORDER BY`).
		WillReturnRows(sqlmock.NewRows(requestRowColumns))
	_, err = repo.ListApprovedBetween(context.Background(), nil, "", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE booking_requests SET paid = TRUE, updated_at = $1 WHERE id = ANY($2) AND paid = FALSE")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkPaid(context.Background(), nil, []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.MarkPaid(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryPaymentSummary(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	mock.ExpectQuery(`FROM booking_requests WHERE status = 'approved' AND amount IS NOT NULL AND owner_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"paid", "unpaid", "total"}).AddRow(50.0, 25.0, 75.0))

	summary, err := repo.PaymentSummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSummary{Paid: 50, Unpaid: 25, Total: 75}, *summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRequestRepositoryListLines(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRequestRepository(db)

	mock.ExpectQuery(`FROM booking_requests WHERE id = ANY\(\$1\) ORDER BY start_date ASC`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "contact_email", "title", "start_date", "start_time", "end_time", "amount"}).
			AddRow("req-1", "user-1", "a@example.com", "Hockey", "2025-03-17", "6:00 PM", "7:30 PM", 50.0))

	lines, err := repo.ListLines(context.Background(), []string{"req-1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "6:00 PM", lines[0].StartTime)
	assert.Equal(t, 50.0, lines[0].Amount)

	lines, err = repo.ListLines(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, lines)
	assert.NoError(t, mock.ExpectationsWereMet())
}
