package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/clock"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// txPool hands every transaction its own mock connection so concurrent
// writers never share expectations.
type txPool struct {
	dbs  []*sqlx.DB
	next int32
}

func newTxPool(t *testing.T, size int) *txPool {
	pool := &txPool{}
	for i := 0; i < size; i++ {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.MatchExpectationsInOrder(false)
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
		t.Cleanup(func() { db.Close() })
		pool.dbs = append(pool.dbs, sqlx.NewDb(db, "sqlmock"))
	}
	return pool
}

func (p *txPool) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	i := atomic.AddInt32(&p.next, 1) - 1
	return p.dbs[int(i)%len(p.dbs)].BeginTxx(ctx, opts)
}

type requestStore struct {
	mu         sync.Mutex
	byID       map[string]models.BookingRequest
	seq        int
	updateErrs []error
	lastFilter models.RequestFilter
}

func newRequestStore(reqs ...models.BookingRequest) *requestStore {
	s := &requestStore{byID: make(map[string]models.BookingRequest)}
	for _, r := range reqs {
		s.byID[r.ID] = r
	}
	return s
}

func (s *requestStore) get(id string) models.BookingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *requestStore) List(ctx context.Context, filter models.RequestFilter) ([]models.BookingRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	var out []models.BookingRequest
	for _, r := range s.byID {
		if filter.OwnerID != "" && r.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (s *requestStore) GetByID(ctx context.Context, id string) (*models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s *requestStore) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BookingRequest, error) {
	return s.GetByID(ctx, id)
}

func (s *requestStore) Create(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	req.ID = fmt.Sprintf("req-new-%d", s.seq)
	s.byID[req.ID] = *req
	return nil
}

func (s *requestStore) UpdateReview(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updateErrs) > 0 {
		err := s.updateErrs[0]
		s.updateErrs = s.updateErrs[1:]
		return err
	}
	s.byID[req.ID] = *req
	return nil
}

func (s *requestStore) UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.EndDate = endDate
	s.byID[id] = r
	return nil
}

func (s *requestStore) UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.Amount = &amount
	s.byID[id] = r
	return nil
}

func (s *requestStore) MarkPaid(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := s.byID[id]; ok && !r.Paid {
			r.Paid = true
			s.byID[id] = r
			n++
		}
	}
	return n, nil
}

func (s *requestStore) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *requestStore) PaymentSummary(ctx context.Context, ownerID string) (*models.PaymentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &models.PaymentSummary{}
	for _, r := range s.byID {
		if r.Status != booking.StatusApproved || r.Amount == nil || (ownerID != "" && r.OwnerID != ownerID) {
			continue
		}
		if r.Paid {
			summary.Paid += *r.Amount
		} else {
			summary.Unpaid += *r.Amount
		}
		summary.Total += *r.Amount
	}
	return summary, nil
}

func (s *requestStore) ListApprovedBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingRequest
	for _, r := range s.byID {
		if r.Status == booking.StatusApproved {
			out = append(out, r)
		}
	}
	return out, nil
}

type eventStore struct {
	mu   sync.Mutex
	byID map[string]models.AdminEvent
	seq  int
}

func newEventStore(events ...models.AdminEvent) *eventStore {
	s := &eventStore{byID: make(map[string]models.AdminEvent)}
	for _, e := range events {
		s.byID[e.ID] = e
	}
	return s
}

func (s *eventStore) List(ctx context.Context, filter models.EventFilter) ([]models.AdminEvent, int, error) {
	out, _ := s.ListBetween(ctx, nil, filter.From, filter.To)
	return out, len(out), nil
}

func (s *eventStore) ListBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.AdminEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AdminEvent
	for _, e := range s.byID {
		out = append(out, e)
	}
	return out, nil
}

func (s *eventStore) GetByID(ctx context.Context, id string) (*models.AdminEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (s *eventStore) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AdminEvent, error) {
	return s.GetByID(ctx, id)
}

func (s *eventStore) Create(ctx context.Context, exec sqlx.ExtContext, event *models.AdminEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	event.ID = fmt.Sprintf("evt-new-%d", s.seq)
	s.byID[event.ID] = *event
	return nil
}

func (s *eventStore) UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.byID[id]
	e.EndDate = endDate
	s.byID[id] = e
	return nil
}

func (s *eventStore) UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.byID[id]
	e.Amount = &amount
	s.byID[id] = e
	return nil
}

func (s *eventStore) MarkPaid(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.byID[id]
	e.Paid = true
	s.byID[id] = e
	return nil
}

func (s *eventStore) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

type dayLockRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (d *dayLockRecorder) LockDays(ctx context.Context, tx sqlx.ExtContext, days []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, append([]string(nil), days...))
	return nil
}

type listenerRecorder struct {
	mu   sync.Mutex
	days [][]booking.Date
}

func (l *listenerRecorder) OccupancyChanged(ctx context.Context, days []booking.Date) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.days = append(l.days, days)
}

type openInvoiceRecorder struct {
	deltas map[string]float64
	open   map[string]bool
}

func (r *openInvoiceRecorder) AdjustOpenForRequest(ctx context.Context, exec sqlx.ExtContext, requestID string, delta float64) (int64, error) {
	if !r.open[requestID] {
		return 0, nil
	}
	if r.deltas == nil {
		r.deltas = make(map[string]float64)
	}
	r.deltas[requestID] += delta
	return 1, nil
}

type reviewNotifierStub struct {
	approved []string
	declined []string
}

func (n *reviewNotifierStub) RequestApproved(ctx context.Context, req *models.BookingRequest) {
	n.approved = append(n.approved, req.ID)
}

func (n *reviewNotifierStub) RequestDeclined(ctx context.Context, req *models.BookingRequest) {
	n.declined = append(n.declined, req.ID)
}

// fixtureNow is a Monday morning in the rink's zone.
var fixtureNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, mustLocation("America/New_York"))

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type bookingFixture struct {
	requests  *requestStore
	events    *eventStore
	locks     *dayLockRecorder
	listener  *listenerRecorder
	notifier  *reviewNotifierStub
	invoices  *openInvoiceRecorder
	clock     *clock.MockClock
	occupancy *OccupancyService
	svc       *BookingRequestService
	eventSvc  *AdminEventService
}

func newBookingFixture(t *testing.T, db txProvider, requests *requestStore, events *eventStore) *bookingFixture {
	t.Helper()
	clk := clock.NewMockClock(fixtureNow)
	norm, err := booking.LoadNormalizer("America/New_York", clk)
	require.NoError(t, err)

	f := &bookingFixture{
		requests: requests,
		events:   events,
		locks:    &dayLockRecorder{},
		listener: &listenerRecorder{},
		notifier: &reviewNotifierStub{},
		invoices: &openInvoiceRecorder{open: map[string]bool{}},
		clock:    clk,
	}
	f.occupancy = NewOccupancyService(OccupancyDeps{
		DB:        db,
		Requests:  requests,
		Events:    events,
		DayLocks:  f.locks,
		Norm:      norm,
		Checker:   booking.NewChecker(booking.NewExpander(booking.DefaultMaxOccurrences)),
		Metrics:   NewMetricsService(),
		Listeners: []OccupancyListener{f.listener},
	})
	require.NoError(t, f.occupancy.Rebuild(context.Background()))

	lifecycle := booking.NewLifecycle(norm, 1)
	f.svc = NewBookingRequestService(requests, f.occupancy, lifecycle, f.notifier, f.invoices, nil, nil)
	f.eventSvc = NewAdminEventService(events, f.occupancy, lifecycle, nil, nil)
	return f
}

func slot(date, start, end string) models.Timing {
	return models.Timing{StartDate: date, EndDate: date, StartTime: start, EndTime: end, Recurrence: booking.RuleNone}
}

func weekly(date, until, start, end string) models.Timing {
	return models.Timing{StartDate: date, EndDate: until, StartTime: start, EndTime: end, Recurrence: booking.RuleWeekly}
}

func request(id, owner string, status booking.Status, timing models.Timing) models.BookingRequest {
	return models.BookingRequest{ID: id, OwnerID: owner, Title: "Practice " + id, Status: status, Timing: timing}
}

func adminEvent(id string, timing models.Timing) models.AdminEvent {
	return models.AdminEvent{ID: id, CreatedBy: "admin-1", Title: "Event " + id, Timing: timing}
}

func amount(v float64) *float64 { return &v }

var (
	adminPrincipal  = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	renterPrincipal = models.Principal{UserID: "renter-1", Role: models.RoleRenter, Email: "renter@example.com"}
)
