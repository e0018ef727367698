package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/database"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type approvedRequestLister interface {
	ListApprovedBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.BookingRequest, error)
}

type adminEventLister interface {
	ListBetween(ctx context.Context, exec sqlx.ExtContext, from, to string) ([]models.AdminEvent, error)
}

type dayLocker interface {
	LockDays(ctx context.Context, tx sqlx.ExtContext, days []string) error
}

// OccupancyListener is told which days changed after a write commits.
type OccupancyListener interface {
	OccupancyChanged(ctx context.Context, days []booking.Date)
}

// RebuildListener is implemented by listeners that also need to know when the
// whole read model was reloaded from the database.
type RebuildListener interface {
	OccupancyRebuilt(ctx context.Context)
}

// OccupancyDeps wires the occupancy service.
type OccupancyDeps struct {
	DB        txProvider
	Requests  approvedRequestLister
	Events    adminEventLister
	DayLocks  dayLocker
	Norm      *booking.Normalizer
	Checker   *booking.Checker
	Metrics   *MetricsService
	Logger    *zap.Logger
	Listeners []OccupancyListener
}

// OccupancyService owns the in-memory occupancy read model and the guarded
// write path every occupancy-affecting mutation goes through.
type OccupancyService struct {
	tx        txProvider
	requests  approvedRequestLister
	events    adminEventLister
	locks     dayLocker
	norm      *booking.Normalizer
	checker   *booking.Checker
	index     *booking.Index
	days      *dayMutexes
	metrics   *MetricsService
	logger    *zap.Logger
	listeners []OccupancyListener

	// Writers hold the read side for their whole run so a rebuild never
	// swaps in a snapshot older than a concurrent commit.
	rebuildMu sync.RWMutex

	// generation moves after every read model change, once the change is
	// visible to Between.
	generation atomic.Uint64
}

// NewOccupancyService constructs the service with an empty index. Call
// Rebuild before serving traffic.
func NewOccupancyService(deps OccupancyDeps) *OccupancyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	checker := deps.Checker
	if checker == nil {
		checker = booking.NewChecker(nil)
	}
	return &OccupancyService{
		tx:        deps.DB,
		requests:  deps.Requests,
		events:    deps.Events,
		locks:     deps.DayLocks,
		norm:      deps.Norm,
		checker:   checker,
		index:     booking.NewIndex(),
		days:      newDayMutexes(),
		metrics:   deps.Metrics,
		logger:    logger.Named("occupancy"),
		listeners: deps.Listeners,
	}
}

// AddListener registers a post-commit listener. Not safe once writes start.
func (s *OccupancyService) AddListener(l OccupancyListener) {
	s.listeners = append(s.listeners, l)
}

// Normalizer exposes the rink clock and timezone.
func (s *OccupancyService) Normalizer() *booking.Normalizer { return s.norm }

// Len reports how many occurrences the read model holds.
func (s *OccupancyService) Len() int { return s.index.Len() }

// Generation identifies the current read model state. Read it before Between
// so anything derived from the snapshot is tagged no newer than it is.
func (s *OccupancyService) Generation() uint64 { return s.generation.Load() }

// Between returns read model occurrences on days in [from, to].
func (s *OccupancyService) Between(from, to booking.Date) []booking.Occurrence {
	return s.index.Between(from, to)
}

// Rebuild reloads every approved request and admin event and atomically
// replaces the read model. Rebuild listeners run once the new model is live.
func (s *OccupancyService) Rebuild(ctx context.Context) error {
	if err := s.rebuild(ctx); err != nil {
		return err
	}
	for _, l := range s.listeners {
		if rl, ok := l.(RebuildListener); ok {
			rl.OccupancyRebuilt(ctx)
		}
	}
	return nil
}

func (s *OccupancyService) rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	requests, err := s.requests.ListApprovedBetween(ctx, nil, "", "")
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved requests")
	}
	events, err := s.events.ListBetween(ctx, nil, "", "")
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin events")
	}

	s.index.Swap(s.buildIndex(requests, events))
	s.generation.Add(1)
	s.metrics.SetOccupancySize(s.index.Len())
	s.logger.Info("occupancy index rebuilt",
		zap.Int("requests", len(requests)),
		zap.Int("events", len(events)),
		zap.Int("occurrences", s.index.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *OccupancyService) buildIndex(requests []models.BookingRequest, events []models.AdminEvent) *booking.Index {
	idx := booking.NewIndex()
	expander := s.checker.Expander()
	for i := range requests {
		req := &requests[i]
		sched, err := s.Schedule(req.Timing)
		if err == nil {
			var occs []booking.Interval
			if occs, err = expander.Expand(sched); err == nil {
				idx.Insert(requestSource(req), occs)
				continue
			}
		}
		s.logger.Warn("skipping unreadable request", zap.String("id", req.ID), zap.Error(err))
	}
	for i := range events {
		ev := &events[i]
		sched, err := s.Schedule(ev.Timing)
		if err == nil {
			var occs []booking.Interval
			if occs, err = expander.Expand(sched); err == nil {
				idx.Insert(eventSource(ev), occs)
				continue
			}
		}
		s.logger.Warn("skipping unreadable admin event", zap.String("id", ev.ID), zap.Error(err))
	}
	return idx
}

// Schedule parses stored timing into a schedule.
func (s *OccupancyService) Schedule(t models.Timing) (booking.Schedule, error) {
	return s.parseSchedule(t.StartDate, t.EndDate, t.StartTime, t.EndTime, string(t.Recurrence))
}

// ScheduleFromInput parses submitted timing into a schedule.
func (s *OccupancyService) ScheduleFromInput(in dto.ScheduleInput) (booking.Schedule, error) {
	return s.parseSchedule(in.StartDate, in.EndDate, in.StartTime, in.EndTime, in.Recurrence)
}

func (s *OccupancyService) parseSchedule(startDate, endDate, startTime, endTime, recurrence string) (booking.Schedule, error) {
	day, err := booking.ParseDate(startDate)
	if err != nil {
		return booking.Schedule{}, err
	}
	start, err := booking.ParseTime(startTime)
	if err != nil {
		return booking.Schedule{}, err
	}
	end, err := booking.ParseTime(endTime)
	if err != nil {
		return booking.Schedule{}, err
	}
	rule, err := booking.ParseRule(recurrence)
	if err != nil {
		return booking.Schedule{}, err
	}
	var until booking.Date
	if rule.Recurring() && endDate != "" {
		if until, err = booking.ParseDate(endDate); err != nil {
			return booking.Schedule{}, err
		}
	}
	return s.norm.NewSchedule(day, start, end, rule, until)
}

// Expand materialises a schedule's occurrences.
func (s *OccupancyService) Expand(sched booking.Schedule) ([]booking.Interval, error) {
	return s.checker.Expander().Expand(sched)
}

// Check runs an advisory conflict check against the read model.
func (s *OccupancyService) Check(cand booking.Candidate) (booking.Result, error) {
	res, err := s.checker.Check(s.index, cand)
	s.recordCheck(res, err)
	return res, err
}

// CheckConflicts is the pre-submission advisory check.
func (s *OccupancyService) CheckConflicts(ctx context.Context, in dto.ConflictCheckRequest) (*dto.ConflictCheckResponse, error) {
	sched, err := s.ScheduleFromInput(in.ScheduleInput)
	if err != nil {
		return nil, err
	}
	res, err := s.Check(booking.Candidate{SourceID: in.ExcludeID, Schedule: sched})
	if err != nil {
		return nil, err
	}
	return &dto.ConflictCheckResponse{
		HasConflicts: res.HasConflicts,
		Conflicts:    conflictDetails(res.Conflicts),
	}, nil
}

func (s *OccupancyService) recordCheck(res booking.Result, err error) {
	switch {
	case err != nil:
		s.metrics.RecordConflictCheck(ConflictResultError)
	case res.HasConflicts:
		s.metrics.RecordConflictCheck(ConflictResultConflict)
	default:
		s.metrics.RecordConflictCheck(ConflictResultClear)
	}
}

// Write runs fn inside a transaction. Serialization failures are retried
// once; a second failure is reported as a conflict. Read model hooks run
// only after a successful commit.
func (s *OccupancyService) Write(ctx context.Context, action string, fn func(w *Write) error) error {
	s.rebuildMu.RLock()
	days, err := s.attempt(ctx, fn)
	if err != nil && database.IsRetryable(err) {
		s.metrics.RecordTxRetry(action)
		s.logger.Warn("retrying after serialization failure", zap.String("action", action), zap.Error(err))
		days, err = s.attempt(ctx, fn)
		if err != nil && database.IsRetryable(err) {
			err = appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booking changed concurrently, please retry")
		}
	}
	s.rebuildMu.RUnlock()

	s.metrics.RecordTransition(action, err)
	if err != nil {
		return err
	}
	if len(days) > 0 {
		for _, l := range s.listeners {
			l.OccupancyChanged(ctx, days)
		}
	}
	return nil
}

func (s *OccupancyService) attempt(ctx context.Context, fn func(w *Write) error) (days []booking.Date, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	w := &Write{ctx: ctx, svc: s, tx: tx}
	defer w.release()
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(w); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	if len(w.hooks) == 0 {
		return nil, nil
	}
	for _, hook := range w.hooks {
		hook(s.index)
	}
	s.generation.Add(1)
	s.metrics.SetOccupancySize(s.index.Len())
	return w.days, nil
}

// Write is one guarded occupancy mutation in progress.
type Write struct {
	ctx    context.Context
	svc    *OccupancyService
	tx     *sqlx.Tx
	days   []booking.Date
	locked map[booking.Date]struct{}
	unlock func()
	hooks  []func(idx *booking.Index)
}

// Tx is the transaction the mutation must use.
func (w *Write) Tx() *sqlx.Tx { return w.tx }

// Lock serialises the write against every other writer touching the given
// days, in this process and across processes. The full day set must be
// passed on the first call; later calls may only repeat days already held.
func (w *Write) Lock(days ...booking.Date) error {
	if w.locked != nil {
		for _, d := range days {
			if _, ok := w.locked[d]; !ok {
				return appErrors.Clone(appErrors.ErrInternal, "day lock set extended after acquisition")
			}
		}
		return nil
	}

	sorted := uniqueDays(days)
	w.locked = make(map[booking.Date]struct{}, len(sorted))
	for _, d := range sorted {
		w.locked[d] = struct{}{}
	}
	w.days = sorted
	w.unlock = w.svc.days.acquire(sorted)

	keys := make([]string, len(sorted))
	for i, d := range sorted {
		keys[i] = d.String()
	}
	if err := w.svc.locks.LockDays(w.ctx, w.tx, keys); err != nil {
		return err
	}
	return nil
}

// Check locks the candidate's days, loads current occupancy for its span
// inside the transaction and checks it. The candidate's own id is excluded.
func (w *Write) Check(cand booking.Candidate) (booking.Result, error) {
	occs, err := w.svc.Expand(cand.Schedule)
	if err != nil {
		return booking.Result{}, err
	}
	if err := w.Lock(intervalDays(occs)...); err != nil {
		return booking.Result{}, err
	}

	from, to := cand.Schedule.StartDay().String(), cand.Schedule.Until.String()
	requests, err := w.svc.requests.ListApprovedBetween(w.ctx, w.tx, from, to)
	if err != nil {
		return booking.Result{}, err
	}
	events, err := w.svc.events.ListBetween(w.ctx, w.tx, from, to)
	if err != nil {
		return booking.Result{}, err
	}

	res, err := w.svc.checker.Check(w.svc.buildIndex(requests, events), cand)
	w.svc.recordCheck(res, err)
	return res, err
}

// Replace validates src under its next schedule. Days of both schedules are
// locked so readers of either range wait for the commit.
func (w *Write) Replace(src booking.Source, current, next booking.Schedule) error {
	oldOccs, err := w.svc.Expand(current)
	if err != nil {
		return err
	}
	newOccs, err := w.svc.Expand(next)
	if err != nil {
		return err
	}
	if err := w.Lock(append(intervalDays(oldOccs), intervalDays(newOccs)...)...); err != nil {
		return err
	}
	res, err := w.Check(booking.Candidate{SourceID: src.ID, Schedule: next})
	if err != nil {
		return err
	}
	if res.HasConflicts {
		return conflictError(res)
	}
	w.AfterCommit(func(idx *booking.Index) {
		idx.Insert(src, res.Occurrences)
	})
	return nil
}

// Release locks the days sched occupies and queues removal of sourceID.
func (w *Write) Release(sourceID string, sched booking.Schedule) error {
	occs, err := w.svc.Expand(sched)
	if err != nil {
		return err
	}
	if err := w.Lock(intervalDays(occs)...); err != nil {
		return err
	}
	w.AfterCommit(func(idx *booking.Index) {
		idx.Remove(sourceID)
	})
	return nil
}

// AfterCommit queues a read model update.
func (w *Write) AfterCommit(hook func(idx *booking.Index)) {
	w.hooks = append(w.hooks, hook)
}

func (w *Write) release() {
	if w.unlock != nil {
		w.unlock()
		w.unlock = nil
	}
}

// dayMutexes hands out reference-counted per-day mutexes.
type dayMutexes struct {
	mu    sync.Mutex
	locks map[booking.Date]*dayMutex
}

type dayMutex struct {
	sync.Mutex
	refs int
}

func newDayMutexes() *dayMutexes {
	return &dayMutexes{locks: make(map[booking.Date]*dayMutex)}
}

// acquire locks days, which must be sorted and unique, and returns the release func.
func (d *dayMutexes) acquire(days []booking.Date) func() {
	held := make([]*dayMutex, 0, len(days))
	for _, day := range days {
		d.mu.Lock()
		m, ok := d.locks[day]
		if !ok {
			m = &dayMutex{}
			d.locks[day] = m
		}
		m.refs++
		d.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
		d.mu.Lock()
		for i, day := range days {
			held[i].refs--
			if held[i].refs == 0 {
				delete(d.locks, day)
			}
		}
		d.mu.Unlock()
	}
}

func uniqueDays(days []booking.Date) []booking.Date {
	sorted := append([]booking.Date(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	out := sorted[:0]
	for i, d := range sorted {
		if i > 0 && sorted[i-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}

func intervalDays(occs []booking.Interval) []booking.Date {
	days := make([]booking.Date, len(occs))
	for i, o := range occs {
		days[i] = o.Day()
	}
	return days
}

func requestSource(r *models.BookingRequest) booking.Source {
	return booking.Source{ID: r.ID, Kind: booking.KindRequest, Title: r.Title}
}

func eventSource(e *models.AdminEvent) booking.Source {
	return booking.Source{ID: e.ID, Kind: booking.KindAdminEvent, Title: e.Title}
}

func timingOf(s booking.Schedule) models.Timing {
	return models.Timing{
		StartDate:  s.StartDay().String(),
		EndDate:    s.Until.String(),
		StartTime:  booking.TimeOf(s.Base.Start).String(),
		EndTime:    booking.TimeOf(s.Base.End).String(),
		Recurrence: s.Rule,
	}
}

func conflictError(res booking.Result) error {
	return appErrors.WithDetails(appErrors.ErrConflict, "", conflictDetails(res.Conflicts))
}

func conflictDetails(overlaps []booking.Overlap) []dto.ConflictDetail {
	details := make([]dto.ConflictDetail, 0, len(overlaps))
	for _, o := range overlaps {
		details = append(details, dto.ConflictDetail{
			Date:             o.Candidate.Day().String(),
			StartTime:        booking.TimeOf(o.Candidate.Start).String(),
			EndTime:          booking.TimeOf(o.Candidate.End).String(),
			ConflictingID:    o.Existing.ID,
			ConflictingKind:  o.Existing.Kind,
			ConflictingTitle: o.Existing.Title,
			ConflictingStart: booking.TimeOf(o.Existing.Start).String(),
			ConflictingEnd:   booking.TimeOf(o.Existing.End).String(),
		})
	}
	return details
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}
