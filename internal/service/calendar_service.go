package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/pkg/cache"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// maxCalendarDays bounds a single projection.
const maxCalendarDays = 366

type occupancyReader interface {
	Generation() uint64
	Between(from, to booking.Date) []booking.Occurrence
	Normalizer() *booking.Normalizer
}

// CalendarService projects the occupancy read model into per-day views.
type CalendarService struct {
	occupancy occupancyReader
	cache     *CacheService
	ttl       time.Duration
	rinkName  string
	logger    *zap.Logger
	// instance scopes cache keys to this process's read model; generations
	// of different processes are unrelated.
	instance string
}

// NewCalendarService constructs the service. cache may be nil.
func NewCalendarService(occupancy occupancyReader, cacheSvc *CacheService, ttl time.Duration, rinkName string, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{
		occupancy: occupancy,
		cache:     cacheSvc,
		ttl:       ttl,
		rinkName:  rinkName,
		logger:    logger,
		instance:  uuid.NewString()[:8],
	}
}

// Calendar returns the projection for the queried range, served from cache
// when possible. hit reports whether the cache answered.
func (s *CalendarService) Calendar(ctx context.Context, q dto.CalendarQuery) (resp *dto.CalendarResponse, hit bool, err error) {
	from, to, err := s.resolveRange(q)
	if err != nil {
		return nil, false, err
	}

	// A projection built from a snapshot that a writer replaces mid-flight is
	// stored under the old generation, which no later reader asks for.
	gen := strconv.FormatUint(s.occupancy.Generation(), 10)
	key := cache.Key("calendar", s.instance, gen, from.String(), to.String())
	var cached dto.CalendarResponse
	if ok, _ := s.cache.Get(ctx, key, &cached); ok {
		return &cached, true, nil
	}

	resp = s.project(from, to)
	_ = s.cache.Set(ctx, key, resp, s.ttl)
	return resp, false, nil
}

// ICS renders the queried range as an iCalendar feed.
func (s *CalendarService) ICS(ctx context.Context, q dto.CalendarQuery) ([]byte, error) {
	from, to, err := s.resolveRange(q)
	if err != nil {
		return nil, err
	}

	norm := s.occupancy.Normalizer()
	cal := ical.NewCalendarFor(s.rinkName)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(s.rinkName)
	cal.SetXWRTimezone(norm.Location().String())

	stamp := norm.Now()
	for _, occ := range s.occupancy.Between(from, to) {
		uid := fmt.Sprintf("%s-%s@%s", occ.ID, occ.Start.UTC().Format("20060102T150405Z"), string(occ.Kind))
		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp)
		event.SetStartAt(occ.Start)
		event.SetEndAt(occ.End)
		event.SetSummary(occ.Title)
		event.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(occ.Kind)))
	}
	return []byte(cal.Serialize()), nil
}

// OccupancyChanged drops cached projections.
func (s *CalendarService) OccupancyChanged(ctx context.Context, days []booking.Date) {
	if err := s.purge(ctx); err != nil {
		s.logger.Warn("calendar cache invalidation failed", zap.Int("days", len(days)), zap.Error(err))
	}
}

// OccupancyRebuilt drops cached projections after a full reload, which may
// include writes committed by other processes.
func (s *CalendarService) OccupancyRebuilt(ctx context.Context) {
	if err := s.purge(ctx); err != nil {
		s.logger.Warn("calendar cache invalidation after rebuild failed", zap.Error(err))
	}
}

func (s *CalendarService) purge(ctx context.Context) error {
	return s.cache.Invalidate(ctx, cache.Key("calendar", "*"))
}

func (s *CalendarService) project(from, to booking.Date) *dto.CalendarResponse {
	projection := booking.Project(s.occupancy.Between(from, to), from, to)
	resp := &dto.CalendarResponse{Start: from.String(), End: to.String(), Days: []dto.CalendarDay{}}
	for _, day := range projection.Days() {
		occs := projection[day]
		out := dto.CalendarDay{Date: day.String(), Occurrences: make([]dto.CalendarOccurrence, 0, len(occs))}
		for _, occ := range occs {
			out.Occurrences = append(out.Occurrences, dto.CalendarOccurrence{
				ID:        occ.ID,
				Kind:      occ.Kind,
				Title:     occ.Title,
				StartTime: booking.TimeOf(occ.Start).String(),
				EndTime:   booking.TimeOf(occ.End).String(),
			})
		}
		resp.Days = append(resp.Days, out)
	}
	return resp
}

// resolveRange picks the projected days: month wins, then start/end, then the
// current rink-local month.
func (s *CalendarService) resolveRange(q dto.CalendarQuery) (booking.Date, booking.Date, error) {
	if q.Month != "" {
		return monthRange(q.Month)
	}
	if q.Start == "" && q.End == "" {
		today := s.occupancy.Normalizer().Today()
		first := booking.NewDate(today.Year, today.Month, 1)
		return first, first.AddMonths(1).AddDays(-1), nil
	}

	from, err := booking.ParseDate(q.Start)
	if err != nil {
		return booking.Date{}, booking.Date{}, err
	}
	to := from
	if q.End != "" {
		if to, err = booking.ParseDate(q.End); err != nil {
			return booking.Date{}, booking.Date{}, err
		}
	}
	if to.Before(from) {
		return booking.Date{}, booking.Date{}, appErrors.Clone(appErrors.ErrValidation, "end must not precede start")
	}
	if from.AddDays(maxCalendarDays).Before(to) {
		return booking.Date{}, booking.Date{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("calendar range is limited to %d days", maxCalendarDays))
	}
	return from, to, nil
}

func monthRange(raw string) (booking.Date, booking.Date, error) {
	first, err := booking.ParseDate(raw + "-01")
	if err != nil || strings.Count(raw, "-") != 1 {
		return booking.Date{}, booking.Date{}, appErrors.Clone(appErrors.ErrMalformedDate, fmt.Sprintf("malformed month %q", raw))
	}
	return first, first.AddMonths(1).AddDays(-1), nil
}
