package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/middleware"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type calendarServiceMock struct {
	query dto.CalendarQuery
	hit   bool
}

func (m *calendarServiceMock) Calendar(ctx context.Context, q dto.CalendarQuery) (*dto.CalendarResponse, bool, error) {
	m.query = q
	if q.Month == "bad" {
		return nil, false, appErrors.ErrMalformedDate
	}
	return &dto.CalendarResponse{Start: "2025-03-01", End: "2025-03-31", Days: []dto.CalendarDay{}}, m.hit, nil
}

func (m *calendarServiceMock) ICS(ctx context.Context, q dto.CalendarQuery) ([]byte, error) {
	return []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), nil
}

func TestCalendarHandlerRecordsCacheHit(t *testing.T) {
	svc := &calendarServiceMock{hit: true}
	h := NewCalendarHandler(svc)
	c, w := newTestContext(http.MethodGet, "/calendar?month=2025-03", nil, renterClaims)

	h.Calendar(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-03", svc.query.Month)
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, map[string]interface{}{"start": "2025-03-01", "end": "2025-03-31"}, meta["range"])
	assert.Equal(t, float64(0), meta["day_count"])
	assert.Equal(t, 0, middleware.Meta(c)["day_count"])
}

func TestCalendarHandlerErrors(t *testing.T) {
	h := NewCalendarHandler(&calendarServiceMock{})
	c, w := newTestContext(http.MethodGet, "/calendar?month=bad", nil, renterClaims)

	h.Calendar(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarHandlerICS(t *testing.T) {
	h := NewCalendarHandler(&calendarServiceMock{})
	c, w := newTestContext(http.MethodGet, "/calendar.ics", nil, renterClaims)

	h.ICS(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "rink-calendar.ics")
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
}

type conflictCheckerMock struct {
	req dto.ConflictCheckRequest
	err error
}

func (m *conflictCheckerMock) CheckConflicts(ctx context.Context, in dto.ConflictCheckRequest) (*dto.ConflictCheckResponse, error) {
	m.req = in
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ConflictCheckResponse{HasConflicts: true, Conflicts: []dto.ConflictDetail{{Date: in.StartDate}}}, nil
}

func TestConflictHandlerCheck(t *testing.T) {
	checker := &conflictCheckerMock{}
	h := NewConflictHandler(checker)
	c, w := newTestContext(http.MethodPost, "/check_conflicts", []byte(`{"start_date":"2025-03-20","start_time":"6:00 PM","end_time":"7:00 PM","exclude_id":"req-1"}`), renterClaims)

	h.Check(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", checker.req.ExcludeID)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["has_conflicts"])

	checker.err = errors.New("boom")
	c, w = newTestContext(http.MethodPost, "/check_conflicts", []byte(`{}`), renterClaims)
	h.Check(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
