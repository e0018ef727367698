package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

func newLifecycle(t *testing.T, now time.Time) (*Lifecycle, *Normalizer, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(now)
	norm, err := LoadNormalizer("America/New_York", clk)
	require.NoError(t, err)
	return NewLifecycle(norm, 1), norm, clk
}

func TestApproveRejectsStartedRequests(t *testing.T) {
	// 6 PM EDT on 2025-03-17 is 22:00 UTC.
	lc, norm, clk := newLifecycle(t, time.Date(2025, 3, 17, 21, 59, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-17", "6:00 PM", "7:30 PM", RuleNone, "")

	require.NoError(t, lc.Approve(StatusPending, s))

	clk.Set(time.Date(2025, 3, 17, 22, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, lc.Approve(StatusPending, s), appErrors.ErrAlreadyStarted)

	clk.Add(time.Hour)
	assert.ErrorIs(t, lc.Approve(StatusPending, s), appErrors.ErrAlreadyStarted)
}

func TestApproveOnlyFromPending(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-17", "6:00 PM", "7:30 PM", RuleNone, "")

	assert.ErrorIs(t, lc.Approve(StatusApproved, s), appErrors.ErrInvalidTransition)
	assert.ErrorIs(t, lc.Approve(StatusDeclined, s), appErrors.ErrInvalidTransition)
}

func TestDeclineRequiresReason(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-17", "6:00 PM", "7:30 PM", RuleNone, "")

	_, _, err := lc.Decline(StatusPending, s, "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	reason, wasApproved, err := lc.Decline(StatusApproved, s, "  rink maintenance ")
	require.NoError(t, err)
	assert.Equal(t, "rink maintenance", reason)
	assert.True(t, wasApproved)

	_, _, err = lc.Decline(StatusDeclined, s, "again")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestDeclineRejectsStarted(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-03", "5:00 PM", "6:00 PM", RuleWeekly, "2025-03-31")

	_, _, err := lc.Decline(StatusApproved, s, "no")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyStarted)
}

func TestEditRequestEndDate(t *testing.T) {
	lc, norm, clk := newLifecycle(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-03", "5:00 PM", "6:00 PM", RuleWeekly, "2025-03-31")

	_, err := lc.EditRequestEndDate(StatusApproved, s, Date{2025, time.March, 2})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRecurrenceRange)

	updated, err := lc.EditRequestEndDate(StatusApproved, s, Date{2025, time.April, 28})
	require.NoError(t, err)
	assert.Equal(t, Date{2025, time.April, 28}, updated.Until)
	assert.Equal(t, Date{2025, time.March, 31}, s.Until)

	_, err = lc.EditRequestEndDate(StatusDeclined, s, Date{2025, time.April, 28})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	clk.Set(time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC))
	_, err = lc.EditRequestEndDate(StatusApproved, s, Date{2025, time.March, 19})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	// 2025-03-31 23:59:59 EDT has passed.
	clk.Set(time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC))
	_, err = lc.EditRequestEndDate(StatusApproved, s, Date{2025, time.April, 28})
	assert.ErrorIs(t, err, appErrors.ErrPastEndDateEdit)

	single := mustSchedule(t, norm, "2025-05-03", "5:00 PM", "6:00 PM", RuleNone, "")
	_, err = lc.EditRequestEndDate(StatusPending, single, Date{2025, time.May, 10})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEditEventEndDateRequiresNotStarted(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-03", "5:00 PM", "6:00 PM", RuleWeekly, "2025-03-31")

	_, err := lc.EditEventEndDate(s, Date{2025, time.April, 28})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyStarted)
	assert.ErrorIs(t, lc.DeleteEvent(s), appErrors.ErrAlreadyStarted)

	future := mustSchedule(t, norm, "2025-04-07", "5:00 PM", "6:00 PM", RuleWeekly, "2025-04-28")
	updated, err := lc.EditEventEndDate(future, Date{2025, time.May, 5})
	require.NoError(t, err)
	assert.Equal(t, Date{2025, time.May, 5}, updated.Until)
	assert.NoError(t, lc.DeleteEvent(future))
}

func TestEditAmountWindow(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC))

	recent := mustSchedule(t, norm, "2025-03-20", "5:00 PM", "6:00 PM", RuleNone, "")
	assert.NoError(t, lc.EditAmount(true, false, recent))

	old := mustSchedule(t, norm, "2025-03-15", "5:00 PM", "6:00 PM", RuleNone, "")
	assert.ErrorIs(t, lc.EditAmount(true, false, old), appErrors.ErrAmountEditWindowClosed)

	recurring := mustSchedule(t, norm, "2025-01-06", "5:00 PM", "6:00 PM", RuleWeekly, "2025-04-28")
	assert.NoError(t, lc.EditAmount(true, false, recurring))

	assert.ErrorIs(t, lc.EditAmount(true, true, recent), appErrors.ErrAlreadyPaid)
	assert.ErrorIs(t, lc.EditAmount(false, false, recent), appErrors.ErrInvalidTransition)
}

func TestMarkPaidIsIdempotentAndLocksAmount(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := mustSchedule(t, norm, "2025-03-17", "6:00 PM", "7:30 PM", RuleNone, "")

	changed, err := lc.MarkPaid(true, false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = lc.MarkPaid(true, true)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.ErrorIs(t, lc.EditAmount(true, true, s), appErrors.ErrAlreadyPaid)

	_, err = lc.MarkPaid(false, false)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestSubmitAndDeleteGuards(t *testing.T) {
	lc, norm, _ := newLifecycle(t, time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC))
	past := mustSchedule(t, norm, "2025-03-17", "6:00 PM", "7:30 PM", RuleNone, "")
	assert.ErrorIs(t, lc.Submit(past), appErrors.ErrAlreadyStarted)

	assert.NoError(t, lc.DeleteRequest(StatusPending))
	assert.NoError(t, lc.DeleteRequest(StatusDeclined))
	assert.ErrorIs(t, lc.DeleteRequest(StatusApproved), appErrors.ErrInvalidTransition)
}
