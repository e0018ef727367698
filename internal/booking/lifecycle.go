package booking

import (
	"strings"
	"time"

	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// Status is the review state of a booking request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusDeclined
}

// Lifecycle evaluates transition guards against the rink clock.
type Lifecycle struct {
	norm               *Normalizer
	amountWindowMonths int
}

func NewLifecycle(norm *Normalizer, amountWindowMonths int) *Lifecycle {
	if amountWindowMonths <= 0 {
		amountWindowMonths = 1
	}
	return &Lifecycle{norm: norm, amountWindowMonths: amountWindowMonths}
}

// Started reports whether the first occurrence has begun.
func (l *Lifecycle) Started(s Schedule) bool {
	return !s.First().After(l.norm.Now())
}

// PastEndDate reports whether the last possible day of the schedule is over.
func (l *Lifecycle) PastEndDate(s Schedule) bool {
	return l.norm.Now().After(l.norm.EndOfDay(s.Until))
}

// Submit rejects schedules whose first occurrence is not in the future.
func (l *Lifecycle) Submit(s Schedule) error {
	if l.Started(s) {
		return appErrors.Clone(appErrors.ErrAlreadyStarted, "cannot book a time that has already started")
	}
	return nil
}

// Approve allows pending requests that have not started.
func (l *Lifecycle) Approve(status Status, s Schedule) error {
	if status != StatusPending {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be approved")
	}
	if l.Started(s) {
		return appErrors.Clone(appErrors.ErrAlreadyStarted, "cannot approve a request whose first occurrence has started")
	}
	return nil
}

// Decline validates the reason and reports whether the request held occupancy.
func (l *Lifecycle) Decline(status Status, s Schedule, reason string) (reasonText string, wasApproved bool, err error) {
	reasonText = strings.TrimSpace(reason)
	if reasonText == "" {
		return "", false, appErrors.Clone(appErrors.ErrValidation, "a decline reason is required")
	}
	if status == StatusDeclined {
		return "", false, appErrors.Clone(appErrors.ErrInvalidTransition, "request is already declined")
	}
	if l.Started(s) {
		return "", false, appErrors.Clone(appErrors.ErrAlreadyStarted, "cannot decline a request that has started")
	}
	return reasonText, status == StatusApproved, nil
}

// EditRequestEndDate moves the recurrence end of a pending or approved request.
func (l *Lifecycle) EditRequestEndDate(status Status, s Schedule, newEnd Date) (Schedule, error) {
	if status == StatusDeclined {
		return Schedule{}, appErrors.Clone(appErrors.ErrInvalidTransition, "declined requests cannot be edited")
	}
	if l.PastEndDate(s) {
		return Schedule{}, appErrors.ErrPastEndDateEdit
	}
	return l.withEndDate(s, newEnd)
}

// EditEventEndDate moves the recurrence end of an admin event that has not started.
func (l *Lifecycle) EditEventEndDate(s Schedule, newEnd Date) (Schedule, error) {
	if l.Started(s) {
		return Schedule{}, appErrors.Clone(appErrors.ErrAlreadyStarted, "cannot edit an event that has started")
	}
	return l.withEndDate(s, newEnd)
}

func (l *Lifecycle) withEndDate(s Schedule, newEnd Date) (Schedule, error) {
	if !s.Rule.Recurring() {
		return Schedule{}, appErrors.Clone(appErrors.ErrValidation, "only recurring bookings have an end date")
	}
	if newEnd.Before(s.StartDay()) {
		return Schedule{}, appErrors.ErrInvalidRecurrenceRange
	}
	if newEnd.Before(l.norm.Today()) {
		return Schedule{}, appErrors.Clone(appErrors.ErrValidation, "end date cannot be in the past")
	}
	s.Until = newEnd
	return s, nil
}

// EditAmount allows unpaid, active bookings whose relevant date is inside the
// edit window. The relevant date is the end date for recurring schedules and
// the start date otherwise.
func (l *Lifecycle) EditAmount(active, paid bool, s Schedule) error {
	if !active {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only approved requests carry an amount")
	}
	if paid {
		return appErrors.ErrAlreadyPaid
	}
	relevant := s.StartDay()
	if s.Rule.Recurring() {
		relevant = s.Until
	}
	cutoff := l.norm.Today().AddMonths(-l.amountWindowMonths)
	if !relevant.After(cutoff) {
		return appErrors.ErrAmountEditWindowClosed
	}
	return nil
}

// MarkPaid is one-directional; changed is false when the booking was already paid.
func (l *Lifecycle) MarkPaid(active, paid bool) (changed bool, err error) {
	if paid {
		return false, nil
	}
	if !active {
		return false, appErrors.Clone(appErrors.ErrInvalidTransition, "only approved requests can be marked paid")
	}
	return true, nil
}

// DeleteRequest allows removal of pending or declined requests only.
func (l *Lifecycle) DeleteRequest(status Status) error {
	if status == StatusApproved {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "approved requests cannot be deleted; decline them first")
	}
	return nil
}

// DeleteEvent allows removal of admin events that have not started.
func (l *Lifecycle) DeleteEvent(s Schedule) error {
	if l.Started(s) {
		return appErrors.Clone(appErrors.ErrAlreadyStarted, "cannot delete an event that has started")
	}
	return nil
}

// Now exposes the rink-local current instant.
func (l *Lifecycle) Now() time.Time { return l.norm.Now() }
