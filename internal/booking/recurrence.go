package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// Rule is the recurrence pattern of a request or event.
type Rule string

const (
	RuleNone    Rule = "none"
	RuleWeekly  Rule = "weekly"
	RuleMonthly Rule = "monthly"
)

// DefaultMaxOccurrences bounds a single expansion.
const DefaultMaxOccurrences = 500

// ParseRule maps wire values, treating an empty string as none.
func ParseRule(raw string) (Rule, error) {
	switch r := Rule(strings.ToLower(strings.TrimSpace(raw))); r {
	case "", RuleNone:
		return RuleNone, nil
	case RuleWeekly, RuleMonthly:
		return r, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recurrence %q", raw))
	}
}

func (r Rule) Recurring() bool { return r == RuleWeekly || r == RuleMonthly }

// Schedule is the recurrence shape shared by requests and admin events.
type Schedule struct {
	Base  Interval
	Rule  Rule
	Until Date
}

// NewSchedule validates a same-day base interval and the recurrence range.
// For non-recurring schedules Until is the base day.
func (n *Normalizer) NewSchedule(day Date, start, end TimeOfDay, rule Rule, until Date) (Schedule, error) {
	if !start.Before(end) {
		return Schedule{}, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	s := Schedule{
		Base: Interval{Start: n.Combine(day, start), End: n.Combine(day, end)},
		Rule: rule,
	}
	if !rule.Recurring() {
		s.Until = day
		return s, nil
	}
	if until.IsZero() {
		return Schedule{}, appErrors.Clone(appErrors.ErrValidation, "recurring bookings require an end date")
	}
	if until.Before(day) {
		return Schedule{}, appErrors.ErrInvalidRecurrenceRange
	}
	s.Until = until
	return s, nil
}

// StartDay is the day of the first occurrence.
func (s Schedule) StartDay() Date { return s.Base.Day() }

// Expander turns schedules into concrete occurrences.
type Expander struct {
	max int
}

func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{max: maxOccurrences}
}

// Expand returns every occurrence of s in start order. It is a pure function
// of its input: repeated calls yield identical slices.
func (e *Expander) Expand(s Schedule) ([]Interval, error) {
	if !s.Rule.Recurring() {
		return []Interval{s.Base}, nil
	}
	if s.Until.Before(s.StartDay()) {
		return nil, appErrors.ErrInvalidRecurrenceRange
	}

	rule, err := e.rrule(s)
	if err != nil {
		return nil, err
	}

	startClock := TimeOf(s.Base.Start)
	endClock := TimeOf(s.Base.End)
	loc := s.Base.Start.Location()

	out := make([]Interval, 0, 8)
	next := rule.Iterator()
	for {
		start, ok := next()
		if !ok {
			break
		}
		if len(out) == e.max {
			return nil, appErrors.Clone(appErrors.ErrRecurrenceTooLong,
				fmt.Sprintf("recurrence produces more than %d occurrences", e.max))
		}
		y, m, d := start.Date()
		out = append(out, Interval{
			Start: time.Date(y, m, d, startClock.Hour, startClock.Minute, 0, 0, loc),
			End:   time.Date(y, m, d, endClock.Hour, endClock.Minute, 0, 0, loc),
		})
	}
	return out, nil
}

// First returns the earliest occurrence start without expanding the schedule.
func (s Schedule) First() time.Time { return s.Base.Start }

func (e *Expander) rrule(s Schedule) (*rrule.RRule, error) {
	loc := s.Base.Start.Location()
	opt := rrule.ROption{
		Dtstart: s.Base.Start,
		Until:   time.Date(s.Until.Year, s.Until.Month, s.Until.Day, 23, 59, 59, 0, loc),
	}

	switch s.Rule {
	case RuleWeekly:
		opt.Freq = rrule.WEEKLY
	case RuleMonthly:
		opt.Freq = rrule.MONTHLY
		day := s.Base.Start.Day()
		if day > 28 {
			// Last of {28..day} that exists in each month, e.g. the 31st becomes Feb 28.
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		} else {
			opt.Bymonthday = []int{day}
		}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence")
	}
	return r, nil
}
