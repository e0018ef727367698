// Package booking holds the rink's scheduling core: civil date/time parsing,
// recurrence expansion, the day-bucketed occupancy index, conflict checking,
// lifecycle guards and calendar projection. It performs no I/O.
package booking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalised date, so NewDate(2025, 2, 30) is 2025-03-02.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// AddMonths moves by whole months, clamping the day to the target month's length.
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := d.Day
	if day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String renders the 12-hour form used on the wire, e.g. "6:00 PM".
func (t TimeOfDay) String() string {
	hour := t.Hour % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "AM"
	if t.Hour >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute, meridiem)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool { return t.minutes() < o.minutes() }

// TimeOf returns the wall-clock time of t in t's own location.
func TimeOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)

// ParseDate accepts MM/DD/YYYY or YYYY-MM-DD; the separator picks the layout.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)

	var parts []string
	var yearIdx, monthIdx, dayIdx int
	switch {
	case strings.Contains(s, "/"):
		parts = strings.Split(s, "/")
		monthIdx, dayIdx, yearIdx = 0, 1, 2
	case strings.Contains(s, "-"):
		parts = strings.Split(s, "-")
		yearIdx, monthIdx, dayIdx = 0, 1, 2
	default:
		return Date{}, malformedDate(raw)
	}
	if len(parts) != 3 || len(parts[yearIdx]) != 4 {
		return Date{}, malformedDate(raw)
	}

	year, err := parseDigits(parts[yearIdx], 4)
	if err != nil {
		return Date{}, malformedDate(raw)
	}
	month, err := parseDigits(parts[monthIdx], 2)
	if err != nil || month < 1 || month > 12 {
		return Date{}, malformedDate(raw)
	}
	day, err := parseDigits(parts[dayIdx], 2)
	if err != nil || day < 1 {
		return Date{}, malformedDate(raw)
	}

	d := Date{Year: year, Month: time.Month(month), Day: day}
	if NewDate(year, time.Month(month), day) != d {
		return Date{}, malformedDate(raw)
	}
	return d, nil
}

// ParseTime accepts "H:MM AM" / "HH:MM PM", case-insensitive.
func ParseTime(raw string) (TimeOfDay, error) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return TimeOfDay{}, malformedTime(raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return TimeOfDay{}, malformedTime(raw)
	}

	pm := strings.EqualFold(m[3], "PM")
	switch {
	case hour == 12 && !pm:
		hour = 0
	case hour != 12 && pm:
		hour += 12
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseDigits(s string, maxLen int) (int, error) {
	if s == "" || len(s) > maxLen {
		return 0, fmt.Errorf("bad length")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit")
		}
	}
	return strconv.Atoi(s)
}

func malformedDate(raw string) error {
	return appErrors.Clone(appErrors.ErrMalformedDate, fmt.Sprintf("malformed date %q: expected MM/DD/YYYY or YYYY-MM-DD", raw))
}

func malformedTime(raw string) error {
	return appErrors.Clone(appErrors.ErrMalformedTime, fmt.Sprintf("malformed time %q: expected H:MM AM|PM", raw))
}

// Normalizer pins dates and times to the rink's civil time zone.
type Normalizer struct {
	loc   *time.Location
	clock clock.Clock
}

func NewNormalizer(loc *time.Location, clk clock.Clock) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Normalizer{loc: loc, clock: clk}
}

// LoadNormalizer resolves an IANA zone name such as America/New_York.
func LoadNormalizer(zone string, clk clock.Clock) (*Normalizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load rink time zone %q: %w", zone, err)
	}
	return NewNormalizer(loc, clk), nil
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Combine places a civil date and wall-clock time in the rink zone.
func (n *Normalizer) Combine(d Date, t TimeOfDay) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, n.loc)
}

// Now is the current instant expressed in the rink zone.
func (n *Normalizer) Now() time.Time {
	return n.clock.Now().In(n.loc)
}

// Today is the rink-local calendar day.
func (n *Normalizer) Today() Date {
	return DateOf(n.Now())
}

// EndOfDay is the last second of d in the rink zone.
func (n *Normalizer) EndOfDay(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 0, n.loc)
}

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Day is the calendar day the interval starts on, in the interval's location.
func (i Interval) Day() Date {
	return DateOf(i.Start)
}
