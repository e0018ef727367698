package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

func newYorkNormalizer(t *testing.T, now time.Time) *Normalizer {
	t.Helper()
	norm, err := LoadNormalizer("America/New_York", clock.NewMockClock(now))
	require.NoError(t, err)
	return norm
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
	}{
		{"2025-03-17", Date{2025, time.March, 17}},
		{"03/17/2025", Date{2025, time.March, 17}},
		{"3/7/2025", Date{2025, time.March, 7}},
		{"2024-02-29", Date{2024, time.February, 29}},
		{" 12/31/2025 ", Date{2025, time.December, 31}},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseDateRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "20250317", "2025/03/17", "13/01/2025", "2025-02-30", "2023-02-29", "25-03-17", "03/17/25", "2025-3a-01", "2025-03-17-01"} {
		_, err := ParseDate(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, appErrors.ErrMalformedDate, in)
	}
}

func TestParseTime(t *testing.T) {
	cases := map[string]TimeOfDay{
		"6:00 PM":  {18, 0},
		"12:00 AM": {0, 0},
		"12:30 PM": {12, 30},
		"9:05 am":  {9, 5},
		"11:59PM":  {23, 59},
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "18:00", "0:30 AM", "13:00 PM", "6:60 PM", "6 PM", "six o'clock"} {
		_, err := ParseTime(in)
		assert.ErrorIs(t, err, appErrors.ErrMalformedTime, in)
	}
}

func TestTimeOfDayStringRoundTrips(t *testing.T) {
	for _, in := range []string{"12:00 AM", "6:00 PM", "12:15 PM", "9:45 AM"} {
		tod, err := ParseTime(in)
		require.NoError(t, err)
		assert.Equal(t, in, tod.String())
	}
}

func TestCombineIsEncodingIndependent(t *testing.T) {
	norm := newYorkNormalizer(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	tod, err := ParseTime("6:00 PM")
	require.NoError(t, err)

	for _, pair := range [][2]string{{"2025-03-17", "03/17/2025"}, {"2025-11-02", "11/2/2025"}, {"2024-02-29", "02/29/2024"}} {
		a, err := ParseDate(pair[0])
		require.NoError(t, err)
		b, err := ParseDate(pair[1])
		require.NoError(t, err)
		assert.True(t, norm.Combine(a, tod).Equal(norm.Combine(b, tod)), pair[0])
	}

	// 2025-03-17 is after the spring DST switch: 6 PM EDT is 22:00 UTC.
	d, _ := ParseDate("2025-03-17")
	assert.Equal(t, time.Date(2025, 3, 17, 22, 0, 0, 0, time.UTC), norm.Combine(d, tod).UTC())
}

func TestNormalizerTodayUsesRinkZone(t *testing.T) {
	// 02:30 UTC on the 18th is still the evening of the 17th in New York.
	norm := newYorkNormalizer(t, time.Date(2025, 3, 18, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, Date{2025, time.March, 17}, norm.Today())
}

func TestDateArithmetic(t *testing.T) {
	d := Date{2025, time.January, 31}
	assert.Equal(t, Date{2025, time.February, 28}, d.AddMonths(1))
	assert.Equal(t, Date{2024, time.December, 31}, d.AddMonths(-1))
	assert.Equal(t, Date{2025, time.February, 1}, d.AddDays(1))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, "2025-01-31", d.String())
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	base := time.Date(2025, 3, 17, 18, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(time.Hour)}
	touching := Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	inside := Interval{Start: base.Add(30 * time.Minute), End: base.Add(45 * time.Minute)}

	assert.False(t, a.Overlaps(touching))
	assert.False(t, touching.Overlaps(a))
	assert.True(t, a.Overlaps(inside))
	assert.True(t, inside.Overlaps(a))
}
