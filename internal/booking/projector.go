package booking

import "sort"

// Projection maps each calendar day to its occurrences sorted by start, then source id.
type Projection map[Date][]Occurrence

// Project keeps occurrences starting within [from, to] and groups them by day.
func Project(occurrences []Occurrence, from, to Date) Projection {
	out := make(Projection)
	for _, occ := range occurrences {
		day := occ.Day()
		if day.Before(from) || day.After(to) {
			continue
		}
		out[day] = append(out[day], occ)
	}
	for day := range out {
		sortOccurrences(out[day])
	}
	return out
}

// Days returns the projected days in ascending order.
func (p Projection) Days() []Date {
	days := make([]Date, 0, len(p))
	for day := range p {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
