package booking

import (
	"sort"
	"sync"
)

// SourceKind tells which record an occurrence came from.
type SourceKind string

const (
	KindRequest    SourceKind = "request"
	KindAdminEvent SourceKind = "event"
)

// Source identifies the parent of a set of occurrences.
type Source struct {
	ID    string
	Kind  SourceKind
	Title string
}

// Occurrence is one materialised interval of a parent request or event.
type Occurrence struct {
	Source
	Interval
}

// Overlap pairs a candidate interval with the existing occurrence it collides with.
type Overlap struct {
	Candidate Interval
	Existing  Occurrence
}

// Index is a day-bucketed set of occupied intervals. Intervals never cross
// midnight, so a candidate is only compared against its own day's bucket.
type Index struct {
	mu      sync.RWMutex
	days    map[Date][]Occurrence
	sources map[string][]Date
	size    int
}

func NewIndex() *Index {
	return &Index{
		days:    make(map[Date][]Occurrence),
		sources: make(map[string][]Date),
	}
}

// Insert stores the occurrences of src, replacing any it already held.
func (x *Index) Insert(src Source, intervals []Interval) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(src.ID)

	touched := make([]Date, 0, len(intervals))
	seen := make(map[Date]struct{}, len(intervals))
	for _, iv := range intervals {
		day := iv.Day()
		if _, ok := seen[day]; !ok {
			seen[day] = struct{}{}
			touched = append(touched, day)
		}
		x.days[day] = append(x.days[day], Occurrence{Source: src, Interval: iv})
		x.size++
	}
	if len(touched) > 0 {
		x.sources[src.ID] = touched
	}
}

// Remove drops every occurrence of the source. Unknown ids are ignored.
func (x *Index) Remove(sourceID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(sourceID)
}

func (x *Index) removeLocked(sourceID string) {
	days, ok := x.sources[sourceID]
	if !ok {
		return
	}
	for _, day := range days {
		bucket := x.days[day]
		kept := bucket[:0]
		for _, occ := range bucket {
			if occ.ID == sourceID {
				x.size--
				continue
			}
			kept = append(kept, occ)
		}
		if len(kept) == 0 {
			delete(x.days, day)
		} else {
			x.days[day] = kept
		}
	}
	delete(x.sources, sourceID)
}

// AllOverlaps checks every candidate against every occurrence in its day
// bucket, skipping occurrences owned by exclude.
func (x *Index) AllOverlaps(candidates []Interval, exclude string) []Overlap {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Overlap
	for _, cand := range candidates {
		for _, occ := range x.days[cand.Day()] {
			if occ.ID == exclude {
				continue
			}
			if cand.Overlaps(occ.Interval) {
				out = append(out, Overlap{Candidate: cand, Existing: occ})
			}
		}
	}
	return out
}

// HasAnyOverlap stops at the first collision.
func (x *Index) HasAnyOverlap(candidates []Interval, exclude string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	for _, cand := range candidates {
		for _, occ := range x.days[cand.Day()] {
			if occ.ID != exclude && cand.Overlaps(occ.Interval) {
				return true
			}
		}
	}
	return false
}

// Between returns a copy of the occurrences starting on days in [from, to].
func (x *Index) Between(from, to Date) []Occurrence {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Occurrence
	for day, bucket := range x.days {
		if day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, bucket...)
	}
	sortOccurrences(out)
	return out
}

// Contains reports whether the source currently holds any occurrence.
func (x *Index) Contains(sourceID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.sources[sourceID]
	return ok
}

// Len is the number of stored occurrences.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// Swap replaces the contents of x with those of other, leaving other empty.
func (x *Index) Swap(other *Index) {
	other.mu.Lock()
	days, sources, size := other.days, other.sources, other.size
	other.days, other.sources, other.size = make(map[Date][]Occurrence), make(map[string][]Date), 0
	other.mu.Unlock()

	x.mu.Lock()
	x.days, x.sources, x.size = days, sources, size
	x.mu.Unlock()
}

func sortOccurrences(occs []Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].ID < occs[j].ID
	})
}
