package booking

// Candidate is a proposed or re-validated schedule. SourceID is excluded from
// the check so a record never conflicts with itself.
type Candidate struct {
	SourceID string
	Schedule Schedule
}

// Result is the outcome of a conflict check.
type Result struct {
	HasConflicts bool
	Conflicts    []Overlap
	Occurrences  []Interval
}

// Checker expands candidates and tests them against an occupancy index.
type Checker struct {
	expander *Expander
}

func NewChecker(expander *Expander) *Checker {
	if expander == nil {
		expander = NewExpander(DefaultMaxOccurrences)
	}
	return &Checker{expander: expander}
}

// Check reports every overlap between the candidate's occurrences and idx.
func (c *Checker) Check(idx *Index, cand Candidate) (Result, error) {
	occurrences, err := c.expander.Expand(cand.Schedule)
	if err != nil {
		return Result{}, err
	}
	conflicts := idx.AllOverlaps(occurrences, cand.SourceID)
	return Result{
		HasConflicts: len(conflicts) > 0,
		Conflicts:    conflicts,
		Occurrences:  occurrences,
	}, nil
}

// Expander exposes the expander the checker uses.
func (c *Checker) Expander() *Expander { return c.expander }
