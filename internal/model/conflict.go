package model

// Classification says whether a conflict can be resolved by writing the
// local record through without losing anything on the remote side.
type Classification string

const (
	// Mergeable: the remote side has no progress for the day, so the
	// local record can be pushed without review.
	Mergeable Classification = "mergeable"

	// NotMergeable: both sides have progress and may disagree.
	NotMergeable Classification = "not-mergeable"
)

// Conflict pairs the two replicas of one day. Remote is nil when the
// account has no row for the day at all. Conflicts are derived during
// reconciliation and never persisted.
type Conflict struct {
	DayKey         string         `json:"day_key"`
	Local          *Record        `json:"local"`
	Remote         *Record        `json:"remote,omitempty"`
	Classification Classification `json:"classification"`
}

// ConflictSet is the outcome of one reconciliation pass.
type ConflictSet struct {
	Conflicts []Conflict `json:"conflicts"`

	// Bootstrap is true when the account has zero remote rows; the
	// resolution surface shows a single "save everything now" choice
	// instead of itemized review.
	Bootstrap bool `json:"bootstrap"`
}

// Empty reports whether there is nothing to resolve.
func (cs *ConflictSet) Empty() bool {
	return len(cs.Conflicts) == 0
}

// NeedsReview returns only the conflicts that need review.
func (cs *ConflictSet) NeedsReview() []Conflict {
	var out []Conflict
	for _, c := range cs.Conflicts {
		if c.Classification == NotMergeable {
			out = append(out, c)
		}
	}
	return out
}
