package model

import "time"

// SchemaVersion is the current record schema. Version 1 records carry a
// flat legacy guess list; version 2 introduced the tagged attempt log.
const SchemaVersion = 2

// DefaultMaxAttempts is the number of attempts a player gets per day.
const DefaultMaxAttempts = 3

// Record is one day's progress for one identity scope. It is the unit of
// replication: the local cache and the remote account table each hold at
// most one Record per (owner, day key).
type Record struct {
	DayKey        string        `json:"day_key"`
	Attempts      int           `json:"attempts"`
	MaxAttempts   int           `json:"max_attempts"`
	AttemptLog    []Attempt     `json:"attempt_log"`
	LegacyGuesses []LegacyGuess `json:"guesses,omitempty"`
	HintLevel     int           `json:"hint_level"`
	Completed     bool          `json:"completed"`
	Won           bool          `json:"won"`
	SchemaVersion int           `json:"schema_version"`
	LastModified  time.Time     `json:"last_modified"`

	// Owner is the account identity the record belongs to. Empty means
	// anonymous / device-only; anonymous records never leave the device.
	Owner string `json:"owner,omitempty"`
}

// HasProgress reports whether the record represents any play activity.
// Records without progress are skipped during reconciliation.
func (r *Record) HasProgress() bool {
	return r.Attempts > 0 || r.Completed
}

// Score is the heuristic used to rank two replicas of the same day: a full
// attempt outweighs a hint reveal two to one.
func (r *Record) Score() float64 {
	return float64(r.Attempts) + 0.5*float64(r.HintLevel-1)
}

// SameProgress reports whether two records describe the same play state,
// ignoring replication bookkeeping (last-modified stamp and owner).
func (r *Record) SameProgress(other *Record) bool {
	if other == nil {
		return false
	}
	if r.DayKey != other.DayKey ||
		r.Attempts != other.Attempts ||
		r.HintLevel != other.HintLevel ||
		r.Completed != other.Completed ||
		r.Won != other.Won {
		return false
	}
	if len(r.AttemptLog) != len(other.AttemptLog) {
		return false
	}
	for i := range r.AttemptLog {
		a := r.AttemptLog[i]
		b := other.AttemptLog[i]
		if a.Kind != b.Kind || a.Correct != b.Correct || a.Title != b.Title || a.ExternalID != b.ExternalID {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing the
// stored slices.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.AttemptLog = append([]Attempt(nil), r.AttemptLog...)
	out.LegacyGuesses = append([]LegacyGuess(nil), r.LegacyGuesses...)
	return &out
}
