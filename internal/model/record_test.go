package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		hint     int
		want     float64
	}{
		{"fresh", 0, 1, 0},
		{"one attempt no hints", 1, 1, 1},
		{"one attempt second hint", 1, 2, 1.5},
		{"maxed out", 3, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{Attempts: tt.attempts, HintLevel: tt.hint}
			assert.InDelta(t, tt.want, r.Score(), 0.001)
		})
	}
}

func TestHasProgress(t *testing.T) {
	assert.False(t, (&Record{}).HasProgress())
	assert.True(t, (&Record{Attempts: 1}).HasProgress())
	// Completed with zero attempts should still count (stale write replay).
	assert.True(t, (&Record{Completed: true}).HasProgress())
}

func TestSameProgress(t *testing.T) {
	now := time.Now()
	a := &Record{
		DayKey:     "2026-08-27",
		Attempts:   2,
		HintLevel:  3,
		AttemptLog: []Attempt{NewSkip(now), NewGuess("Interstellar", "tt0816692", MediaMovie, false, now)},
	}

	b := a.Clone()
	assert.True(t, a.SameProgress(b))

	// Bookkeeping differences don't matter.
	b.LastModified = now.Add(time.Hour)
	b.Owner = "acct-1"
	assert.True(t, a.SameProgress(b))

	// Play-state differences do.
	b.AttemptLog[1].Correct = true
	assert.False(t, a.SameProgress(b))

	assert.False(t, a.SameProgress(nil))
}

func TestCloneDoesNotAlias(t *testing.T) {
	a := &Record{AttemptLog: []Attempt{NewSkip(time.Now())}}
	b := a.Clone()
	b.AttemptLog[0].Kind = AttemptGuess
	assert.Equal(t, AttemptSkip, a.AttemptLog[0].Kind)
}

func TestDecisionSelected(t *testing.T) {
	d := Decision{Kind: MergeSelected, DayKeys: []string{"2026-08-01", "2026-08-02"}}
	assert.True(t, d.Selected("2026-08-01"))
	assert.False(t, d.Selected("2026-08-03"))
}

func TestConflictSetNeedsReview(t *testing.T) {
	cs := ConflictSet{Conflicts: []Conflict{
		{DayKey: "a", Classification: Mergeable},
		{DayKey: "b", Classification: NotMergeable},
	}}
	review := cs.NeedsReview()
	assert.Len(t, review, 1)
	assert.Equal(t, "b", review[0].DayKey)
	assert.False(t, cs.Empty())
	assert.True(t, (&ConflictSet{}).Empty())
}
