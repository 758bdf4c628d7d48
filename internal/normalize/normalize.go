// Package normalize repairs and migrates raw progress records into the
// current schema. Normalization is total: corrupt or partial input is
// defaulted, never rejected, so a bad cached value can cost at most one
// day's progress, never a crash.
package normalize

import (
	"github.com/playback-games/progress-sync/internal/model"
)

// Normalize returns a record that satisfies every schema invariant:
//
//	attempts == len(attempt log), clamped to max attempts
//	hint level == min(attempts+1, max attempts) unless completed
//	won implies completed
//
// It first runs any pending schema migrations (see migrate.go), then
// recomputes the derived fields. Idempotent: normalizing an already
// normalized record returns an equal record.
func Normalize(raw model.Record) model.Record {
	rec := *raw.Clone()

	if rec.MaxAttempts <= 0 {
		rec.MaxAttempts = model.DefaultMaxAttempts
	}
	if rec.SchemaVersion <= 0 {
		rec.SchemaVersion = 1
	}

	rec = migrate(rec)

	// Excess attempts are clamped, not rejected, so replaying a stale
	// write can never make a record invalid.
	if len(rec.AttemptLog) > rec.MaxAttempts {
		rec.AttemptLog = rec.AttemptLog[:rec.MaxAttempts]
	}
	rec.Attempts = len(rec.AttemptLog)

	correct := false
	for _, a := range rec.AttemptLog {
		if a.Kind == model.AttemptGuess && a.Correct {
			correct = true
			break
		}
	}
	if rec.Attempts >= rec.MaxAttempts || correct {
		rec.Completed = true
	}
	rec.Won = rec.Completed && correct

	if rec.Completed {
		rec.HintLevel = clampHint(rec.HintLevel, rec.MaxAttempts)
	} else {
		rec.HintLevel = rec.Attempts + 1
		if rec.HintLevel > rec.MaxAttempts {
			rec.HintLevel = rec.MaxAttempts
		}
	}

	// The legacy list is derived state, regenerated every pass so it can
	// never drift ahead of the attempt log.
	rec.LegacyGuesses = legacyFromLog(rec.AttemptLog)

	return rec
}

func clampHint(level, max int) int {
	if level < 1 {
		return 1
	}
	if level > max {
		return max
	}
	return level
}

func legacyFromLog(log []model.Attempt) []model.LegacyGuess {
	var out []model.LegacyGuess
	for _, a := range log {
		if a.Kind != model.AttemptGuess {
			continue
		}
		out = append(out, model.LegacyGuess{Title: a.Title, Correct: a.Correct})
	}
	return out
}
