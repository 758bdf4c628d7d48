package normalize

import (
	"github.com/playback-games/progress-sync/internal/model"
)

// migrations maps a schema version to the step that lifts a record to the
// next version. Steps run in order until the record reaches
// model.SchemaVersion, so future schema changes compose instead of
// accreting conditionals.
var migrations = map[int]func(model.Record) model.Record{
	1: migrateV1GuessList,
}

func migrate(rec model.Record) model.Record {
	for rec.SchemaVersion < model.SchemaVersion {
		step, ok := migrations[rec.SchemaVersion]
		if !ok {
			// No step registered; stamp current and let the invariant
			// repair in Normalize handle the rest.
			rec.SchemaVersion = model.SchemaVersion
			break
		}
		rec = step(rec)
		rec.SchemaVersion++
	}
	return rec
}

// migrateV1GuessList synthesizes the tagged attempt log from the flat v1
// guess list. Order is preserved; every legacy entry was a guess (v1 had
// no skip concept). Records that already carry an attempt log are left
// alone so replaying the migration is harmless.
func migrateV1GuessList(rec model.Record) model.Record {
	if len(rec.AttemptLog) > 0 || len(rec.LegacyGuesses) == 0 {
		return rec
	}
	log := make([]model.Attempt, 0, len(rec.LegacyGuesses))
	for _, g := range rec.LegacyGuesses {
		log = append(log, model.Attempt{
			Kind:      model.AttemptGuess,
			Correct:   g.Correct,
			Title:     g.Title,
			Timestamp: rec.LastModified,
		})
	}
	rec.AttemptLog = log
	return rec
}
