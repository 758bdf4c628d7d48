// Package localstore is the on-device replica cache. It is write-through
// and deliberately lossy: storage failures degrade to cache misses so the
// gameplay loop never blocks on the device medium.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/playback-games/progress-sync/internal/events"
	"github.com/playback-games/progress-sync/internal/model"
)

const deviceIDKey = "device_id"

// Store wraps the device SQLite cache. One row per day key.
type Store struct {
	db  *sql.DB
	bus *events.Bus
	now func() time.Time
}

// New opens the cache database at path and configures WAL mode.
func New(path string, bus *events.Bus) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "localstore: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "localstore: exec %s", pragma)
		}
	}
	return &Store{db: db, bus: bus, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetClock overrides the timestamp source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

const migration = `
CREATE TABLE IF NOT EXISTS progress (
	day_key       TEXT PRIMARY KEY,
	owner         TEXT NOT NULL DEFAULT '',
	record        TEXT NOT NULL,
	last_modified DATETIME NOT NULL,
	superseded    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_owner ON progress(owner);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "localstore: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Read returns the cached record for dayKey, or nil when absent. A corrupt
// or unreadable row is treated as a miss: the cache is not a durability
// guarantee.
func (s *Store) Read(ctx context.Context, dayKey string) *model.Record {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM progress WHERE day_key = ?`, dayKey,
	)
	var recJSON string
	if err := row.Scan(&recJSON); err != nil {
		if err != sql.ErrNoRows {
			zap.L().Warn("local read failed, treating as miss",
				zap.String("day_key", dayKey), zap.Error(err))
		}
		return nil
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		zap.L().Warn("local record corrupt, treating as miss",
			zap.String("day_key", dayKey), zap.Error(err))
		return nil
	}
	return &rec
}

// Write upserts the record under dayKey, stamping last-modified and, when
// the record carries no explicit owner, the supplied current identity. The
// write is best-effort: a storage failure is logged and swallowed, and the
// local-changed event is only emitted on success.
func (s *Store) Write(ctx context.Context, dayKey string, rec model.Record, currentOwner string) {
	rec.DayKey = dayKey
	rec.LastModified = s.now()
	if rec.Owner == "" {
		rec.Owner = currentOwner
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		zap.L().Error("local write dropped: marshal",
			zap.String("day_key", dayKey), zap.Error(err))
		return
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (day_key, owner, record, last_modified, superseded)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(day_key) DO UPDATE SET
			owner = excluded.owner,
			record = excluded.record,
			last_modified = excluded.last_modified,
			superseded = 0`,
		dayKey, rec.Owner, string(recJSON), rec.LastModified,
	)
	if err != nil {
		zap.L().Error("local write dropped",
			zap.String("day_key", dayKey), zap.Error(err))
		return
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.LocalChanged, DayKey: dayKey, Record: &rec})
	}
}

// List returns every non-superseded cached record keyed by day.
func (s *Store) List(ctx context.Context) (map[string]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day_key, record FROM progress WHERE superseded = 0`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "localstore: list")
	}
	defer rows.Close()

	out := make(map[string]model.Record)
	for rows.Next() {
		var dayKey, recJSON string
		if err := rows.Scan(&dayKey, &recJSON); err != nil {
			return nil, eris.Wrap(err, "localstore: scan")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			zap.L().Warn("skipping corrupt cached record",
				zap.String("day_key", dayKey), zap.Error(err))
			continue
		}
		out[dayKey] = rec
	}
	return out, eris.Wrap(rows.Err(), "localstore: list iterate")
}

// SetOwner re-tags a cached record. Used when a reconciliation decision
// adopts anonymous records into an account (or, with an empty owner,
// keeps them separate).
func (s *Store) SetOwner(ctx context.Context, dayKey, owner string) error {
	rec := s.Read(ctx, dayKey)
	if rec == nil {
		return nil
	}
	rec.Owner = owner
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "localstore: marshal")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE progress SET owner = ?, record = ? WHERE day_key = ?`,
		owner, string(recJSON), dayKey,
	)
	return eris.Wrapf(err, "localstore: set owner %s", dayKey)
}

// MarkSuperseded hides a cached record from future reconciliation without
// deleting it; the remote copy has been chosen over it.
func (s *Store) MarkSuperseded(ctx context.Context, dayKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE progress SET superseded = 1 WHERE day_key = ?`, dayKey,
	)
	return eris.Wrapf(err, "localstore: mark superseded %s", dayKey)
}

// GetMeta reads a metadata value; ok is false when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, eris.Wrapf(err, "localstore: get meta %s", key)
	}
	return value, true, nil
}

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return eris.Wrapf(err, "localstore: set meta %s", key)
}

// DeviceID returns the stable identifier for this device, generating and
// persisting one on first use. Inbound change events stamped with our own
// ID are ignored to avoid feedback loops.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, deviceIDKey,
	)
	var id string
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", eris.Wrap(err, "localstore: read device id")
	}

	id = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		deviceIDKey, id,
	)
	if err != nil {
		return "", eris.Wrap(err, "localstore: persist device id")
	}
	// Another connection may have won the insert race; read back.
	row = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, deviceIDKey)
	if err := row.Scan(&id); err != nil {
		return "", eris.Wrap(err, "localstore: reread device id")
	}
	return id, nil
}
