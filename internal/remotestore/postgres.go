// Package remotestore is the durable per-account replica table. It is
// authoritative only for signed-in identities; every operation fails fast
// when called without one.
package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/playback-games/progress-sync/internal/model"
)

// ErrNoIdentity is returned when a remote operation is attempted without a
// signed-in owner. This is a programming error in the caller, not a
// recoverable condition.
var ErrNoIdentity = eris.New("remotestore: identity required")

const uniqueViolation = "23505"

// notifyChannel is the LISTEN/NOTIFY channel all devices share; payloads
// carry the owner so listeners filter client-side.
const notifyChannel = "progress_changes"

// Pool is the subset of pgxpool.Pool the store uses, satisfied by pgxmock
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements the remote replica table over pgx.
type Store struct {
	pool Pool

	// raw is the concrete pool, needed for the dedicated listening
	// connection; nil under pgxmock, in which case Listen is unavailable.
	raw *pgxpool.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// New creates a Store with a connection pool.
func New(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "remotestore: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "remotestore: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "remotestore: ping")
	}
	return &Store{pool: pool, raw: pool}, nil
}

// NewWithPool wraps an existing pool. Test hook.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS progress (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	day_key       TEXT NOT NULL,
	record        JSONB NOT NULL,
	last_modified TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner, day_key)
);

CREATE INDEX IF NOT EXISTS idx_progress_owner ON progress(owner);
CREATE INDEX IF NOT EXISTS idx_progress_owner_day ON progress(owner, day_key);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "remotestore: migrate")
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "remotestore: ping")
}

func (s *Store) Close() {
	s.pool.Close()
}

// Upsert writes the record under (owner, dayKey). Concurrent first writes
// from two devices race on the unique key; the loser's INSERT hits a
// uniqueness violation and falls back to an explicit UPDATE of the same
// key. After the write a change notification stamped with deviceID is
// broadcast so sibling devices converge.
func (s *Store) Upsert(ctx context.Context, owner string, rec model.Record, deviceID string) error {
	if owner == "" {
		return ErrNoIdentity
	}
	rec.Owner = owner

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "remotestore: marshal record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO progress (id, owner, day_key, record, last_modified)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), owner, rec.DayKey, string(recJSON), rec.LastModified,
	)
	if isUniqueViolation(err) {
		_, err = s.pool.Exec(ctx,
			`UPDATE progress
			 SET record = $1, last_modified = $2, updated_at = now()
			 WHERE owner = $3 AND day_key = $4`,
			string(recJSON), rec.LastModified, owner, rec.DayKey,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "remotestore: upsert %s", rec.DayKey)
	}

	return s.notify(ctx, owner, rec.DayKey, deviceID, recJSON)
}

// Read returns the account's record for dayKey, or nil when absent.
func (s *Store) Read(ctx context.Context, owner, dayKey string) (*model.Record, error) {
	if owner == "" {
		return nil, ErrNoIdentity
	}
	row := s.pool.QueryRow(ctx,
		`SELECT record FROM progress WHERE owner = $1 AND day_key = $2`,
		owner, dayKey,
	)
	var recJSON string
	err := row.Scan(&recJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "remotestore: read %s", dayKey)
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrapf(err, "remotestore: unmarshal %s", dayKey)
	}
	return &rec, nil
}

// List returns every record the account owns, keyed by day.
func (s *Store) List(ctx context.Context, owner string) (map[string]model.Record, error) {
	if owner == "" {
		return nil, ErrNoIdentity
	}
	rows, err := s.pool.Query(ctx,
		`SELECT day_key, record FROM progress WHERE owner = $1`,
		owner,
	)
	if err != nil {
		return nil, eris.Wrap(err, "remotestore: list")
	}
	defer rows.Close()

	out := make(map[string]model.Record)
	for rows.Next() {
		var dayKey, recJSON string
		if err := rows.Scan(&dayKey, &recJSON); err != nil {
			return nil, eris.Wrap(err, "remotestore: scan")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, eris.Wrapf(err, "remotestore: unmarshal %s", dayKey)
		}
		out[dayKey] = rec
	}
	return out, eris.Wrap(rows.Err(), "remotestore: list iterate")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
