// Package syncer is the façade gameplay talks to. Reads prefer the
// account's durable rows when signed in; writes land in the device cache
// synchronously and are mirrored to the account in the background. The
// local write is the durability boundary for interactive latency, the
// remote write is best-effort eventual durability.
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/playback-games/progress-sync/internal/config"
	"github.com/playback-games/progress-sync/internal/events"
	"github.com/playback-games/progress-sync/internal/identity"
	"github.com/playback-games/progress-sync/internal/model"
	"github.com/playback-games/progress-sync/internal/normalize"
	"github.com/playback-games/progress-sync/internal/resilience"
)

// mirrorTimeout bounds one background mirror write, detached from the
// caller's context so a finished request doesn't abort its own mirror.
const mirrorTimeout = 30 * time.Second

// LocalStore is the device cache the coordinator reads through.
type LocalStore interface {
	Read(ctx context.Context, dayKey string) *model.Record
	Write(ctx context.Context, dayKey string, rec model.Record, currentOwner string)
	List(ctx context.Context) (map[string]model.Record, error)
	SetOwner(ctx context.Context, dayKey, owner string) error
	MarkSuperseded(ctx context.Context, dayKey string) error
	GetMeta(ctx context.Context, key string) (value string, ok bool, err error)
	SetMeta(ctx context.Context, key, value string) error
	DeviceID(ctx context.Context) (string, error)
}

// RemoteStore is the durable per-account table.
type RemoteStore interface {
	Upsert(ctx context.Context, owner string, rec model.Record, deviceID string) error
	Read(ctx context.Context, owner, dayKey string) (*model.Record, error)
	List(ctx context.Context, owner string) (map[string]model.Record, error)
	Ping(ctx context.Context) error
}

// Coordinator orchestrates the two replica stores. It owns no record data
// itself, only the dirty-key bookkeeping for deferred mirror writes.
type Coordinator struct {
	local    LocalStore
	remote   RemoteStore
	ids      identity.Provider
	bus      *events.Bus
	cfg      config.SyncConfig
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	deviceID string

	mu    sync.Mutex
	dirty map[string]struct{}

	wg sync.WaitGroup
}

// New builds a coordinator and resolves the persistent device identifier.
func New(ctx context.Context, local LocalStore, remote RemoteStore, ids identity.Provider, bus *events.Bus, cfg config.SyncConfig) (*Coordinator, error) {
	deviceID, err := local.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	perSecond := cfg.MirrorPerSecond
	if perSecond <= 0 {
		perSecond = 2.0
	}
	burst := cfg.MirrorBurst
	if burst <= 0 {
		burst = 5
	}

	return &Coordinator{
		local:    local,
		remote:   remote,
		ids:      ids,
		bus:      bus,
		cfg:      cfg,
		retry:    resilience.DefaultRetryConfig(),
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		deviceID: deviceID,
		dirty:    make(map[string]struct{}),
	}, nil
}

// DeviceID returns this device's stable identifier.
func (c *Coordinator) DeviceID() string { return c.deviceID }

// Bus returns the notification bus the coordinator publishes on.
func (c *Coordinator) Bus() *events.Bus { return c.bus }

// Identity returns the identity provider.
func (c *Coordinator) Identity() identity.Provider { return c.ids }

// Local exposes the device cache to the reconciliation engine.
func (c *Coordinator) Local() LocalStore { return c.local }

// Remote exposes the account table to the reconciliation engine.
func (c *Coordinator) Remote() RemoteStore { return c.remote }

// Load returns the record for dayKey. Signed in, the account row wins;
// the cache is a fallback only when its record belongs to the current
// identity, so one account's progress never leaks into another's session.
// Signed out, the cache answers directly.
func (c *Coordinator) Load(ctx context.Context, dayKey string) (*model.Record, error) {
	owner := c.ids.Current()

	if owner != "" {
		rec, err := c.remote.Read(ctx, owner, dayKey)
		if err != nil {
			zap.L().Warn("remote read failed, falling back to cache",
				zap.String("day_key", dayKey), zap.Error(err))
		} else if rec != nil {
			norm := normalize.Normalize(*rec)
			return &norm, nil
		}

		cached := c.local.Read(ctx, dayKey)
		if cached == nil || cached.Owner != owner {
			return nil, nil
		}
		norm := normalize.Normalize(*cached)
		return &norm, nil
	}

	cached := c.local.Read(ctx, dayKey)
	if cached == nil {
		return nil, nil
	}
	norm := normalize.Normalize(*cached)
	return &norm, nil
}

// Save persists the record: normalized, written to the cache
// synchronously, mirrored to the account asynchronously when signed in.
// The caller never observes remote latency or remote failure; a failed
// mirror marks the key dirty and is retried on the next save or sweep.
func (c *Coordinator) Save(ctx context.Context, dayKey string, rec model.Record) {
	if rec.MaxAttempts <= 0 && c.cfg.MaxAttempts > 0 {
		rec.MaxAttempts = c.cfg.MaxAttempts
	}
	rec.DayKey = dayKey
	rec = normalize.Normalize(rec)

	owner := c.ids.Current()
	c.local.Write(ctx, dayKey, rec, owner)

	if c.bus != nil {
		stamped := c.local.Read(ctx, dayKey)
		if stamped == nil {
			stamped = &rec
		}
		c.bus.Publish(events.Event{Type: events.ProgressChanged, DayKey: dayKey, Record: stamped})
	}

	if owner == "" {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		mctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		c.mirror(mctx, owner, dayKey)
	}()
}

// mirror pushes the cached record for dayKey to the account table. One
// attempt only: a failure defers the key to the next save or sweep
// instead of amplifying the interactive write with immediate retries.
func (c *Coordinator) mirror(ctx context.Context, owner, dayKey string) {
	rec := c.local.Read(ctx, dayKey)
	if rec == nil {
		return
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.markDirty(dayKey)
		return
	}

	if err := c.remote.Upsert(ctx, owner, *rec, c.deviceID); err != nil {
		zap.L().Warn("mirror write deferred",
			zap.String("day_key", dayKey), zap.Error(err))
		c.markDirty(dayKey)
		return
	}
	c.clearDirty(dayKey)
}

// FlushDirty retries every deferred mirror write, with backoff per key.
// Called by the live monitor's sweep, where bounded retries cannot slow
// an interactive save; also safe to call manually.
func (c *Coordinator) FlushDirty(ctx context.Context) {
	owner := c.ids.Current()
	if owner == "" {
		return
	}
	for _, dayKey := range c.dirtyKeys() {
		rec := c.local.Read(ctx, dayKey)
		if rec == nil {
			c.clearDirty(dayKey)
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		cfg := c.retry
		cfg.OnRetry = resilience.RetryLogger("flush")
		err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return c.remote.Upsert(ctx, owner, *rec, c.deviceID)
		})
		if err != nil {
			zap.L().Warn("flush write still deferred",
				zap.String("day_key", dayKey), zap.Error(err))
			continue
		}
		c.clearDirty(dayKey)
	}
}

// Wait blocks until all in-flight mirror writes finish. Shutdown and test
// hook.
func (c *Coordinator) Wait() { c.wg.Wait() }

// DirtyCount reports how many keys have a deferred mirror write pending.
func (c *Coordinator) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

func (c *Coordinator) markDirty(dayKey string) {
	c.mu.Lock()
	c.dirty[dayKey] = struct{}{}
	c.mu.Unlock()
}

func (c *Coordinator) clearDirty(dayKey string) {
	c.mu.Lock()
	delete(c.dirty, dayKey)
	c.mu.Unlock()
}

func (c *Coordinator) dirtyKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	return keys
}
