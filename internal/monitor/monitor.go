// Package monitor keeps the replicas of a signed-in identity converged in
// the background: it consumes the account's change stream, auto-resolves
// divergent replicas where a heuristic applies, and escalates the rest.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/playback-games/progress-sync/internal/config"
	"github.com/playback-games/progress-sync/internal/events"
	"github.com/playback-games/progress-sync/internal/identity"
	"github.com/playback-games/progress-sync/internal/model"
	"github.com/playback-games/progress-sync/internal/normalize"
	"github.com/playback-games/progress-sync/internal/reconcile"
	"github.com/playback-games/progress-sync/internal/remotestore"
	"github.com/playback-games/progress-sync/internal/syncer"
)

// State is the per-session sync state machine:
// idle → syncing → {synced | conflict | error} → idle.
type State string

const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateSynced   State = "synced"
	StateConflict State = "conflict"
	StateError    State = "error"
)

// Resolver is the manual resolution surface. ReviewSignIn answers the
// one-time sign-in review; ReviewLive answers live conflicts, possibly
// partially — keys missing from the returned map stay pending.
type Resolver interface {
	ReviewSignIn(ctx context.Context, cs *model.ConflictSet) (model.Decision, error)
	ReviewLive(ctx context.Context, conflicts []model.Conflict) (map[string]model.LiveChoice, error)
}

// ChangeSource is the remote change-notification stream.
type ChangeSource interface {
	Listen(ctx context.Context, owner, deviceID string) (<-chan remotestore.Change, error)
}

// Monitor drives background convergence for one device session.
type Monitor struct {
	coord    *syncer.Coordinator
	engine   *reconcile.Engine
	source   ChangeSource
	resolver Resolver
	cfg      config.SyncConfig

	focusCh  chan struct{}
	signinCh chan struct{}

	mu      sync.Mutex
	state   State
	pending map[string]model.Conflict

	sweeps      singleflight.Group
	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
}

// New builds a monitor. resolver may be nil, in which case every conflict
// stays pending until answered via ResolvePending.
func New(coord *syncer.Coordinator, engine *reconcile.Engine, source ChangeSource, resolver Resolver, cfg config.SyncConfig) *Monitor {
	return &Monitor{
		coord:    coord,
		engine:   engine,
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		focusCh:  make(chan struct{}, 1),
		signinCh: make(chan struct{}, 1),
		state:    StateIdle,
		pending:  make(map[string]model.Conflict),
	}
}

// State returns the current sync state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PendingConflicts returns the live conflicts awaiting a user choice.
func (m *Monitor) PendingConflicts() []model.Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Conflict, 0, len(m.pending))
	for _, c := range m.pending {
		out = append(out, c)
	}
	return out
}

// Focus signals a regained-focus event; the next sweep runs immediately.
func (m *Monitor) Focus() {
	select {
	case m.focusCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, consuming change notifications and
// sweeping on the configured interval, on focus, and on sign-in.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	cancelIdent := m.coord.Identity().Subscribe(func(tr identity.Transition) {
		if tr.SignedIn {
			select {
			case m.signinCh <- struct{}{}:
			default:
			}
		}
	})
	defer cancelIdent()

	var changes <-chan remotestore.Change
	listen := func() {
		changes = nil
		owner := m.coord.Identity().Current()
		if owner == "" {
			return
		}
		ch, err := m.source.Listen(ctx, owner, m.coord.DeviceID())
		if err != nil {
			zap.L().Warn("change stream unavailable, relying on sweeps", zap.Error(err))
			m.setState(StateError)
			m.setState(StateIdle)
			return
		}
		changes = ch
	}
	listen()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.signinCh:
			if err := m.signIn(ctx); err != nil && ctx.Err() == nil {
				zap.L().Error("sign-in reconciliation failed", zap.Error(err))
			}
			listen()

		case <-tick.C:
			m.Sweep(ctx)
			if changes == nil {
				listen()
			}

		case <-m.focusCh:
			m.Sweep(ctx)
			if changes == nil {
				listen()
			}

		case ch, ok := <-changes:
			if !ok {
				// Stream dropped; sweeps cover the gap until relisten.
				changes = nil
				continue
			}
			m.handleChange(ctx, ch)
		}
	}
}

// signIn runs the one-time reconciliation review for a fresh identity.
func (m *Monitor) signIn(ctx context.Context) error {
	cs, err := m.engine.DetectConflicts(ctx)
	if err != nil {
		return err
	}
	if cs.Empty() {
		return nil
	}
	if m.resolver == nil {
		m.mu.Lock()
		for _, c := range cs.Conflicts {
			m.pending[c.DayKey] = c
		}
		m.mu.Unlock()
		m.setState(StateConflict)
		return nil
	}
	decision, err := m.resolver.ReviewSignIn(ctx, cs)
	if err != nil {
		return err
	}
	return m.engine.Apply(ctx, cs, decision)
}

// handleChange applies one inbound row change from another device.
func (m *Monitor) handleChange(ctx context.Context, ch remotestore.Change) {
	owner := m.coord.Identity().Current()
	if owner == "" || ch.Owner != owner {
		return
	}
	m.setState(StateSyncing)

	remote := normalize.Normalize(ch.Record)
	local := m.coord.Local().Read(ctx, ch.DayKey)

	// No local replica: accept the remote record outright.
	if local == nil {
		m.coord.Local().Write(ctx, ch.DayKey, remote, owner)
		m.coord.Bus().Publish(events.Event{Type: events.RemoteAccepted, DayKey: ch.DayKey, Record: &remote})
		m.setState(StateSynced)
		m.setState(StateIdle)
		return
	}

	// Records this identity may not touch: anonymous ones are awaiting
	// (or were excluded by) the sign-in review, and rows owned by another
	// account never cross identities. Neither replica is written.
	if local.Owner != owner {
		m.setState(StateSynced)
		m.setState(StateIdle)
		return
	}

	norm := normalize.Normalize(*local)
	if norm.SameProgress(&remote) {
		m.setState(StateSynced)
		m.setState(StateIdle)
		return
	}

	m.resolvePair(ctx, owner, model.Conflict{
		DayKey:         ch.DayKey,
		Local:          &norm,
		Remote:         &remote,
		Classification: model.NotMergeable,
	})
	m.reviewPending(ctx)
}

// resolvePair runs the automatic policy and writes the winner to the
// losing side; unresolvable pairs go to the pending queue.
func (m *Monitor) resolvePair(ctx context.Context, owner string, c model.Conflict) {
	side, ok := reconcile.AutoResolve(c.Local, c.Remote, m.cfg)
	if !ok {
		zap.L().Info("conflict needs manual review", zap.String("day_key", c.DayKey))
		m.mu.Lock()
		m.pending[c.DayKey] = c
		m.mu.Unlock()
		m.coord.Bus().Publish(events.Event{Type: events.ConflictDetected, DayKey: c.DayKey, Record: c.Remote})
		m.setState(StateConflict)
		return
	}

	switch side {
	case reconcile.LocalSide:
		if err := m.coord.Remote().Upsert(ctx, owner, *c.Local, m.coord.DeviceID()); err != nil {
			zap.L().Warn("winner push failed, deferring to next sweep",
				zap.String("day_key", c.DayKey), zap.Error(err))
			m.setState(StateError)
			m.setState(StateIdle)
			return
		}
	case reconcile.RemoteSide:
		m.coord.Local().Write(ctx, c.DayKey, *c.Remote, owner)
		m.coord.Bus().Publish(events.Event{Type: events.RemoteAccepted, DayKey: c.DayKey, Record: c.Remote})
	}
	m.setState(StateSynced)
	m.setState(StateIdle)
}

// Sweep runs one reconciliation pass: flush deferred mirror writes, detect
// divergence, auto-resolve what the policy covers, batch the rest for
// review. Concurrent callers share one pass; a newer sweep cancels an
// in-flight one so a stale resolution can never overwrite fresher state.
func (m *Monitor) Sweep(ctx context.Context) {
	owner := m.coord.Identity().Current()
	if owner == "" {
		return
	}

	m.sweepMu.Lock()
	if m.sweepCancel != nil {
		m.sweepCancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepMu.Unlock()
	defer cancel()

	// A caller can join the very run it just cancelled; re-run until a
	// pass completes under a context that is still live.
	for {
		_, err, _ := m.sweeps.Do(owner, func() (any, error) {
			m.sweep(sctx, owner)
			return nil, sctx.Err()
		})
		if err == nil || sctx.Err() != nil {
			return
		}
	}
}

func (m *Monitor) sweep(ctx context.Context, owner string) {
	// Offline: local-only operation continues, the next sweep retries.
	if err := m.coord.Remote().Ping(ctx); err != nil {
		zap.L().Debug("sweep skipped, remote unreachable", zap.Error(err))
		m.setState(StateError)
		m.setState(StateIdle)
		return
	}

	m.setState(StateSyncing)
	m.coord.FlushDirty(ctx)

	cs, err := m.engine.DetectConflicts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Warn("sweep detection failed", zap.Error(err))
			m.setState(StateError)
			m.setState(StateIdle)
		}
		return
	}

	for _, c := range cs.Conflicts {
		if ctx.Err() != nil {
			return
		}
		// Anonymous records wait for an explicit sign-in decision; sweeps
		// only converge rows the identity already owns.
		if c.Local.Owner != owner {
			continue
		}
		if c.Classification == model.Mergeable {
			// Remote side has nothing to lose; push without review.
			if err := m.coord.Remote().Upsert(ctx, owner, *c.Local, m.coord.DeviceID()); err != nil {
				zap.L().Warn("sweep push failed", zap.String("day_key", c.DayKey), zap.Error(err))
			}
			continue
		}
		m.resolvePair(ctx, owner, c)
	}

	m.reviewPending(ctx)
	if m.State() != StateConflict {
		m.setState(StateSynced)
		m.setState(StateIdle)
	}
}

// reviewPending offers the whole pending batch to the resolution surface
// in one request rather than one dialog per day.
func (m *Monitor) reviewPending(ctx context.Context) {
	if m.resolver == nil {
		return
	}
	batch := m.PendingConflicts()
	if len(batch) == 0 {
		return
	}
	choices, err := m.resolver.ReviewLive(ctx, batch)
	if err != nil {
		zap.L().Warn("live review failed", zap.Error(err))
		return
	}
	for dayKey, choice := range choices {
		if err := m.ResolvePending(ctx, dayKey, choice); err != nil {
			zap.L().Warn("applying live choice failed",
				zap.String("day_key", dayKey), zap.Error(err))
		}
	}
}

// ResolvePending applies a user's keep-local/keep-remote choice for one
// pending conflict.
func (m *Monitor) ResolvePending(ctx context.Context, dayKey string, choice model.LiveChoice) error {
	m.mu.Lock()
	c, ok := m.pending[dayKey]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	owner := m.coord.Identity().Current()
	if owner == "" {
		return reconcile.ErrNotSignedIn
	}

	switch choice {
	case model.KeepLocal:
		if err := m.coord.Remote().Upsert(ctx, owner, *c.Local, m.coord.DeviceID()); err != nil {
			return err
		}
	case model.KeepRemote:
		m.coord.Local().Write(ctx, dayKey, *c.Remote, owner)
		m.coord.Bus().Publish(events.Event{Type: events.RemoteAccepted, DayKey: dayKey, Record: c.Remote})
	}

	m.mu.Lock()
	delete(m.pending, dayKey)
	remaining := len(m.pending)
	m.mu.Unlock()
	if remaining == 0 {
		m.setState(StateSynced)
		m.setState(StateIdle)
	}
	return nil
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.coord.Bus().Publish(events.Event{Type: events.SyncStateChanged, DayKey: string(s)})
}
