// Package events provides the typed in-process notification bus the sync
// components publish on. Listeners in the same process converge on local
// changes without re-reading storage.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/playback-games/progress-sync/internal/model"
)

// Type tags a bus event.
type Type string

const (
	// LocalChanged fires after every local cache write.
	LocalChanged Type = "local-changed"

	// ProgressChanged fires after the coordinator accepts a save,
	// regardless of remote mirror outcome.
	ProgressChanged Type = "progress-changed"

	// RemoteAccepted fires when a remote record from another device is
	// taken into the local cache.
	RemoteAccepted Type = "remote-accepted"

	// SyncStateChanged fires on live-monitor state transitions; Record
	// is nil and DayKey carries the state name.
	SyncStateChanged Type = "sync-state-changed"

	// ConflictDetected fires when an inbound change cannot be resolved
	// automatically and needs a user choice.
	ConflictDetected Type = "conflict-detected"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type   Type
	DayKey string
	Record *model.Record
}

// Bus is a minimal synchronous publish/subscribe hub. Delivery order
// follows subscription order; a panicking subscriber is logged and does
// not stop delivery to the rest.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for all events and returns its cancel func.
// Cancel is idempotent.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber synchronously.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	ids := make([]int, 0, len(b.subs))
	for id := 0; id < b.next; id++ {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	for i, fn := range fns {
		deliver(fn, ev, ids[i])
	}
}

func deliver(fn func(Event), ev Event, id int) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("event subscriber panicked",
				zap.Int("subscriber", id),
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ev)
}
