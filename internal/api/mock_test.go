package api

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/playback-games/progress-sync/internal/model"
	"github.com/playback-games/progress-sync/internal/resilience"
)

// fakeRemote is an in-memory account table with switchable connectivity.
type fakeRemote struct {
	mu      sync.Mutex
	rows    map[string]map[string]model.Record
	offline bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]map[string]model.Record)}
}

func (f *fakeRemote) put(owner string, rec model.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[owner] == nil {
		f.rows[owner] = make(map[string]model.Record)
	}
	rec.Owner = owner
	f.rows[owner][rec.DayKey] = rec
}

func (f *fakeRemote) get(owner, dayKey string) (model.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[owner][dayKey]
	return rec, ok
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeRemote) Upsert(ctx context.Context, owner string, rec model.Record, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return resilience.Unavailable(eris.New("fake remote offline"))
	}
	if owner == "" {
		return eris.New("fake remote: identity required")
	}
	if f.rows[owner] == nil {
		f.rows[owner] = make(map[string]model.Record)
	}
	rec.Owner = owner
	f.rows[owner][rec.DayKey] = rec
	return nil
}

func (f *fakeRemote) Read(ctx context.Context, owner, dayKey string) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, resilience.Unavailable(eris.New("fake remote offline"))
	}
	rec, ok := f.rows[owner][dayKey]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (f *fakeRemote) List(ctx context.Context, owner string) (map[string]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, resilience.Unavailable(eris.New("fake remote offline"))
	}
	out := make(map[string]model.Record, len(f.rows[owner]))
	for k, v := range f.rows[owner] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return resilience.Unavailable(eris.New("fake remote offline"))
	}
	return nil
}
