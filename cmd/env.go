package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/playback-games/progress-sync/internal/events"
	"github.com/playback-games/progress-sync/internal/identity"
	"github.com/playback-games/progress-sync/internal/localstore"
	"github.com/playback-games/progress-sync/internal/reconcile"
	"github.com/playback-games/progress-sync/internal/remotestore"
	"github.com/playback-games/progress-sync/internal/syncer"
)

// env holds the wired sync engine shared by the commands.
type env struct {
	Bus    *events.Bus
	Local  *localstore.Store
	Remote *remotestore.Store
	IDs    *identity.Static
	Coord  *syncer.Coordinator
	Engine *reconcile.Engine
}

func initEnv(ctx context.Context) (*env, error) {
	bus := events.NewBus()

	local, err := localstore.New(cfg.Local.Path, bus)
	if err != nil {
		return nil, eris.Wrap(err, "open device cache")
	}
	if err := local.Migrate(ctx); err != nil {
		local.Close()
		return nil, err
	}

	remote, err := remotestore.New(ctx, cfg.Remote.DatabaseURL, &cfg.Remote.Pool)
	if err != nil {
		local.Close()
		return nil, err
	}

	ids := identity.NewStatic(cfg.Identity.Owner)
	coord, err := syncer.New(ctx, local, remote, ids, bus, cfg.Sync)
	if err != nil {
		remote.Close()
		local.Close()
		return nil, err
	}

	return &env{
		Bus:    bus,
		Local:  local,
		Remote: remote,
		IDs:    ids,
		Coord:  coord,
		Engine: reconcile.NewEngine(coord),
	}, nil
}

func (e *env) Close() {
	e.Coord.Wait()
	e.Remote.Close()
	_ = e.Local.Close()
}
