// Package reconcile compares every replica pair for an identity and
// resolves the differences: once at sign-in (with a user decision), and
// during background sweeps (with the automatic policy in policy.go).
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/playback-games/progress-sync/internal/model"
	"github.com/playback-games/progress-sync/internal/normalize"
	"github.com/playback-games/progress-sync/internal/syncer"
)

// ErrNotSignedIn is returned when reconciliation is attempted without an
// identity; there is nothing to reconcile against.
var ErrNotSignedIn = eris.New("reconcile: not signed in")

// keepSeparatePrefix marks identities whose sign-in review chose to leave
// the device's anonymous records alone. Stored in the cache's meta table
// so later sweeps skip them.
const keepSeparatePrefix = "keep-separate:"

// Engine computes and applies sign-in reconciliation for the coordinator's
// current identity.
type Engine struct {
	coord *syncer.Coordinator
}

// NewEngine builds an engine on top of the coordinator's stores.
func NewEngine(coord *syncer.Coordinator) *Engine {
	return &Engine{coord: coord}
}

// DetectConflicts enumerates every cached record with progress and pairs
// it with the account's row for the same day. A pair is mergeable when the
// remote side has no progress; otherwise both sides played and a decision
// is needed. Bootstrap is set when the account has no rows at all, so the
// surface can offer a single "save everything now" choice.
func (e *Engine) DetectConflicts(ctx context.Context) (*model.ConflictSet, error) {
	owner := e.coord.Identity().Current()
	if owner == "" {
		return nil, ErrNotSignedIn
	}

	remoteRows, err := e.coord.Remote().List(ctx, owner)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list remote")
	}

	localRecs, err := e.coord.Local().List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list local")
	}

	keepSeparate, _, err := e.coord.Local().GetMeta(ctx, keepSeparatePrefix+owner)
	if err != nil {
		return nil, err
	}

	cs := &model.ConflictSet{Bootstrap: len(remoteRows) == 0}
	for dayKey, raw := range localRecs {
		local := normalize.Normalize(raw)
		if !local.HasProgress() {
			continue
		}
		// Records owned by a different account never cross identities,
		// and anonymous records stay out once the user chose to keep
		// them separate.
		if local.Owner != "" && local.Owner != owner {
			continue
		}
		if local.Owner == "" && keepSeparate == "1" {
			continue
		}

		conflict := model.Conflict{DayKey: dayKey, Local: &local, Classification: model.Mergeable}
		if remote, ok := remoteRows[dayKey]; ok {
			norm := normalize.Normalize(remote)
			conflict.Remote = &norm
			if norm.HasProgress() {
				// Replicas that already agree are converged, not in
				// conflict; surfacing them would only add review noise.
				if local.SameProgress(&norm) {
					continue
				}
				conflict.Classification = model.NotMergeable
			}
		}
		cs.Conflicts = append(cs.Conflicts, conflict)
	}
	return cs, nil
}

// Apply executes the user's decision over the conflict set. Re-applying
// the same decision after a partial failure is safe: the remote writes are
// upserts of whole records and the local mutations are absolute, so no
// attempt is ever double-counted.
func (e *Engine) Apply(ctx context.Context, cs *model.ConflictSet, d model.Decision) error {
	owner := e.coord.Identity().Current()
	if owner == "" {
		return ErrNotSignedIn
	}

	switch d.Kind {
	case model.ImportAll:
		return e.push(ctx, owner, cs.Conflicts, func(model.Conflict) bool { return true })

	case model.MergeSelected:
		return e.push(ctx, owner, cs.Conflicts, func(c model.Conflict) bool {
			return d.Selected(c.DayKey)
		})

	case model.KeepRemoteOnly:
		for _, c := range cs.Conflicts {
			if err := e.coord.Local().MarkSuperseded(ctx, c.DayKey); err != nil {
				return err
			}
		}
		return nil

	case model.KeepSeparate:
		for _, c := range cs.Conflicts {
			if err := e.coord.Local().SetOwner(ctx, c.DayKey, ""); err != nil {
				return err
			}
		}
		return e.coord.Local().SetMeta(ctx, keepSeparatePrefix+owner, "1")

	default:
		return eris.Errorf("reconcile: unknown decision %q", d.Kind)
	}
}

// push adopts the matching local records into the account and mirrors
// them; local wins unconditionally over whatever the row held.
func (e *Engine) push(ctx context.Context, owner string, conflicts []model.Conflict, match func(model.Conflict) bool) error {
	for _, c := range conflicts {
		if !match(c) {
			continue
		}
		rec := normalize.Normalize(*c.Local)
		rec.Owner = owner
		if err := e.coord.Local().SetOwner(ctx, c.DayKey, owner); err != nil {
			return err
		}
		if err := e.coord.Remote().Upsert(ctx, owner, rec, e.coord.DeviceID()); err != nil {
			return eris.Wrapf(err, "reconcile: push %s", c.DayKey)
		}
		zap.L().Info("imported local progress",
			zap.String("day_key", c.DayKey), zap.Int("attempts", rec.Attempts))
	}
	return nil
}
