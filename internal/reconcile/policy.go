package reconcile

import (
	"github.com/playback-games/progress-sync/internal/config"
	"github.com/playback-games/progress-sync/internal/model"
)

// Side names the replica that won automatic resolution.
type Side int

const (
	NoSide Side = iota
	LocalSide
	RemoteSide
)

// AutoResolve ranks two replicas of the same day without asking the user:
//
//  1. a confirmed win beats a non-win
//  2. a progress-score lead of at least cfg.ScoreGap wins
//  3. a last-modified lead of more than cfg.RecencyGap wins
//
// Concurrent writes inside the recency window with comparable scores are
// deliberately escalated to a human rather than guessed: resolved comes
// back false and neither side is touched.
func AutoResolve(local, remote *model.Record, cfg config.SyncConfig) (winner Side, resolved bool) {
	if local.Won != remote.Won {
		if local.Won {
			return LocalSide, true
		}
		return RemoteSide, true
	}

	gap := local.Score() - remote.Score()
	if gap >= cfg.ScoreGap {
		return LocalSide, true
	}
	if -gap >= cfg.ScoreGap {
		return RemoteSide, true
	}

	age := local.LastModified.Sub(remote.LastModified)
	if age > cfg.RecencyGap {
		return LocalSide, true
	}
	if -age > cfg.RecencyGap {
		return RemoteSide, true
	}

	return NoSide, false
}
