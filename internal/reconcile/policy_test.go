package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/playback-games/progress-sync/internal/config"
	"github.com/playback-games/progress-sync/internal/model"
)

var policyCfg = config.SyncConfig{ScoreGap: 1.5, RecencyGap: time.Hour}

func rec(attempts, hint int, won bool, mod time.Time) *model.Record {
	return &model.Record{
		Attempts:     attempts,
		HintLevel:    hint,
		Won:          won,
		Completed:    won,
		LastModified: mod,
	}
}

func TestAutoResolveWinPreference(t *testing.T) {
	now := time.Now()

	side, ok := AutoResolve(rec(3, 3, true, now), rec(2, 3, false, now.Add(time.Minute)), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, LocalSide, side)

	side, ok = AutoResolve(rec(2, 3, false, now), rec(3, 3, true, now), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, RemoteSide, side)
}

func TestAutoResolveScoreGap(t *testing.T) {
	now := time.Now()

	// local 1.0 vs remote 4.0: gap 3.0 >= 1.5
	side, ok := AutoResolve(rec(1, 1, false, now), rec(3, 3, false, now), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, RemoteSide, side)

	side, ok = AutoResolve(rec(3, 3, false, now), rec(1, 1, false, now), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, LocalSide, side)
}

func TestAutoResolveRecency(t *testing.T) {
	now := time.Now()

	// Same score, one side two hours newer.
	side, ok := AutoResolve(rec(1, 2, false, now), rec(1, 2, false, now.Add(2*time.Hour)), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, RemoteSide, side)

	side, ok = AutoResolve(rec(1, 2, false, now.Add(2*time.Hour)), rec(1, 2, false, now), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, LocalSide, side)
}

func TestAutoResolveEscalates(t *testing.T) {
	now := time.Now()

	// No win difference, score gap 0, 10 minutes apart: a human decides.
	side, ok := AutoResolve(rec(1, 2, false, now), rec(1, 2, false, now.Add(10*time.Minute)), policyCfg)
	assert.False(t, ok)
	assert.Equal(t, NoSide, side)
}

func TestAutoResolveBothWonFallsThrough(t *testing.T) {
	now := time.Now()

	// Both won with identical scores: recency decides.
	side, ok := AutoResolve(rec(3, 3, true, now.Add(2*time.Hour)), rec(3, 3, true, now), policyCfg)
	assert.True(t, ok)
	assert.Equal(t, LocalSide, side)
}

func TestAutoResolveGapJustUnderThreshold(t *testing.T) {
	now := time.Now()

	// Score gap exactly 1.0 (< 1.5) and within the hour: escalate.
	side, ok := AutoResolve(rec(2, 1, false, now), rec(1, 1, false, now.Add(time.Minute)), policyCfg)
	assert.False(t, ok)
	assert.Equal(t, NoSide, side)
}
