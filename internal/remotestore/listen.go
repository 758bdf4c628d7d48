package remotestore

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/playback-games/progress-sync/internal/model"
)

// Change is one inbound row-change notification.
type Change struct {
	Owner    string       `json:"owner"`
	DayKey   string       `json:"day_key"`
	DeviceID string       `json:"device_id"`
	Record   model.Record `json:"record"`
}

func (s *Store) notify(ctx context.Context, owner, dayKey, deviceID string, recJSON []byte) error {
	payload, err := json.Marshal(Change{
		Owner:    owner,
		DayKey:   dayKey,
		DeviceID: deviceID,
		Record:   mustRecord(recJSON),
	})
	if err != nil {
		return eris.Wrap(err, "remotestore: marshal notification")
	}
	_, err = s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	return eris.Wrapf(err, "remotestore: notify %s", dayKey)
}

func mustRecord(recJSON []byte) model.Record {
	var rec model.Record
	_ = json.Unmarshal(recJSON, &rec)
	return rec
}

// Listen subscribes to row changes for owner on a dedicated connection and
// delivers them until ctx is cancelled or the connection drops, after which
// the channel is closed. Changes stamped with deviceID (our own writes) and
// changes for other owners are filtered out before delivery. The caller is
// expected to resubscribe after a close; the periodic sweep covers the gap.
func (s *Store) Listen(ctx context.Context, owner, deviceID string) (<-chan Change, error) {
	if owner == "" {
		return nil, ErrNoIdentity
	}
	if s.raw == nil {
		return nil, eris.New("remotestore: listen requires a live pool")
	}

	conn, err := s.raw.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "remotestore: acquire listen conn")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, eris.Wrap(err, "remotestore: listen")
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Warn("change stream dropped", zap.Error(err))
				}
				return
			}
			var ch Change
			if err := json.Unmarshal([]byte(n.Payload), &ch); err != nil {
				zap.L().Warn("bad change payload", zap.Error(err))
				continue
			}
			if ch.Owner != owner || ch.DeviceID == deviceID {
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
