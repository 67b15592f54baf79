package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/connect4-server/pkg/c4dto"
)

const DefaultSnapshotTTL = 24 * time.Hour

// Snapshots stores the latest public state of each session plus a
// per-identity index of session ids.
type Snapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshots(rdb *redis.Client, ttl time.Duration) *Snapshots {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Snapshots{rdb: rdb, ttl: ttl}
}

func (s *Snapshots) keySession(id string) string   { return "c4:session:" + strings.TrimSpace(id) }
func (s *Snapshots) keyUserIdx(user string) string { return "c4:index:user:" + strings.TrimSpace(user) }

func (s *Snapshots) SaveSnapshot(ctx context.Context, state *c4dto.PublicState, humans []string) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keySession(state.SessionID), raw, s.ttl)
	for _, h := range humans {
		if strings.TrimSpace(h) == "" {
			continue
		}
		pipe.SAdd(ctx, s.keyUserIdx(h), state.SessionID)
		pipe.Expire(ctx, s.keyUserIdx(h), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when the snapshot is missing or expired.
func (s *Snapshots) Load(ctx context.Context, sessionID string) (*c4dto.PublicState, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st c4dto.PublicState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SessionsByUser lists the snapshots recorded for identity, newest first by
// last update. Expired snapshots are skipped.
func (s *Snapshots) SessionsByUser(ctx context.Context, identity string) ([]*c4dto.PublicState, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyUserIdx(identity)).Result()
	if err != nil {
		return nil, err
	}
	var out []*c4dto.PublicState
	for _, id := range ids {
		st, err := s.Load(ctx, id)
		if err != nil || st == nil {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}
