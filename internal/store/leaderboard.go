package store

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/connect4-server/internal/domain"
)

const (
	DefaultTopN = 10
	MaxTopN     = 100
)

// Leaderboard keeps win counts in a sorted set keyed by display name.
type Leaderboard struct {
	rdb *redis.Client
	key string
}

func NewLeaderboard(rdb *redis.Client) *Leaderboard {
	return &Leaderboard{rdb: rdb, key: "c4:leaderboard"}
}

func (l *Leaderboard) RecordWin(ctx context.Context, displayName string) error {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil
	}
	return l.rdb.ZIncrBy(ctx, l.key, 1, name).Err()
}

// TopN returns standings by wins descending. Equal scores follow Redis
// reverse lexicographic member order.
func (l *Leaderboard) TopN(ctx context.Context, n int) ([]domain.Standing, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	if n > MaxTopN {
		n = MaxTopN
	}
	rows, err := l.rdb.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Standing, 0, len(rows))
	for _, z := range rows {
		name, _ := z.Member.(string)
		out = append(out, domain.Standing{DisplayName: name, Wins: int64(z.Score)})
	}
	return out, nil
}

func (l *Leaderboard) Wins(ctx context.Context, displayName string) (int64, error) {
	score, err := l.rdb.ZScore(ctx, l.key, strings.TrimSpace(displayName)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(score), nil
}
