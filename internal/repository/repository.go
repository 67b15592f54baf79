package repository

import (
	"context"
	"errors"

	"github.com/park285/connect4-server/internal/domain"
)

var ErrDuplicateMatch = errors.New("match already recorded")

const DefaultRecentLimit = 20

// Repository stores completed matches. Records are written once.
type Repository interface {
	RecordCompletedMatch(ctx context.Context, rec domain.CompletedMatchRecord) error
	RecentMatches(ctx context.Context, limit int) ([]domain.CompletedMatchRecord, error)
	MatchesByIdentity(ctx context.Context, identity string, limit int) ([]domain.CompletedMatchRecord, error)
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
