package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/connect4-server/internal/domain"
)

// memrepo is used when no DATABASE_URL is configured.
type memrepo struct {
	mu        sync.RWMutex
	bySession map[string]domain.CompletedMatchRecord
	order     []string
}

func NewMemory() Repository {
	return &memrepo{bySession: make(map[string]domain.CompletedMatchRecord)}
}

func (m *memrepo) RecordCompletedMatch(_ context.Context, rec domain.CompletedMatchRecord) error {
	key := strings.TrimSpace(rec.SessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[key]; exists {
		return ErrDuplicateMatch
	}
	m.bySession[key] = rec
	m.order = append(m.order, key)
	return nil
}

func (m *memrepo) RecentMatches(_ context.Context, limit int) ([]domain.CompletedMatchRecord, error) {
	return m.filter(limit, func(domain.CompletedMatchRecord) bool { return true }), nil
}

func (m *memrepo) MatchesByIdentity(_ context.Context, identity string, limit int) ([]domain.CompletedMatchRecord, error) {
	identity = strings.TrimSpace(identity)
	return m.filter(limit, func(rec domain.CompletedMatchRecord) bool {
		for _, p := range rec.Players {
			if p.Identity == identity {
				return true
			}
		}
		return false
	}), nil
}

func (m *memrepo) Close() error { return nil }

func (m *memrepo) filter(limit int, keep func(domain.CompletedMatchRecord) bool) []domain.CompletedMatchRecord {
	limit = clampLimit(limit)
	m.mu.RLock()
	items := make([]domain.CompletedMatchRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.bySession[m.order[i]]
		if keep(rec) {
			items = append(items, rec)
		}
	}
	m.mu.RUnlock()

	// finished_at desc, later inserts first on ties
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FinishedAt.After(items[j].FinishedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
