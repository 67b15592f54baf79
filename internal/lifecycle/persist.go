package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/session"
)

// persistJob is one best-effort write. Exactly one field is set.
type persistJob struct {
	snapshot *session.Snapshot
	record   *session.Snapshot
}

func (m *Manager) enqueueSnapshot(snap session.Snapshot) {
	if m.cfg.Snapshots == nil {
		return
	}
	m.enqueue(persistJob{snapshot: &snap})
}

// enqueue never blocks: callers may hold a session lock.
func (m *Manager) enqueue(job persistJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.jobs <- job:
	default:
		id := ""
		if job.snapshot != nil {
			id = job.snapshot.ID
		} else if job.record != nil {
			id = job.record.ID
		}
		m.log.Warn("lifecycle_persist_dropped", zap.String("session_id", id))
	}
}

// persistLoop applies writes in the order they were queued so a later
// snapshot never lands before an earlier one.
func (m *Manager) persistLoop() {
	defer m.jobsWG.Done()
	for job := range m.jobs {
		switch {
		case job.snapshot != nil:
			m.saveSnapshot(*job.snapshot)
		case job.record != nil:
			m.persistResult(*job.record)
		}
	}
}

func (m *Manager) saveSnapshot(snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	humans := snap.Humans()
	if len(humans) == 0 {
		// waiting sessions have no participants yet
		humans = m.identitiesFor(snap.ID)
	}
	if err := m.cfg.Snapshots.SaveSnapshot(ctx, snap.Public(), humans); err != nil {
		m.log.Warn("lifecycle_snapshot_save_error", zap.String("session_id", snap.ID), zap.Error(err))
	}
}

// persistResult writes the completed match and the leaderboard win. Sink
// failures are logged and swallowed.
func (m *Manager) persistResult(snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	rec := snap.Record()
	if m.cfg.Matches != nil {
		if err := m.cfg.Matches.RecordCompletedMatch(ctx, rec); err != nil {
			m.log.Error("lifecycle_match_persist_error", zap.String("session_id", snap.ID), zap.Error(err))
		} else {
			m.log.Info("lifecycle_match_persist",
				zap.String("session_id", snap.ID),
				zap.String("reason", rec.Reason),
				zap.String("winner", rec.Winner),
				zap.Int("moves", rec.MoveCount),
			)
		}
	}
	if m.cfg.Wins == nil || snap.Mode == session.ModeLocal {
		return
	}
	winner, ok := snap.Winner()
	if !ok || winner.IsBot {
		return
	}
	if err := m.cfg.Wins.RecordWin(ctx, winner.DisplayName); err != nil {
		m.log.Error("lifecycle_win_persist_error", zap.String("session_id", snap.ID), zap.String("winner", winner.DisplayName), zap.Error(err))
	}
}

func (m *Manager) identitiesFor(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for identity, id := range m.byUser {
		if id == sessionID {
			out = append(out, identity)
		}
	}
	return out
}
