package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/connect4-server/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS c4_matches (
	session_id   TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	players      JSONB NOT NULL,
	winner       TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL,
	move_count   INTEGER NOT NULL,
	duration_ms  BIGINT NOT NULL,
	final_board  JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS c4_matches_finished_at_idx ON c4_matches (finished_at DESC);`

type postgres struct {
	db *sql.DB
}

// OpenPostgres opens DATABASE_URL with the pool settings used across the
// service and pings it.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sql.DB) Repository {
	return &postgres{db: db}
}

// EnsureSchema creates the matches table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *postgres) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *postgres) RecordCompletedMatch(ctx context.Context, rec domain.CompletedMatchRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	board, err := json.Marshal(rec.FinalBoard)
	if err != nil {
		return fmt.Errorf("marshal final_board: %w", err)
	}

	const query = `
		INSERT INTO c4_matches (
			session_id,
			mode,
			players,
			winner,
			reason,
			move_count,
			duration_ms,
			final_board,
			created_at,
			started_at,
			finished_at
		)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.Mode,
		players,
		rec.Winner,
		rec.Reason,
		rec.MoveCount,
		rec.DurationMs,
		board,
		rec.CreatedAt,
		nullTime(rec.StartedAt),
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateMatch
	}
	return nil
}

const selectColumns = `
		SELECT
			session_id,
			mode,
			players,
			winner,
			reason,
			move_count,
			duration_ms,
			final_board,
			created_at,
			started_at,
			finished_at
		FROM c4_matches`

func (r *postgres) RecentMatches(ctx context.Context, limit int) ([]domain.CompletedMatchRecord, error) {
	limit = clampLimit(limit)
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows, limit)
}

func (r *postgres) MatchesByIdentity(ctx context.Context, identity string, limit int) ([]domain.CompletedMatchRecord, error) {
	limit = clampLimit(limit)
	filter, err := json.Marshal([]map[string]string{{"identity": strings.TrimSpace(identity)}})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE players @> $1::jsonb
		ORDER BY finished_at DESC
		LIMIT $2`, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("select matches by identity: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows, limit)
}

func scanMatches(rows *sql.Rows, limit int) ([]domain.CompletedMatchRecord, error) {
	out := make([]domain.CompletedMatchRecord, 0, limit)
	for rows.Next() {
		var (
			rec         domain.CompletedMatchRecord
			playersJSON []byte
			boardJSON   []byte
			startedAt   sql.NullTime
		)
		if err := rows.Scan(
			&rec.SessionID,
			&rec.Mode,
			&playersJSON,
			&rec.Winner,
			&rec.Reason,
			&rec.MoveCount,
			&rec.DurationMs,
			&boardJSON,
			&rec.CreatedAt,
			&startedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if startedAt.Valid {
			rec.StartedAt = startedAt.Time
		}
		if err := json.Unmarshal(playersJSON, &rec.Players); err != nil {
			return nil, fmt.Errorf("unmarshal players: %w", err)
		}
		if err := json.Unmarshal(boardJSON, &rec.FinalBoard); err != nil {
			return nil, fmt.Errorf("unmarshal final_board: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
