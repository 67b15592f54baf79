package session

import (
	"time"

	"github.com/park285/connect4-server/internal/board"
	"github.com/park285/connect4-server/pkg/c4dto"
)

// Public converts the snapshot into the client-facing DTO.
func (s Snapshot) Public() *c4dto.PublicState {
	out := &c4dto.PublicState{
		SessionID: s.ID,
		Mode:      string(s.Mode),
		Phase:     string(s.Phase),
		Board:     s.Board.Rows(),
		Players:   make([]c4dto.Player, 0, len(s.Participants)),
		Moves:     make([]c4dto.MoveEntry, 0, len(s.Moves)),
		Outcome:   PublicOutcome(s.Outcome),
		Reason:    string(s.Reason),
		CreatedAt: s.CreatedAt,
		StartedAt: optionalTime(s.StartedAt),
		UpdatedAt: s.UpdatedAt,
	}
	out.FinishedAt = optionalTime(s.FinishedAt)
	if s.Phase == PhasePlaying {
		out.Turn = s.Turn.String()
	}
	for _, p := range s.Participants {
		out.Players = append(out.Players, c4dto.Player{
			Identity:    p.ID,
			DisplayName: p.DisplayName,
			Side:        p.Side.String(),
			IsBot:       p.IsBot,
		})
	}
	for _, m := range s.Moves {
		out.Moves = append(out.Moves, c4dto.MoveEntry{
			Column: m.Column,
			Row:    m.Row,
			Side:   m.Side.String(),
			Seq:    m.Seq,
			At:     m.At,
		})
	}
	return out
}

func PublicOutcome(o *Outcome) *c4dto.Outcome {
	if o == nil {
		return nil
	}
	out := &c4dto.Outcome{Kind: string(o.Kind)}
	if w := o.Winner(); w != board.Empty {
		out.Winner = w.String()
		out.Loser = w.Other().String()
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
