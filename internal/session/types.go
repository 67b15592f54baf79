package session

import (
	"strings"
	"time"

	"github.com/park285/connect4-server/internal/board"
	"github.com/park285/connect4-server/internal/domain"
)

// Phase represents a session lifecycle state.
type Phase string

const (
	PhaseAwaitingOpponent Phase = "AWAITING_OPPONENT"
	PhasePlaying          Phase = "PLAYING"
	PhaseFinished         Phase = "FINISHED"
	PhaseAbandoned        Phase = "ABANDONED"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeVsBot  Mode = "vsBot"
	ModeOnline Mode = "online"
)

func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return ModeLocal, true
	case "vsbot", "bot", "vs_bot":
		return ModeVsBot, true
	case "online", "":
		return ModeOnline, true
	default:
		return "", false
	}
}

type OutcomeKind string

const (
	OutcomeWinFirst  OutcomeKind = "WIN_FIRST"
	OutcomeWinSecond OutcomeKind = "WIN_SECOND"
	OutcomeDraw      OutcomeKind = "DRAW"
	OutcomeForfeit   OutcomeKind = "FORFEIT"
)

// Outcome is set once a session is Finished. Loser is only meaningful for
// OutcomeForfeit.
type Outcome struct {
	Kind  OutcomeKind
	Loser board.Cell
}

// Winner returns the winning side, or Empty for a draw.
func (o Outcome) Winner() board.Cell {
	switch o.Kind {
	case OutcomeWinFirst:
		return board.First
	case OutcomeWinSecond:
		return board.Second
	case OutcomeForfeit:
		return o.Loser.Other()
	default:
		return board.Empty
	}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeForfeit {
		return string(o.Kind) + "(" + o.Loser.String() + ")"
	}
	return string(o.Kind)
}

// Reason is attached to a session end event.
type Reason string

const (
	ReasonNormal    Reason = "normal"
	ReasonForfeit   Reason = "forfeit"
	ReasonAbandoned Reason = "abandoned"
)

type Participant struct {
	ID          string
	DisplayName string
	Side        board.Cell
	IsBot       bool
}

// Move is one accepted entry of the append-only move log. Seq starts at 1.
type Move struct {
	Column int
	Row    int
	Side   board.Cell
	Seq    int
	At     time.Time
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID           string
	Mode         Mode
	Board        board.Board
	Participants []Participant
	Turn         board.Cell
	Phase        Phase
	Outcome      *Outcome
	Reason       Reason
	Moves        []Move
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	UpdatedAt    time.Time
}

// Participant returns the participant with the given identity. In local
// mode both seats share an identity and the one to move is returned.
func (s Snapshot) Participant(identity string) (Participant, bool) {
	var found []Participant
	for _, p := range s.Participants {
		if p.ID == identity {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return Participant{}, false
	case 1:
		return found[0], true
	}
	for _, p := range found {
		if p.Side == s.Turn {
			return p, true
		}
	}
	return found[0], true
}

// Opponent returns the participant holding the other side.
func (s Snapshot) Opponent(side board.Cell) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Side == side.Other() {
			return p, true
		}
	}
	return Participant{}, false
}

// Winner returns the winning participant of a finished session.
func (s Snapshot) Winner() (Participant, bool) {
	if s.Outcome == nil {
		return Participant{}, false
	}
	side := s.Outcome.Winner()
	if side == board.Empty {
		return Participant{}, false
	}
	for _, p := range s.Participants {
		if p.Side == side {
			return p, true
		}
	}
	return Participant{}, false
}

// Humans returns the distinct non-bot identities seated in the session.
func (s Snapshot) Humans() []string {
	var out []string
	seen := make(map[string]struct{}, 2)
	for _, p := range s.Participants {
		if p.IsBot {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.ID)
	}
	return out
}

func (s Snapshot) Terminal() bool {
	return s.Phase == PhaseFinished || s.Phase == PhaseAbandoned
}

// Record converts a finished snapshot into the persisted summary. Duration
// runs from start to finish.
func (s Snapshot) Record() domain.CompletedMatchRecord {
	rec := domain.CompletedMatchRecord{
		SessionID:  s.ID,
		Mode:       string(s.Mode),
		Reason:     string(s.Reason),
		MoveCount:  len(s.Moves),
		FinalBoard: s.Board.Rows(),
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	if !s.StartedAt.IsZero() && !s.FinishedAt.IsZero() {
		rec.DurationMs = s.FinishedAt.Sub(s.StartedAt).Milliseconds()
	}
	winner := board.Empty
	if s.Outcome != nil {
		winner = s.Outcome.Winner()
	}
	for _, p := range s.Participants {
		result := domain.ResultDraw
		switch {
		case winner == board.Empty:
		case p.Side == winner:
			result = domain.ResultWin
			rec.Winner = p.DisplayName
		default:
			result = domain.ResultLoss
		}
		rec.Players = append(rec.Players, domain.PlayerSummary{
			Identity:    p.ID,
			DisplayName: p.DisplayName,
			Side:        p.Side.String(),
			IsBot:       p.IsBot,
			Result:      result,
		})
	}
	return rec
}
