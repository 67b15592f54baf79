package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/board"
	"github.com/park285/connect4-server/internal/obslog"
	"github.com/park285/connect4-server/internal/timer"
)

var (
	ErrInvalidColumn  = fmt.Errorf("session: %w", board.ErrInvalidColumn)
	ErrColumnFull     = fmt.Errorf("session: %w", board.ErrColumnFull)
	ErrNotYourTurn    = errors.New("not your turn")
	ErrNotPlaying     = errors.New("session is not playing")
	ErrNotParticipant = errors.New("not a participant of this session")
	ErrNotAwaiting    = errors.New("session is not awaiting an opponent")
	ErrInvalidSide    = errors.New("invalid side")
)

// Chooser picks a column for side. bot.Engine satisfies it.
type Chooser interface {
	ChooseColumn(b board.Board, side board.Cell) (int, error)
}

// Listener observes session transitions. Callbacks run while the session
// lock is held so they arrive in transition order; they must not call back
// into the session.
type Listener interface {
	SessionStarted(s Snapshot)
	SessionUpdated(s Snapshot)
	SessionEnded(s Snapshot, reason Reason)
}

type Options struct {
	ID       string
	Mode     Mode
	Bot      Chooser
	BotDelay time.Duration
	Rand     *rand.Rand
	Listener Listener
	Logger   *zap.Logger
	Now      func() time.Time
}

// Session owns one match's authoritative state. All transitions are
// serialized by mu.
type Session struct {
	mu sync.Mutex

	id   string
	mode Mode

	board      board.Board
	players    []Participant
	turn       board.Cell
	phase      Phase
	outcome    *Outcome
	reason     Reason
	moves      []Move
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	updatedAt  time.Time

	bot      Chooser
	botDelay time.Duration
	botTask  *timer.Task
	rng      *rand.Rand
	listener Listener
	log      *zap.Logger
	now      func() time.Time
}

// New creates a session in AwaitingOpponent.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Mode == "" {
		opts.Mode = ModeOnline
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	now := opts.Now()
	return &Session{
		id:        opts.ID,
		mode:      opts.Mode,
		turn:      board.First,
		phase:     PhaseAwaitingOpponent,
		createdAt: now,
		updatedAt: now,
		bot:       opts.Bot,
		botDelay:  opts.BotDelay,
		rng:       opts.Rand,
		listener:  opts.Listener,
		log:       opts.Logger.With(zap.String("session_id", opts.ID)),
		now:       opts.Now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() Mode { return s.mode }

// Start seats both participants. p1 takes First and moves first.
func (s *Session) Start(p1, p2 Participant) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAwaitingOpponent {
		return s.snapshotLocked(), ErrNotAwaiting
	}
	p1.Side = board.First
	p2.Side = board.Second
	s.players = []Participant{p1, p2}
	s.phase = PhasePlaying
	s.turn = board.First
	s.startedAt = s.now()
	s.updatedAt = s.startedAt
	s.log.Info("session_start",
		zap.String("mode", string(s.mode)),
		zap.String("first", p1.ID),
		zap.String("second", p2.ID),
		zap.Bool("second_is_bot", p2.IsBot),
	)
	snap := s.snapshotLocked()
	if s.listener != nil {
		s.listener.SessionStarted(snap)
	}
	s.scheduleBotLocked()
	return s.snapshotLocked(), nil
}

// SubmitMove applies a move on behalf of participantID.
func (s *Session) SubmitMove(participantID string, column int) (Snapshot, error) {
	if column < 0 || column >= board.Cols {
		return s.Snapshot(), ErrInvalidColumn
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying {
		return s.snapshotLocked(), ErrNotPlaying
	}
	p, ok := s.seatLocked(participantID)
	if !ok {
		return s.snapshotLocked(), ErrNotParticipant
	}
	if p.IsBot {
		return s.snapshotLocked(), ErrNotParticipant
	}
	if p.Side != s.turn {
		return s.snapshotLocked(), ErrNotYourTurn
	}
	if err := s.applyLocked(p, column); err != nil {
		return s.snapshotLocked(), err
	}
	return s.snapshotLocked(), nil
}

// Forfeit ends a Playing session with losing as the loser.
func (s *Session) Forfeit(losing board.Cell) (Snapshot, error) {
	if losing != board.First && losing != board.Second {
		return s.Snapshot(), ErrInvalidSide
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying {
		return s.snapshotLocked(), ErrNotPlaying
	}
	s.finishLocked(Outcome{Kind: OutcomeForfeit, Loser: losing}, ReasonForfeit)
	return s.snapshotLocked(), nil
}

// Abandon ends a session that never got its second participant.
func (s *Session) Abandon() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAwaitingOpponent {
		return s.snapshotLocked(), ErrNotAwaiting
	}
	now := s.now()
	s.phase = PhaseAbandoned
	s.reason = ReasonAbandoned
	s.finishedAt = now
	s.updatedAt = now
	s.log.Info("session_abandon")
	if s.listener != nil {
		s.listener.SessionEnded(s.snapshotLocked(), ReasonAbandoned)
	}
	return s.snapshotLocked(), nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) seatLocked(identity string) (Participant, bool) {
	var seat *Participant
	for i := range s.players {
		p := &s.players[i]
		if p.ID != identity {
			continue
		}
		if seat == nil || p.Side == s.turn {
			seat = p
		}
	}
	if seat == nil {
		return Participant{}, false
	}
	return *seat, true
}

func (s *Session) playerOnTurnLocked() (Participant, bool) {
	for _, p := range s.players {
		if p.Side == s.turn {
			return p, true
		}
	}
	return Participant{}, false
}

// applyLocked drops a disc for p and resolves win, draw or turn change.
func (s *Session) applyLocked(p Participant, column int) error {
	row, err := s.board.Drop(column, p.Side)
	if err != nil {
		if errors.Is(err, board.ErrColumnFull) {
			return ErrColumnFull
		}
		if errors.Is(err, board.ErrInvalidColumn) {
			return ErrInvalidColumn
		}
		return err
	}
	now := s.now()
	s.moves = append(s.moves, Move{
		Column: column,
		Row:    row,
		Side:   p.Side,
		Seq:    len(s.moves) + 1,
		At:     now,
	})
	s.updatedAt = now
	s.log.Debug("session_move",
		zap.String("participant", p.ID),
		zap.String("side", p.Side.String()),
		zap.Int("column", column),
		zap.Int("row", row),
		zap.Int("seq", len(s.moves)),
	)

	switch {
	case s.board.DetectWin(row, column):
		kind := OutcomeWinFirst
		if p.Side == board.Second {
			kind = OutcomeWinSecond
		}
		s.finishLocked(Outcome{Kind: kind}, ReasonNormal)
	case s.board.IsFull():
		s.finishLocked(Outcome{Kind: OutcomeDraw}, ReasonNormal)
	default:
		s.turn = s.turn.Other()
		if s.listener != nil {
			s.listener.SessionUpdated(s.snapshotLocked())
		}
		s.scheduleBotLocked()
	}
	return nil
}

func (s *Session) finishLocked(o Outcome, reason Reason) {
	s.botTask.Cancel()
	s.botTask = nil
	now := s.now()
	s.phase = PhaseFinished
	s.outcome = &o
	s.reason = reason
	s.finishedAt = now
	s.updatedAt = now
	s.log.Info("session_end",
		zap.String("outcome", o.String()),
		zap.String("reason", string(reason)),
		zap.Int("moves", len(s.moves)),
	)
	if s.listener != nil {
		s.listener.SessionEnded(s.snapshotLocked(), reason)
	}
}

// scheduleBotLocked plays the bot's reply when the side to move is a bot,
// inline without a delay or on a cancellable task otherwise.
func (s *Session) scheduleBotLocked() {
	if s.phase != PhasePlaying {
		return
	}
	p, ok := s.playerOnTurnLocked()
	if !ok || !p.IsBot {
		return
	}
	if s.botDelay <= 0 {
		s.playBotLocked(p)
		return
	}
	seq := len(s.moves)
	s.botTask = timer.After(s.botDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.phase != PhasePlaying || len(s.moves) != seq {
			return
		}
		s.botTask = nil
		if cur, ok := s.playerOnTurnLocked(); ok && cur.IsBot {
			s.playBotLocked(cur)
		}
	})
}

func (s *Session) playBotLocked(p Participant) {
	col := -1
	if s.bot != nil {
		c, err := s.bot.ChooseColumn(s.board, p.Side)
		if err != nil {
			s.log.Warn("session_bot_error", zap.Error(err))
		} else {
			col = c
		}
	}
	if _, open := s.board.LowestOpenRow(col); !open {
		choices := s.board.OpenColumns()
		if len(choices) == 0 {
			s.log.Error("session_bot_stalled", zap.String("board", s.board.String()))
			return
		}
		fallback := choices[s.rng.Intn(len(choices))]
		s.log.Warn("session_bot_fallback", zap.Int("chosen", col), zap.Int("fallback", fallback))
		col = fallback
	}
	if err := s.applyLocked(p, col); err != nil {
		s.log.Error("session_bot_stalled", zap.Int("column", col), zap.Error(err))
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		Mode:         s.mode,
		Board:        s.board,
		Participants: append([]Participant(nil), s.players...),
		Turn:         s.turn,
		Phase:        s.phase,
		Reason:       s.reason,
		Moves:        append([]Move(nil), s.moves...),
		CreatedAt:    s.createdAt,
		StartedAt:    s.startedAt,
		FinishedAt:   s.finishedAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.outcome != nil {
		o := *s.outcome
		snap.Outcome = &o
	}
	return snap
}
