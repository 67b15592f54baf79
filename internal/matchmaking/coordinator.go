package matchmaking

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/obslog"
	"github.com/park285/connect4-server/internal/session"
	"github.com/park285/connect4-server/internal/timer"
)

const DefaultJoinTimeout = 10 * time.Second

var (
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrInvalidMode   = errors.New("invalid mode")
	ErrAlreadyQueued = errors.New("already waiting for an opponent")
)

// entry is a waiting online participant. It lives only in the waiting list.
type entry struct {
	identity    string
	displayName string
	joinedAt    time.Time
	session     *session.Session
	task        *timer.Task
}

type Config struct {
	JoinTimeout time.Duration
	// NewSession creates a session in AwaitingOpponent for mode.
	NewSession func(mode session.Mode) *session.Session
	// NewBot returns the participant substituted for a missing opponent.
	NewBot func() session.Participant
	Logger *zap.Logger
	Now    func() time.Time
}

// Coordinator pairs online joiners in arrival order and substitutes a bot
// when nobody arrives within the join timeout.
type Coordinator struct {
	mu      sync.Mutex
	waiting []*entry
	byID    map[string]*entry

	joinTimeout time.Duration
	newSession  func(mode session.Mode) *session.Session
	newBot      func() session.Participant
	log         *zap.Logger
	now         func() time.Time
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.NewSession == nil {
		cfg.NewSession = func(mode session.Mode) *session.Session {
			return session.New(session.Options{Mode: mode})
		}
	}
	if cfg.NewBot == nil {
		cfg.NewBot = DefaultBot
	}
	if cfg.Logger == nil {
		cfg.Logger = obslog.L()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		byID:        make(map[string]*entry),
		joinTimeout: cfg.JoinTimeout,
		newSession:  cfg.NewSession,
		newBot:      cfg.NewBot,
		log:         cfg.Logger,
		now:         cfg.Now,
	}
}

// DefaultBot is the stock bot participant.
func DefaultBot() session.Participant {
	return session.Participant{ID: "bot", DisplayName: "Bot", IsBot: true}
}

// Join places identity into a session for mode. For online joins with no
// partner available the returned session is still AwaitingOpponent and
// waiting is true.
func (c *Coordinator) Join(identity, displayName string, mode session.Mode) (s *session.Session, waiting bool, err error) {
	identity = strings.TrimSpace(identity)
	displayName = strings.TrimSpace(displayName)
	if identity == "" {
		return nil, false, ErrInvalidArgs
	}
	if displayName == "" {
		displayName = identity
	}
	human := session.Participant{ID: identity, DisplayName: displayName}

	switch mode {
	case session.ModeLocal:
		s = c.newSession(session.ModeLocal)
		if _, err := s.Start(human, human); err != nil {
			return nil, false, err
		}
		return s, false, nil
	case session.ModeVsBot:
		s = c.newSession(session.ModeVsBot)
		if _, err := s.Start(human, c.newBot()); err != nil {
			return nil, false, err
		}
		return s, false, nil
	case session.ModeOnline:
		return c.joinOnline(human)
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func (c *Coordinator) joinOnline(human session.Participant) (*session.Session, bool, error) {
	c.mu.Lock()
	if _, ok := c.byID[human.ID]; ok {
		c.mu.Unlock()
		return nil, false, ErrAlreadyQueued
	}
	if len(c.waiting) > 0 {
		head := c.waiting[0]
		c.removeLocked(head)
		head.task.Cancel()
		c.mu.Unlock()

		first := session.Participant{ID: head.identity, DisplayName: head.displayName}
		if _, err := head.session.Start(first, human); err != nil {
			return nil, false, err
		}
		c.log.Info("matchmaking_paired",
			zap.String("session_id", head.session.ID()),
			zap.String("first", head.identity),
			zap.String("second", human.ID),
			zap.Duration("waited", c.now().Sub(head.joinedAt)),
		)
		return head.session, false, nil
	}

	e := &entry{
		identity:    human.ID,
		displayName: human.DisplayName,
		joinedAt:    c.now(),
		session:     c.newSession(session.ModeOnline),
	}
	c.waiting = append(c.waiting, e)
	c.byID[e.identity] = e
	e.task = timer.After(c.joinTimeout, func() { c.expire(e) })
	c.mu.Unlock()

	c.log.Info("matchmaking_waiting",
		zap.String("session_id", e.session.ID()),
		zap.String("identity", e.identity),
	)
	return e.session, true, nil
}

// expire pairs a still-waiting entry with a bot. An entry already taken by
// a pairing or Leave is left alone.
func (c *Coordinator) expire(e *entry) {
	c.mu.Lock()
	if c.byID[e.identity] != e {
		c.mu.Unlock()
		return
	}
	c.removeLocked(e)
	c.mu.Unlock()

	first := session.Participant{ID: e.identity, DisplayName: e.displayName}
	if _, err := e.session.Start(first, c.newBot()); err != nil {
		c.log.Warn("matchmaking_bot_substitute_error", zap.String("session_id", e.session.ID()), zap.Error(err))
		return
	}
	c.log.Info("matchmaking_bot_substitute",
		zap.String("session_id", e.session.ID()),
		zap.String("identity", e.identity),
	)
}

// Leave drops identity from the waiting list and abandons its pending
// session. It reports whether identity was waiting.
func (c *Coordinator) Leave(identity string) bool {
	c.mu.Lock()
	e, ok := c.byID[strings.TrimSpace(identity)]
	if ok {
		c.removeLocked(e)
		e.task.Cancel()
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if _, err := e.session.Abandon(); err != nil {
		c.log.Warn("matchmaking_abandon_error", zap.String("session_id", e.session.ID()), zap.Error(err))
	}
	return true
}

// IsWaiting reports whether identity is in the waiting list.
func (c *Coordinator) IsWaiting(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byID[identity]
	return ok
}

func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}

// Close cancels every join timer and abandons the pending sessions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	pending := c.waiting
	c.waiting = nil
	c.byID = make(map[string]*entry)
	for _, e := range pending {
		e.task.Cancel()
	}
	c.mu.Unlock()
	for _, e := range pending {
		_, _ = e.session.Abandon()
	}
}

func (c *Coordinator) removeLocked(e *entry) {
	delete(c.byID, e.identity)
	for i, w := range c.waiting {
		if w == e {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return
		}
	}
}
