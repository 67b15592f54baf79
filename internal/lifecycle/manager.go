package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/board"
	"github.com/park285/connect4-server/internal/bot"
	"github.com/park285/connect4-server/internal/domain"
	"github.com/park285/connect4-server/internal/matchmaking"
	"github.com/park285/connect4-server/internal/obslog"
	"github.com/park285/connect4-server/internal/session"
	"github.com/park285/connect4-server/internal/timer"
	"github.com/park285/connect4-server/pkg/c4dto"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyInSession = errors.New("already in an active session")
	ErrClosed           = errors.New("lifecycle manager closed")
)

// Notifier delivers outbound events to one connected participant. It must
// not block.
type Notifier interface {
	Notify(identity string, ev c4dto.Event)
}

// MatchRecorder is the completed-match sink.
type MatchRecorder interface {
	RecordCompletedMatch(ctx context.Context, rec domain.CompletedMatchRecord) error
}

// WinRecorder increments a leaderboard entry.
type WinRecorder interface {
	RecordWin(ctx context.Context, displayName string) error
}

// SnapshotStore keeps the latest public state of each session.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, state *c4dto.PublicState, humans []string) error
}

type Config struct {
	ForfeitTimeout time.Duration
	TeardownGrace  time.Duration
	JoinTimeout    time.Duration
	BotDelay       time.Duration
	BotDepth       int
	IdleTimeout    time.Duration
	// Seed feeds the master random source; 0 seeds from the clock.
	Seed int64

	Notifier  Notifier
	Matches   MatchRecorder
	Wins      WinRecorder
	Snapshots SnapshotStore

	Logger *zap.Logger
	Now    func() time.Time
}

const (
	DefaultForfeitTimeout = 30 * time.Second
	DefaultTeardownGrace  = 2 * time.Second
	DefaultIdleTimeout    = 15 * time.Minute

	persistTimeout = 5 * time.Second
	persistBuffer  = 256
)

type pendingForfeit struct {
	side board.Cell
	task *timer.Task
}

// Manager owns the active sessions, their disconnect timers and teardown.
// Lock order is session before manager: session callbacks take m.mu, and
// m.mu is never held while calling into a session or the coordinator.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*session.Session
	byUser    map[string]string
	joining   map[string]struct{}
	forfeits  map[string]map[string]*pendingForfeit
	teardowns map[string]*timer.Task
	closed    bool

	coord  *matchmaking.Coordinator
	engine *bot.Engine
	cfg    Config
	log    *zap.Logger
	now    func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand

	jobs   chan persistJob
	jobsWG sync.WaitGroup

	janitor janitor
}

func NewManager(cfg Config) *Manager {
	if cfg.ForfeitTimeout <= 0 {
		cfg.ForfeitTimeout = DefaultForfeitTimeout
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = DefaultTeardownGrace
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = obslog.L()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Manager{
		sessions:  make(map[string]*session.Session),
		byUser:    make(map[string]string),
		joining:   make(map[string]struct{}),
		forfeits:  make(map[string]map[string]*pendingForfeit),
		teardowns: make(map[string]*timer.Task),
		engine:    bot.NewEngine(cfg.BotDepth),
		cfg:       cfg,
		log:       cfg.Logger,
		now:       cfg.Now,
		rand:      rand.New(rand.NewSource(seed)),
		jobs:      make(chan persistJob, persistBuffer),
	}
	m.coord = matchmaking.NewCoordinator(matchmaking.Config{
		JoinTimeout: cfg.JoinTimeout,
		NewSession:  m.newSession,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
	})
	m.jobsWG.Add(1)
	go m.persistLoop()
	return m
}

func (m *Manager) random() *rand.Rand {
	m.randMu.Lock()
	seed := m.rand.Int63()
	m.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// newSession is the coordinator's factory. It registers the session before
// any participant can act on it.
func (m *Manager) newSession(mode session.Mode) *session.Session {
	s := session.New(session.Options{
		ID:       uuid.NewString(),
		Mode:     mode,
		Bot:      m.engine,
		BotDelay: m.cfg.BotDelay,
		Rand:     m.random(),
		Listener: hooks{m},
		Logger:   m.log,
		Now:      m.now,
	})
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Join routes identity into a session for mode.
func (m *Manager) Join(identity, displayName string, mode session.Mode) (session.Snapshot, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return session.Snapshot{}, matchmaking.ErrInvalidArgs
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return session.Snapshot{}, ErrClosed
	}
	if _, busy := m.joining[identity]; busy {
		m.mu.Unlock()
		return session.Snapshot{}, ErrAlreadyInSession
	}
	// held until byUser points at the new session
	m.joining[identity] = struct{}{}
	current := m.sessions[m.byUser[identity]]
	m.mu.Unlock()
	release := func(sessionID string) {
		m.mu.Lock()
		delete(m.joining, identity)
		if sessionID != "" {
			m.byUser[identity] = sessionID
		}
		m.mu.Unlock()
	}
	if current != nil && !current.Snapshot().Terminal() {
		release("")
		if m.coord.IsWaiting(identity) {
			return current.Snapshot(), matchmaking.ErrAlreadyQueued
		}
		return current.Snapshot(), ErrAlreadyInSession
	}

	s, waiting, err := m.coord.Join(identity, displayName, mode)
	if err != nil {
		release("")
		return session.Snapshot{}, err
	}
	snap := s.Snapshot()
	if !waiting {
		// SessionStarted has already indexed the participants.
		release("")
	} else {
		release(s.ID())
		m.notify(identity, c4dto.Event{Type: c4dto.EventSessionWaiting, SessionID: s.ID(), State: snap.Public()})
		m.enqueueSnapshot(snap)
	}
	m.log.Info("lifecycle_join",
		zap.String("identity", identity),
		zap.String("mode", string(mode)),
		zap.String("session_id", s.ID()),
		zap.Bool("waiting", waiting),
	)
	return snap, nil
}

// SubmitMove forwards a move to the session.
func (m *Manager) SubmitMove(sessionID, identity string, column int) (session.Snapshot, error) {
	s := m.lookup(sessionID)
	if s == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	return s.SubmitMove(identity, column)
}

// Reconnect re-attaches identity to its session and cancels a pending
// forfeit. The current state is pushed to identity.
func (m *Manager) Reconnect(sessionID, identity string) (session.Snapshot, error) {
	s := m.lookup(sessionID)
	if s == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	snap := s.Snapshot()
	if _, ok := snap.Participant(identity); !ok {
		return snap, session.ErrNotParticipant
	}
	m.mu.Lock()
	cancelled := false
	if p := m.forfeits[sessionID][identity]; p != nil {
		cancelled = p.task.Cancel()
		delete(m.forfeits[sessionID], identity)
	}
	m.byUser[identity] = sessionID
	m.mu.Unlock()

	m.log.Info("lifecycle_reconnect",
		zap.String("session_id", sessionID),
		zap.String("identity", identity),
		zap.Bool("forfeit_cancelled", cancelled),
	)
	ev := c4dto.Event{Type: c4dto.EventSessionUpdated, SessionID: sessionID, State: snap.Public()}
	if snap.Terminal() {
		ev = endedEvent(snap, snap.Reason)
	}
	m.notify(identity, ev)
	return snap, nil
}

// Disconnect handles a dropped connection. A waiting participant leaves the
// queue; a playing participant gets a forfeit timer.
func (m *Manager) Disconnect(identity string) {
	if m.coord.Leave(identity) {
		return
	}
	m.mu.Lock()
	sessionID := m.byUser[identity]
	s := m.sessions[sessionID]
	m.mu.Unlock()
	if s == nil {
		return
	}
	snap := s.Snapshot()
	if snap.Phase != session.PhasePlaying {
		return
	}
	p, ok := snap.Participant(identity)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.forfeits[sessionID] == nil {
		m.forfeits[sessionID] = make(map[string]*pendingForfeit)
	}
	if existing := m.forfeits[sessionID][identity]; existing != nil && existing.task.Pending() {
		return
	}
	pf := &pendingForfeit{side: p.Side}
	pf.task = timer.After(m.cfg.ForfeitTimeout, func() { m.fireForfeit(sessionID, identity, pf) })
	m.forfeits[sessionID][identity] = pf
	m.log.Info("lifecycle_disconnect",
		zap.String("session_id", sessionID),
		zap.String("identity", identity),
		zap.String("side", p.Side.String()),
		zap.Duration("forfeit_in", m.cfg.ForfeitTimeout),
	)
}

// Leave is an explicit exit. Waiting players abandon their pending session;
// a playing participant resigns. In local mode the side to move resigns.
func (m *Manager) Leave(identity string) error {
	if m.coord.Leave(identity) {
		return nil
	}
	m.mu.Lock()
	s := m.sessions[m.byUser[identity]]
	m.mu.Unlock()
	if s == nil {
		return ErrSessionNotFound
	}
	snap := s.Snapshot()
	p, ok := snap.Participant(identity)
	if !ok || p.IsBot {
		return session.ErrNotParticipant
	}
	if _, err := s.Forfeit(p.Side); err != nil {
		return err
	}
	m.log.Info("lifecycle_resign",
		zap.String("session_id", snap.ID),
		zap.String("identity", identity),
		zap.String("side", p.Side.String()),
	)
	return nil
}

func (m *Manager) fireForfeit(sessionID, identity string, pf *pendingForfeit) {
	m.mu.Lock()
	if m.forfeits[sessionID][identity] != pf {
		m.mu.Unlock()
		return
	}
	delete(m.forfeits[sessionID], identity)
	s := m.sessions[sessionID]
	m.mu.Unlock()
	if s == nil {
		return
	}
	if _, err := s.Forfeit(pf.side); err != nil {
		m.log.Debug("lifecycle_forfeit_skipped", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	m.log.Info("lifecycle_forfeit",
		zap.String("session_id", sessionID),
		zap.String("identity", identity),
		zap.String("side", pf.side.String()),
	)
}

// Sweep forfeits the side to move in Playing sessions idle for longer than
// the idle timeout and returns how many were ended.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	list := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	n := 0
	for _, s := range list {
		snap := s.Snapshot()
		if snap.Phase != session.PhasePlaying || now.Sub(snap.UpdatedAt) <= m.cfg.IdleTimeout {
			continue
		}
		if _, err := s.Forfeit(snap.Turn); err == nil {
			n++
			m.log.Info("lifecycle_idle_forfeit",
				zap.String("session_id", snap.ID),
				zap.String("side", snap.Turn.String()),
				zap.Time("last_activity", snap.UpdatedAt),
			)
		}
	}
	return n
}

// Session returns the live session by id.
func (m *Manager) Session(sessionID string) (session.Snapshot, error) {
	s := m.lookup(sessionID)
	if s == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	return s.Snapshot(), nil
}

// SessionOf returns the id of the session identity is attached to.
func (m *Manager) SessionOf(identity string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[identity]
	return id, ok
}

func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Waiting() int { return m.coord.Waiting() }

// Close cancels every timer, abandons pending sessions and waits for
// queued persistence writes.
func (m *Manager) Close() {
	m.stopJanitor()
	m.coord.Close()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, byID := range m.forfeits {
		for _, pf := range byID {
			pf.task.Cancel()
		}
	}
	for _, t := range m.teardowns {
		t.Cancel()
	}
	m.forfeits = make(map[string]map[string]*pendingForfeit)
	m.teardowns = make(map[string]*timer.Task)
	close(m.jobs)
	m.mu.Unlock()

	m.jobsWG.Wait()
}

func (m *Manager) lookup(sessionID string) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[strings.TrimSpace(sessionID)]
}

func (m *Manager) notify(identity string, ev c4dto.Event) {
	if m.cfg.Notifier == nil {
		return
	}
	m.cfg.Notifier.Notify(identity, ev)
}

func (m *Manager) teardown(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.teardowns, sessionID)
	delete(m.forfeits, sessionID)
	for identity, id := range m.byUser {
		if id == sessionID {
			delete(m.byUser, identity)
		}
	}
	m.log.Debug("lifecycle_teardown", zap.String("session_id", sessionID))
}

func endedEvent(snap session.Snapshot, reason session.Reason) c4dto.Event {
	return c4dto.Event{
		Type:      c4dto.EventSessionEnded,
		SessionID: snap.ID,
		State:     snap.Public(),
		Outcome:   session.PublicOutcome(snap.Outcome),
		Reason:    string(reason),
	}
}

// hooks adapts Manager to session.Listener without exporting the callbacks.
type hooks struct{ m *Manager }

func (h hooks) SessionStarted(snap session.Snapshot) {
	m := h.m
	humans := snap.Humans()
	m.mu.Lock()
	for _, id := range humans {
		m.byUser[id] = snap.ID
	}
	m.mu.Unlock()
	ev := c4dto.Event{Type: c4dto.EventSessionStarted, SessionID: snap.ID, State: snap.Public()}
	for _, id := range humans {
		m.notify(id, ev)
	}
	m.enqueueSnapshot(snap)
}

func (h hooks) SessionUpdated(snap session.Snapshot) {
	ev := c4dto.Event{Type: c4dto.EventSessionUpdated, SessionID: snap.ID, State: snap.Public()}
	for _, id := range snap.Humans() {
		h.m.notify(id, ev)
	}
	h.m.enqueueSnapshot(snap)
}

func (h hooks) SessionEnded(snap session.Snapshot, reason session.Reason) {
	m := h.m
	ev := endedEvent(snap, reason)
	humans := snap.Humans()
	if snap.Phase == session.PhaseAbandoned {
		// an abandoned session only ever had its waiting participant
		humans = nil
		m.mu.Lock()
		for identity, id := range m.byUser {
			if id == snap.ID {
				humans = append(humans, identity)
			}
		}
		m.mu.Unlock()
	}
	for _, id := range humans {
		m.notify(id, ev)
	}

	m.mu.Lock()
	for _, pf := range m.forfeits[snap.ID] {
		pf.task.Cancel()
	}
	delete(m.forfeits, snap.ID)
	if !m.closed {
		id := snap.ID
		m.teardowns[id] = timer.After(m.cfg.TeardownGrace, func() { m.teardown(id) })
	}
	m.mu.Unlock()

	m.enqueueSnapshot(snap)
	if snap.Phase == session.PhaseFinished {
		m.enqueue(persistJob{record: &snap})
	}
}
