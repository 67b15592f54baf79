package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/connect4-server/internal/domain"
	"github.com/park285/connect4-server/internal/matchmaking"
	"github.com/park285/connect4-server/internal/session"
	"github.com/park285/connect4-server/pkg/c4dto"
)

type inbox struct {
	mu     sync.Mutex
	events map[string][]c4dto.Event
}

func newInbox() *inbox { return &inbox{events: make(map[string][]c4dto.Event)} }

func (b *inbox) Notify(identity string, ev c4dto.Event) {
	b.mu.Lock()
	b.events[identity] = append(b.events[identity], ev)
	b.mu.Unlock()
}

func (b *inbox) find(identity, typ string) (c4dto.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.events[identity] {
		if ev.Type == typ {
			return ev, true
		}
	}
	return c4dto.Event{}, false
}

func (b *inbox) count(identity, typ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events[identity] {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type sink struct {
	mu        sync.Mutex
	records   []domain.CompletedMatchRecord
	wins      []string
	snapshots map[string]*c4dto.PublicState
	fail      error
}

func newSink() *sink { return &sink{snapshots: make(map[string]*c4dto.PublicState)} }

func (s *sink) RecordCompletedMatch(_ context.Context, rec domain.CompletedMatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *sink) RecordWin(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.wins = append(s.wins, name)
	return nil
}

func (s *sink) SaveSnapshot(_ context.Context, st *c4dto.PublicState, _ []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[st.SessionID] = st
	return nil
}

func (s *sink) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *sink) winList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.wins...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(box *inbox, sk *sink, mutate func(*Config)) *Manager {
	cfg := Config{
		ForfeitTimeout: 60 * time.Millisecond,
		TeardownGrace:  20 * time.Millisecond,
		JoinTimeout:    time.Minute,
		BotDepth:       2,
		Seed:           42,
		Notifier:       box,
		Matches:        sk,
		Wins:           sk,
		Snapshots:      sk,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewManager(cfg)
}

func pairOnline(t *testing.T, m *Manager) string {
	t.Helper()
	if _, err := m.Join("alice", "Alice", session.ModeOnline); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	snap, err := m.Join("bob", "Bob", session.ModeOnline)
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if snap.Phase != session.PhasePlaying {
		t.Fatalf("expected playing, got %s", snap.Phase)
	}
	return snap.ID
}

func TestDisconnectReconnectThenForfeit(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	id := pairOnline(t, m)

	m.Disconnect("alice")
	time.Sleep(20 * time.Millisecond)
	if _, err := m.Reconnect(id, "alice"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	snap, err := m.Session(id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if snap.Phase != session.PhasePlaying {
		t.Fatalf("reconnect should cancel forfeit, phase=%s", snap.Phase)
	}

	m.Disconnect("alice")
	waitFor(t, "session_ended for bob", func() bool {
		_, ok := box.find("bob", c4dto.EventSessionEnded)
		return ok
	})
	ev, _ := box.find("bob", c4dto.EventSessionEnded)
	if ev.Reason != string(session.ReasonForfeit) {
		t.Fatalf("reason: %s", ev.Reason)
	}
	if ev.Outcome == nil || ev.Outcome.Winner != "second" {
		t.Fatalf("outcome: %+v", ev.Outcome)
	}

	waitFor(t, "completed match record", func() bool { return sk.recordCount() == 1 })
	waitFor(t, "win recorded", func() bool { return len(sk.winList()) == 1 })
	if got := sk.winList()[0]; got != "Bob" {
		t.Fatalf("win recorded for %s", got)
	}
	waitFor(t, "teardown", func() bool { return m.ActiveSessions() == 0 })
	if _, err := m.SubmitMove(id, "bob", 3); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after teardown, got %v", err)
	}
}

func TestJoinTimeoutStartsBotSession(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, func(c *Config) { c.JoinTimeout = 20 * time.Millisecond })
	defer m.Close()

	snap, err := m.Join("alice", "Alice", session.ModeOnline)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap.Phase != session.PhaseAwaitingOpponent {
		t.Fatalf("phase: %s", snap.Phase)
	}
	if _, ok := box.find("alice", c4dto.EventSessionWaiting); !ok {
		t.Fatalf("missing session_waiting")
	}
	waitFor(t, "session_started", func() bool {
		_, ok := box.find("alice", c4dto.EventSessionStarted)
		return ok
	})
	ev, _ := box.find("alice", c4dto.EventSessionStarted)
	if ev.SessionID != snap.ID || len(ev.State.Players) != 2 || !ev.State.Players[1].IsBot {
		t.Fatalf("unexpected start event %+v", ev.State)
	}
	if m.Waiting() != 0 {
		t.Fatalf("queue should be empty")
	}
}

// drawMoves fills the board with no four-in-a-row under strict alternation.
var drawMoves = []int{
	1, 0, 2, 3, 4, 6, 5,
	1, 0, 2, 3, 4, 5, 6,
	0, 3, 1, 4, 2, 6, 5,
	0, 2, 1, 3, 4, 6, 5,
	1, 0, 4, 2, 5, 3, 6,
	1, 0, 4, 2, 5, 3, 6,
}

func TestDrawDoesNotRecordWin(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	id := pairOnline(t, m)

	var snap session.Snapshot
	var err error
	for i, col := range drawMoves {
		who := "alice"
		if i%2 == 1 {
			who = "bob"
		}
		snap, err = m.SubmitMove(id, who, col)
		if err != nil {
			t.Fatalf("move %d (col %d): %v", i, col, err)
		}
	}
	if snap.Outcome == nil || snap.Outcome.Kind != session.OutcomeDraw {
		t.Fatalf("expected draw, got %+v", snap.Outcome)
	}
	waitFor(t, "completed match record", func() bool { return sk.recordCount() == 1 })
	m.Close()
	if w := sk.winList(); len(w) != 0 {
		t.Fatalf("draw must not record a win, got %v", w)
	}
}

func TestSinkFailureIsSwallowed(t *testing.T) {
	box, sk := newInbox(), newSink()
	sk.fail = errors.New("db down")
	m := newTestManager(box, sk, nil)
	defer m.Close()
	id := pairOnline(t, m)

	for i := 0; i < 3; i++ {
		if _, err := m.SubmitMove(id, "alice", i); err != nil {
			t.Fatalf("alice move: %v", err)
		}
		if _, err := m.SubmitMove(id, "bob", 6); err != nil {
			t.Fatalf("bob move: %v", err)
		}
	}
	snap, err := m.SubmitMove(id, "alice", 3)
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}
	if snap.Outcome == nil || snap.Outcome.Kind != session.OutcomeWinFirst {
		t.Fatalf("expected WinFirst, got %+v", snap.Outcome)
	}
	waitFor(t, "teardown", func() bool { return m.ActiveSessions() == 0 })
	if _, err := m.Join("alice", "Alice", session.ModeVsBot); err != nil {
		t.Fatalf("rejoin after failed persistence: %v", err)
	}
}

func TestRejections(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	id := pairOnline(t, m)

	if _, err := m.Join("alice", "Alice", session.ModeVsBot); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}
	if _, err := m.SubmitMove("nope", "alice", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := m.Reconnect(id, "mallory"); !errors.Is(err, session.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := m.Reconnect("nope", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := m.Join("carol", "Carol", session.ModeOnline); err != nil {
		t.Fatalf("carol join: %v", err)
	}
	if _, err := m.Join("carol", "Carol", session.ModeOnline); !errors.Is(err, matchmaking.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if got := DomainError(matchmaking.ErrAlreadyQueued).Code; got != c4dto.CodeAlreadyQueued {
		t.Fatalf("code: %s", got)
	}
	if got := DomainError(session.ErrColumnFull).Code; got != c4dto.CodeColumnFull {
		t.Fatalf("code: %s", got)
	}
}

func TestDisconnectWhileWaitingAbandons(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	snap, err := m.Join("alice", "Alice", session.ModeOnline)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	m.Disconnect("alice")
	ev, ok := box.find("alice", c4dto.EventSessionEnded)
	if !ok || ev.Reason != string(session.ReasonAbandoned) || ev.SessionID != snap.ID {
		t.Fatalf("expected abandoned end event, got %+v", ev)
	}
	if m.Waiting() != 0 {
		t.Fatalf("queue should be empty")
	}
	waitFor(t, "teardown", func() bool { return m.ActiveSessions() == 0 })
	if sk.recordCount() != 0 {
		t.Fatalf("abandoned sessions are not completed matches")
	}
}

func TestSweepForfeitsIdleSessions(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, func(c *Config) {
		c.IdleTimeout = time.Minute
		c.TeardownGrace = time.Minute
	})
	defer m.Close()
	id := pairOnline(t, m)

	if n := m.Sweep(time.Now()); n != 0 {
		t.Fatalf("fresh session swept: %d", n)
	}
	if n := m.Sweep(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("expected one idle forfeit, got %d", n)
	}
	snap, err := m.Session(id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if snap.Outcome == nil || snap.Outcome.Kind != session.OutcomeForfeit || snap.Outcome.Winner().String() != "second" {
		t.Fatalf("unexpected outcome %+v", snap.Outcome)
	}
}

func TestJanitorRunsSweep(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, func(c *Config) { c.IdleTimeout = 10 * time.Millisecond })
	defer m.Close()
	pairOnline(t, m)
	if err := m.StartJanitor(20 * time.Millisecond); err != nil {
		t.Fatalf("start janitor: %v", err)
	}
	waitFor(t, "idle forfeit", func() bool {
		_, ok := box.find("bob", c4dto.EventSessionEnded)
		return ok
	})
}

func TestVsBotSessionNotifiesHumanOnly(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	snap, err := m.Join("alice", "Alice", session.ModeVsBot)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := m.SubmitMove(snap.ID, "alice", 3); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := box.count("alice", c4dto.EventSessionStarted); got != 1 {
		t.Fatalf("session_started count %d", got)
	}
	if got := box.count("alice", c4dto.EventSessionUpdated); got != 2 {
		t.Fatalf("expected update for own move and bot reply, got %d", got)
	}
	if got := box.count("bot", c4dto.EventSessionStarted); got != 0 {
		t.Fatalf("bot must not be notified")
	}
	waitFor(t, "snapshot saved", func() bool {
		sk.mu.Lock()
		defer sk.mu.Unlock()
		st := sk.snapshots[snap.ID]
		return st != nil && len(st.Moves) == 2
	})
}

func TestLeaveResignsPlayingSession(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()
	id := pairOnline(t, m)

	if err := m.Leave("bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	ev, ok := box.find("alice", c4dto.EventSessionEnded)
	if !ok || ev.SessionID != id || ev.Reason != string(session.ReasonForfeit) {
		t.Fatalf("expected forfeit end event, got %+v", ev)
	}
	if ev.Outcome == nil || ev.Outcome.Winner != "first" {
		t.Fatalf("outcome: %+v", ev.Outcome)
	}
	if err := m.Leave("mallory"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConcurrentJoinsSameIdentity(t *testing.T) {
	box, sk := newInbox(), newSink()
	m := newTestManager(box, sk, nil)
	defer m.Close()

	modes := []session.Mode{session.ModeVsBot, session.ModeLocal, session.ModeOnline}
	for round := 0; round < 30; round++ {
		identity := "dup-" + string(rune('a'+round%26)) + string(rune('0'+round/26))
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes []string
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(mode session.Mode) {
				defer wg.Done()
				snap, err := m.Join(identity, identity, mode)
				if err != nil {
					if !errors.Is(err, ErrAlreadyInSession) && !errors.Is(err, matchmaking.ErrAlreadyQueued) {
						t.Errorf("join %s: unexpected error %v", identity, err)
					}
					return
				}
				mu.Lock()
				successes = append(successes, snap.ID)
				mu.Unlock()
			}(modes[g%len(modes)])
		}
		wg.Wait()
		if len(successes) != 1 {
			t.Fatalf("round %d: %d joins succeeded for %s, want 1", round, len(successes), identity)
		}
		if got, ok := m.SessionOf(identity); !ok || got != successes[0] {
			t.Fatalf("round %d: SessionOf = %q, %v; want %q", round, got, ok, successes[0])
		}
	}
}
