package c4client

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/connect4-server/pkg/c4dto"
)

// Match is a player connection to the websocket gateway.
type Match struct {
	conn     *websocket.Conn
	identity string

	events chan c4dto.Event
	errMu  sync.Mutex
	err    error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects as identity and waits for the server greeting.
func Dial(ctx context.Context, wsURL, identity, name string) (*Match, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if strings.TrimSpace(identity) != "" {
		q.Set("identity", identity)
	}
	if strings.TrimSpace(name) != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	m := &Match{conn: conn, events: make(chan c4dto.Event, 64), ctx: rootCtx, cancel: rootCancel}
	m.wg.Add(1)
	go m.listen()

	hello, err := m.Next(dialCtx)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	if hello.Type != c4dto.EventConnected {
		_ = m.Close()
		return nil, errors.New("unexpected greeting: " + hello.Type)
	}
	m.identity = hello.Identity
	return m, nil
}

func (m *Match) Identity() string { return m.identity }

func (m *Match) listen() {
	defer m.wg.Done()
	defer close(m.events)
	for {
		var ev c4dto.Event
		if err := wsjson.Read(m.ctx, m.conn, &ev); err != nil {
			m.errMu.Lock()
			m.err = err
			m.errMu.Unlock()
			return
		}
		select {
		case m.events <- ev:
		case <-m.ctx.Done():
			return
		}
	}
}

// Next blocks until the next event, ctx expiry or connection loss.
func (m *Match) Next(ctx context.Context) (c4dto.Event, error) {
	select {
	case <-ctx.Done():
		return c4dto.Event{}, ctx.Err()
	case ev, ok := <-m.events:
		if !ok {
			m.errMu.Lock()
			defer m.errMu.Unlock()
			if m.err != nil {
				return c4dto.Event{}, m.err
			}
			return c4dto.Event{}, errors.New("connection closed")
		}
		return ev, nil
	}
}

func (m *Match) send(ctx context.Context, cmd c4dto.Command) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, m.conn, cmd)
}

func (m *Match) Join(ctx context.Context, mode string) error {
	return m.send(ctx, c4dto.Command{Type: c4dto.CommandJoin, Mode: mode})
}

func (m *Match) Move(ctx context.Context, sessionID string, column int) error {
	return m.send(ctx, c4dto.Command{Type: c4dto.CommandMove, SessionID: sessionID, Column: &column})
}

func (m *Match) Rejoin(ctx context.Context, sessionID string) error {
	return m.send(ctx, c4dto.Command{Type: c4dto.CommandRejoin, SessionID: sessionID})
}

func (m *Match) Leave(ctx context.Context) error {
	return m.send(ctx, c4dto.Command{Type: c4dto.CommandLeave})
}

func (m *Match) Close() error {
	err := m.conn.Close(websocket.StatusNormalClosure, "bye")
	m.cancel()
	m.wg.Wait()
	return err
}

// Chooser picks a column for the side to move.
type Chooser func(st *c4dto.PublicState) (int, error)

// PlayToEnd drives the session until session_ended, moving whenever it is
// this player's turn. onEvent may be nil.
func (m *Match) PlayToEnd(ctx context.Context, choose Chooser, onEvent func(c4dto.Event)) (c4dto.Event, error) {
	for {
		ev, err := m.Next(ctx)
		if err != nil {
			return c4dto.Event{}, err
		}
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case c4dto.EventSessionEnded:
			return ev, nil
		case c4dto.EventError:
			if ev.Error != nil {
				return ev, ev.Error
			}
			return ev, errors.New("server error")
		case c4dto.EventSessionStarted, c4dto.EventSessionUpdated:
			st := ev.State
			if st == nil || st.Turn == "" || st.Turn != st.SideOf(m.identity) {
				continue
			}
			col, err := choose(st)
			if err != nil {
				return ev, err
			}
			if err := m.Move(ctx, ev.SessionID, col); err != nil {
				return ev, err
			}
		}
	}
}
