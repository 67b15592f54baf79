package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/connect4-server/internal/lifecycle"
	"github.com/park285/connect4-server/internal/matchmaking"
	"github.com/park285/connect4-server/internal/session"
	"github.com/park285/connect4-server/pkg/c4dto"
)

// Core is the inbound surface of the lifecycle manager.
type Core interface {
	Join(identity, displayName string, mode session.Mode) (session.Snapshot, error)
	SubmitMove(sessionID, identity string, column int) (session.Snapshot, error)
	Reconnect(sessionID, identity string) (session.Snapshot, error)
	Disconnect(identity string)
	Leave(identity string) error
	SessionOf(identity string) (string, bool)
}

var errMissingColumn = errors.New("move requires a column")

type Options struct {
	// OriginPatterns is passed to websocket.Accept; empty allows same-origin only.
	OriginPatterns []string
	PingInterval   time.Duration
	ReadLimit      int64
}

// Server upgrades /ws requests and routes client frames into Core.
type Server struct {
	hub  *Hub
	core Core
	opts Options
	log  *zap.Logger
}

func NewServer(hub *Hub, core Core, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	return &Server{hub: hub, core: core, opts: opts, log: hub.log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity := strings.TrimSpace(q.Get("identity"))
	if identity == "" {
		identity = uuid.NewString()
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = identity
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Warn("gateway_accept_failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(identity, name, ws, s.log)
	c.out <- c4dto.Event{Type: c4dto.EventConnected, Identity: identity}
	if prev := s.hub.register(c); prev != nil {
		prev.shutdown("replaced by a newer connection")
	}
	go c.writeLoop(ctx, s.opts.PingInterval)
	s.log.Info("gateway_connect", zap.String("identity", identity), zap.String("name", name))

	if sid, ok := s.core.SessionOf(identity); ok {
		if _, err := s.core.Reconnect(sid, identity); err != nil {
			s.log.Debug("gateway_auto_rejoin_failed", zap.String("identity", identity), zap.Error(err))
		}
	}

	s.readLoop(ctx, c)

	c.shutdown("bye")
	c.wait()
	if s.hub.unregister(c) {
		s.core.Disconnect(identity)
	}
	s.log.Info("gateway_disconnect", zap.String("identity", identity))
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			s.reject(c, "", matchmaking.ErrInvalidArgs)
			continue
		}
		var cmd c4dto.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reject(c, "", matchmaking.ErrInvalidArgs)
			continue
		}
		s.dispatch(c, cmd)
		if c.closed() {
			return
		}
	}
}

func (s *Server) dispatch(c *conn, cmd c4dto.Command) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" && cmd.Type != c4dto.CommandJoin {
		sessionID, _ = s.core.SessionOf(c.identity)
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case c4dto.CommandJoin:
		mode, ok := session.ParseMode(cmd.Mode)
		if !ok {
			s.reject(c, "", matchmaking.ErrInvalidMode)
			return
		}
		if _, err := s.core.Join(c.identity, c.name, mode); err != nil {
			s.reject(c, "", err)
		}
	case c4dto.CommandMove:
		if cmd.Column == nil {
			s.reject(c, sessionID, errMissingColumn)
			return
		}
		if _, err := s.core.SubmitMove(sessionID, c.identity, *cmd.Column); err != nil {
			s.reject(c, sessionID, err)
		}
	case c4dto.CommandRejoin:
		if _, err := s.core.Reconnect(sessionID, c.identity); err != nil {
			s.reject(c, sessionID, err)
		}
	case c4dto.CommandLeave:
		if err := s.core.Leave(c.identity); err != nil {
			s.reject(c, sessionID, err)
		}
	default:
		s.reject(c, sessionID, matchmaking.ErrInvalidArgs)
	}
}

func (s *Server) reject(c *conn, sessionID string, err error) {
	de := lifecycle.DomainError(err)
	if errors.Is(err, errMissingColumn) {
		de.Code = c4dto.CodeBadRequest
		de.Retryable = false
	}
	s.log.Debug("gateway_reject",
		zap.String("identity", c.identity),
		zap.String("session_id", sessionID),
		zap.String("code", de.Code),
		zap.Error(err),
	)
	s.hub.deliver(c, c4dto.Event{Type: c4dto.EventError, SessionID: sessionID, Error: &de})
}
