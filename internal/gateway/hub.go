package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/msgcat"
	"github.com/park285/connect4-server/internal/obslog"
	"github.com/park285/connect4-server/pkg/c4dto"
)

const outboxSize = 64

// Hub tracks one live connection per identity and delivers events to it.
// It implements lifecycle.Notifier.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*conn

	cat *msgcat.Catalog
	log *zap.Logger
}

func NewHub(cat *msgcat.Catalog, log *zap.Logger) *Hub {
	if log == nil {
		log = obslog.L()
	}
	return &Hub{conns: make(map[string]*conn), cat: cat, log: log}
}

// Notify renders ev for identity and queues it. Events for identities
// without a connection are dropped.
func (h *Hub) Notify(identity string, ev c4dto.Event) {
	h.mu.Lock()
	c := h.conns[identity]
	h.mu.Unlock()
	if c == nil {
		return
	}
	h.deliver(c, ev)
}

func (h *Hub) deliver(c *conn, ev c4dto.Event) {
	if ev.Message == "" {
		ev.Message = describe(h.cat, c.identity, ev)
	}
	select {
	case c.out <- ev:
	default:
		h.log.Warn("gateway_outbox_full",
			zap.String("identity", c.identity),
			zap.String("event", ev.Type),
			zap.String("session_id", ev.SessionID),
		)
	}
}

// register makes c the connection for its identity and returns the one it
// replaced, if any.
func (h *Hub) register(c *conn) *conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.conns[c.identity]
	h.conns[c.identity] = c
	return prev
}

// unregister reports whether c was still the current connection.
func (h *Hub) unregister(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.identity] != c {
		return false
	}
	delete(h.conns, c.identity)
	return true
}

func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	list := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		list = append(list, c)
	}
	h.conns = make(map[string]*conn)
	h.mu.Unlock()
	for _, c := range list {
		c.shutdown("server shutdown")
	}
}
