package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/connect4-server/pkg/c4dto"
)

const (
	writeTimeout = 5 * time.Second
	pingTimeout  = 3 * time.Second
	drainTimeout = time.Second
)

// conn is one client connection. Only writeLoop writes to or closes ws.
type conn struct {
	identity string
	name     string
	ws       *websocket.Conn
	out      chan c4dto.Event
	log      *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
	reason    string

	// done is closed once writeLoop has closed ws.
	done chan struct{}
}

func newConn(identity, name string, ws *websocket.Conn, log *zap.Logger) *conn {
	return &conn{
		identity: identity,
		name:     name,
		ws:       ws,
		out:      make(chan c4dto.Event, outboxSize),
		log:      log,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *conn) writeLoop(ctx context.Context, pingInterval time.Duration) {
	defer close(c.done)
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.closing:
			c.drain()
			_ = c.ws.Close(websocket.StatusGoingAway, c.reason)
			return
		case <-ctx.Done():
			c.drain()
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				c.fail("write failed", err)
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.fail("ping failure", err)
				return
			}
		}
	}
}

// drain flushes events queued before shutdown, bounded by drainTimeout.
func (c *conn) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-c.out:
			if err := wsjson.Write(ctx, c.ws, ev); err != nil {
				c.log.Debug("gateway_drain_dropped",
					zap.String("identity", c.identity),
					zap.Int("pending", len(c.out)+1),
					zap.Error(err),
				)
				return
			}
		default:
			return
		}
	}
}

// fail closes a broken link without draining and logs what was lost.
func (c *conn) fail(reason string, err error) {
	c.shutdown(reason)
	if n := len(c.out); n > 0 {
		c.log.Debug("gateway_link_lost_pending",
			zap.String("identity", c.identity),
			zap.Int("pending", n),
			zap.Error(err),
		)
	}
	_ = c.ws.Close(websocket.StatusGoingAway, reason)
}

// shutdown asks writeLoop to flush the outbox and close the socket.
func (c *conn) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closing)
	})
}

func (c *conn) closed() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// wait blocks until writeLoop has closed the socket.
func (c *conn) wait() { <-c.done }
