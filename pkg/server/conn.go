package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnID identifies one transport connection. The registry only ever holds
// ConnIDs; the connection table owns the sockets.
type ConnID string

// NewConnID returns a fresh random connection ID.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

var (
	ErrUnknownConn   = errors.New("server: unknown connection")
	ErrSendQueueFull = errors.New("server: send queue full")
)

// wsConn is one live WebSocket with a bounded outbound queue drained by writePump.
type wsConn struct {
	id        ConnID
	ws        *websocket.Conn
	remote    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(id ConnID, ws *websocket.Conn, queueSize int) *wsConn {
	return &wsConn{
		id:     id,
		ws:     ws,
		remote: ws.RemoteAddr().String(),
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks.
func (c *wsConn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrUnknownConn
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// shutdown sends a going-away close frame before closing the socket.
func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump writes queued frames and keepalive pings until the connection closes.
func (c *wsConn) writePump(cfg Config, metrics *Metrics, log *slog.Logger) {
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.TransportErrors.Add(1)
				log.Warn("write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				metrics.TransportErrors.Add(1)
				log.Debug("ping failed", "conn", c.id, "err", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// connTable maps ConnIDs to live sockets and implements Deliverer.
type connTable struct {
	mu    sync.RWMutex
	conns map[ConnID]*wsConn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[ConnID]*wsConn)}
}

func (t *connTable) add(c *wsConn) {
	t.mu.Lock()
	t.conns[c.id] = c
	t.mu.Unlock()
}

func (t *connTable) remove(id ConnID) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

// closeAll shuts every connection down; their read loops then clean up.
func (t *connTable) closeAll() {
	t.mu.RLock()
	conns := make([]*wsConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.RUnlock()
	for _, c := range conns {
		c.shutdown()
	}
}

// Deliver queues frame on the connection's outbound queue.
func (t *connTable) Deliver(id ConnID, frame []byte) error {
	t.mu.RLock()
	c, ok := t.conns[id]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownConn
	}
	return c.enqueue(frame)
}
