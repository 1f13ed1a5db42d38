package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

// connState is the lifecycle of one connection.
type connState int

const (
	stateConnected  connState = iota // open, no registration yet
	stateRegistered                  // bound to an identity
	stateClosed                      // terminal
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateRegistered:
		return "registered"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

var errConnClosed = errors.New("server: connection closed")

// next returns the state after event. Registered re-registers in place and
// drops back to Connected when superseded; nothing leaves Closed.
func (s connState) next(event string) (connState, error) {
	if s == stateClosed {
		return s, errConnClosed
	}
	switch event {
	case protocol.EventRegister:
		return stateRegistered, nil
	case "superseded":
		return stateConnected, nil
	case "disconnect":
		return stateClosed, nil
	default:
		return s, nil
	}
}

// handleConn runs the read loop of one connection until it closes.
func (s *Server) handleConn(c *wsConn) {
	log := s.log.With("conn", c.id, "remote", c.remote)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	s.conns.add(c)
	log.Info("client connected")

	state := stateConnected
	defer func() {
		s.syncState(c.id, &state)
		prev := state
		state, _ = state.next("disconnect")
		s.hub.Disconnect(c.id)
		s.conns.remove(c.id)
		c.close()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		log.Info("client disconnected", "from", prev, "state", state)
	}()

	go c.writePump(s.cfg, s.metrics, log)

	c.ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.metrics.TransportErrors.Add(1)
				log.Warn("read failed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			log.Debug("ignoring non-text frame", "kind", kind)
			continue
		}
		if err := s.handleFrame(c.id, &state, frame); err != nil {
			s.syncState(c.id, &state)
			s.metrics.FailedConnections.Add(1)
			log.Error("event failed", "state", state, "err", err)
		}
	}
}

// handleFrame decodes one frame and applies it. Panics are recovered into
// errors so one bad event never takes the connection down.
func (s *Server) handleFrame(id ConnID, state *connState, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("server: panic handling event: %v", r)
		}
	}()

	s.syncState(id, state)

	env, err := protocol.DecodeLimit(frame, int(s.cfg.MaxMessageBytes))
	if err != nil {
		return err
	}

	switch env.Event {
	case protocol.EventRegister:
		var reg model.Registration
		if err := env.Bind(&reg); err != nil {
			return err
		}
		sess, err := s.hub.Register(id, reg)
		if sess.Identity != "" {
			next, serr := state.next(env.Event)
			if serr != nil {
				return serr
			}
			*state = next
		}
		return err

	case protocol.EventMessage:
		var msg model.Message
		if err := env.Bind(&msg); err != nil {
			return err
		}
		return s.hub.Route(id, msg)

	default:
		s.log.Debug("ignoring unknown event", "conn", id, "event", env.Event)
		return nil
	}
}

// syncState moves a registered connection back to Connected once a later
// registration of its identity has taken its session.
func (s *Server) syncState(id ConnID, state *connState) {
	if *state != stateRegistered {
		return
	}
	if _, ok := s.hub.Registry().Session(id); ok {
		return
	}
	if next, err := state.next("superseded"); err == nil {
		*state = next
	}
}
