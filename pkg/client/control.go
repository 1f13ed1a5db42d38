// Package client implements a caserelay WebSocket participant.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client: connection closed")

// Event is one inbound event. Exactly one of Message or Presence is set for
// the known event names.
type Event struct {
	Name     string
	Message  *model.Message
	Presence *model.PresenceEvent
}

// Client is a single WebSocket connection to the relay.
type Client struct {
	ws        *websocket.Conn
	mu        sync.Mutex // serializes writes
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay's WebSocket endpoint (ws://host:port/ws) and
// starts receiving events.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	c := &Client{
		ws:     ws,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go c.receive()
	return c, nil
}

// Register claims identity userID under role.
func (c *Client) Register(userID string, role model.Role) error {
	return c.send(protocol.EventRegister, model.Registration{UserID: userID, UserType: role.String()})
}

// Send submits msg for routing. SenderID and Timestamp are set by the server.
func (c *Client) Send(msg model.Message) error {
	return c.send(protocol.EventMessage, msg)
}

func (c *Client) send(event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: send %s: %w", event, err)
	}
	return nil
}

// Events returns the inbound event stream. It is closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done returns a channel that's closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Client) receive() {
	defer close(c.events)
	defer func() { _ = c.Close() }()
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !isDone(c.done) {
				slog.Debug("client read error", "err", err)
			}
			return
		}
		ev, err := decodeEvent(frame)
		if err != nil {
			slog.Warn("client: dropping undecodable frame", "err", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func decodeEvent(frame []byte) (Event, error) {
	env, err := protocol.Decode(frame)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Name: env.Event}
	switch env.Event {
	case protocol.EventMessage:
		ev.Message = &model.Message{}
		if err := env.Bind(ev.Message); err != nil {
			return Event{}, err
		}
	case protocol.EventUserStatus:
		ev.Presence = &model.PresenceEvent{}
		if err := env.Bind(ev.Presence); err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
