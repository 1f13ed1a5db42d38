package server

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/caserelay/pkg/logging"
	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
	"github.com/NicolasHaas/caserelay/pkg/store"
)

// Deliverer hands an encoded frame to a connection without blocking.
type Deliverer interface {
	Deliver(id ConnID, frame []byte) error
}

// Hub owns the registry and the pending store. Every compound operation on
// them (register+flush, lookup+deliver-or-queue, remove+announce) runs under mu.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	pending  store.PendingStore
	out      Deliverer
	metrics  *Metrics
	now      func() time.Time
	log      *slog.Logger
}

// NewHub creates a hub delivering through out. A nil clock uses time.Now.
func NewHub(pending store.PendingStore, out Deliverer, metrics *Metrics, now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{
		registry: NewRegistry(now),
		pending:  pending,
		out:      out,
		metrics:  metrics,
		now:      now,
		log:      logging.For("hub"),
	}
}

// Registry returns the session registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register binds conn to the normalized identity, flushes its pending queue
// to it and announces it online.
func (h *Hub) Register(conn ConnID, reg model.Registration) (model.Session, error) {
	role, err := model.ParseRole(reg.UserType)
	if err != nil {
		return model.Session{}, fmt.Errorf("server: register %q: %w", reg.UserID, err)
	}
	identity := model.NormalizeIdentity(reg.UserID, role)

	h.mu.Lock()
	defer h.mu.Unlock()

	sess, sup := h.registry.Register(conn, identity, role)
	h.metrics.Registrations.Add(1)
	h.log.Info("user registered", "user", identity, "role", role, "conn", conn)

	if sup.Orphaned != "" {
		h.log.Warn("identity re-registered from another connection", "user", identity, "orphaned", sup.Orphaned, "conn", conn)
	}

	flushErr := h.flushPending(conn, identity)

	if sup.PrevIdentity != "" {
		h.announce(sup.PrevIdentity, sup.PrevRole, model.StatusOffline)
	}
	h.announce(identity, role, model.StatusOnline)

	return sess, flushErr
}

// flushPending drains the identity's queue to conn. A message that cannot be
// encoded is dropped; a failed send puts the undelivered remainder back so
// the next registration retries it.
func (h *Hub) flushPending(conn ConnID, identity string) error {
	msgs, err := h.pending.DrainAndClear(identity)
	if err != nil {
		return fmt.Errorf("server: drain pending for %s: %w", identity, err)
	}
	if len(msgs) == 0 {
		return nil
	}
	h.log.Info("delivering pending messages", "user", identity, "count", len(msgs))
	for i, msg := range msgs {
		frame, err := protocol.Encode(protocol.EventMessage, msg)
		if err != nil {
			h.metrics.MessagesDropped.Add(1)
			h.log.Warn("undeliverable pending message dropped", "type", msg.Type, "user", identity, "err", err)
			continue
		}
		if err := h.out.Deliver(conn, frame); err != nil {
			h.metrics.SendFailures.Add(1)
			for _, rest := range msgs[i:] {
				if qerr := h.pending.Enqueue(identity, rest); qerr != nil {
					h.log.Error("requeue pending message failed", "user", identity, "err", qerr)
				}
			}
			return fmt.Errorf("server: flush pending for %s: %w", identity, err)
		}
		h.metrics.MessagesDelivered.Add(1)
		h.metrics.PendingFlushed.Add(1)
	}
	return nil
}

// Route stamps msg with its sender and the server time and dispatches it.
// A connection without a session gets the default broadcast whatever the
// message type. Messages too large to encode once stamped are rejected
// before anything is delivered or queued.
func (h *Hub) Route(conn ConnID, msg model.Message) error {
	h.metrics.MessagesSeen.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()

	sess, registered := h.registry.Session(conn)
	msg.SenderID = ""
	if registered {
		msg.SenderID = sess.Identity
	}
	msg.Timestamp = model.FormatTimestamp(h.now())
	if _, err := protocol.Encode(protocol.EventMessage, msg); err != nil {
		h.metrics.MessagesDropped.Add(1)
		return fmt.Errorf("server: route %s: %w", msg.Type, err)
	}
	h.log.Debug("routing message", "type", msg.Type, "sender", msg.SenderID, "conn", conn)
	if !registered {
		return h.broadcastExcept(conn, msg)
	}
	return h.dispatch(conn, msg)
}

// Disconnect removes conn's session and announces it offline. A connection
// that never registered, or was orphaned by a later registration, has no
// session and produces no announcement.
func (h *Hub) Disconnect(conn ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.registry.Remove(conn)
	if !ok {
		return
	}
	h.log.Info("user disconnected", "user", sess.Identity, "role", sess.Role, "conn", conn)
	h.announce(sess.Identity, sess.Role, model.StatusOffline)
}

// PendingTotal reports the number of queued messages across all identities.
func (h *Hub) PendingTotal() int {
	n, err := h.pending.Total()
	if err != nil {
		h.log.Error("count pending messages failed", "err", err)
		return 0
	}
	return n
}
