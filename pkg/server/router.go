package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

// dispatch resolves recipients for msg by its type. Callers hold h.mu.
//
//	ADMIN_MESSAGE             identity payload.recipientId, dropped when offline
//	OFFICER_MESSAGE           every admin
//	POLICE_TO_VICTIM_MESSAGE  identity payload.recipientId, queued when offline
//	VICTIM_MESSAGE            every officer and admin
//	MESSAGE_READ              payload.recipientId if set, else everyone but the sender
//	NEW_CASE_ADDED            matching victim (queued when offline) plus every admin
//	anything else             everyone but the sender
func (h *Hub) dispatch(sender ConnID, msg model.Message) error {
	switch msg.Type {
	case model.TypeAdminMessage:
		rcpt, err := msg.Recipient()
		if err != nil {
			return fmt.Errorf("server: %s: %w", msg.Type, err)
		}
		return h.deliverOrDrop(rcpt, msg)

	case model.TypeOfficerMessage:
		return h.deliverToRoles(msg, model.RoleAdmin)

	case model.TypePoliceToVictim:
		rcpt, err := msg.Recipient()
		if err != nil {
			return fmt.Errorf("server: %s: %w", msg.Type, err)
		}
		return h.deliverOrQueue(rcpt, msg)

	case model.TypeVictimMessage:
		return h.deliverToRoles(msg, model.RoleOfficer, model.RoleAdmin)

	case model.TypeMessageRead:
		receipt, err := msg.ReadReceipt()
		if err != nil {
			return fmt.Errorf("server: %s: %w", msg.Type, err)
		}
		if receipt.RecipientID != "" {
			return h.deliverOrDrop(receipt.RecipientID, msg)
		}
		return h.broadcastExcept(sender, msg)

	case model.TypeNewCaseAdded:
		name, err := msg.VictimName()
		if err != nil {
			return fmt.Errorf("server: %s: %w", msg.Type, err)
		}
		victimErr := h.deliverNewCase(name, msg)
		return errors.Join(victimErr, h.deliverToRoles(msg, model.RoleAdmin))

	default:
		return h.broadcastExcept(sender, msg)
	}
}

// deliverNewCase sends a new case to the first live victim (by identity)
// whose identity contains the lowercased name. With no match the message is
// queued under an identity synthesized from the name, which a victim whose
// registered identity is spelled differently will never drain.
func (h *Hub) deliverNewCase(name string, msg model.Message) error {
	needle := strings.ToLower(name)
	for _, sess := range h.registry.All() {
		if sess.Role == model.RoleVictim && strings.Contains(sess.Identity, needle) {
			return h.deliverMessage(ConnID(sess.ConnID), msg)
		}
	}
	return h.enqueue(model.VictimIDFromName(name), msg)
}

// deliverOrDrop sends msg to identity, logging and dropping it when offline.
func (h *Hub) deliverOrDrop(identity string, msg model.Message) error {
	conn, ok := h.registry.LookupByIdentity(identity)
	if !ok {
		h.metrics.MessagesDropped.Add(1)
		h.log.Warn("recipient offline, message dropped", "type", msg.Type, "user", identity)
		return nil
	}
	return h.deliverMessage(conn, msg)
}

// deliverOrQueue sends msg to identity, queueing it when the identity has no
// live connection.
func (h *Hub) deliverOrQueue(identity string, msg model.Message) error {
	if conn, ok := h.registry.LookupByIdentity(identity); ok {
		err := h.deliverMessage(conn, msg)
		if !errors.Is(err, ErrUnknownConn) {
			return err
		}
	}
	return h.enqueue(identity, msg)
}

func (h *Hub) enqueue(identity string, msg model.Message) error {
	if err := h.pending.Enqueue(identity, msg); err != nil {
		return fmt.Errorf("server: queue %s for %s: %w", msg.Type, identity, err)
	}
	h.metrics.MessagesQueued.Add(1)
	h.log.Info("recipient offline, message queued", "type", msg.Type, "user", identity)
	return nil
}

// deliverToRoles sends msg to every live session holding one of roles.
func (h *Hub) deliverToRoles(msg model.Message, roles ...model.Role) error {
	frame, err := protocol.Encode(protocol.EventMessage, msg)
	if err != nil {
		return fmt.Errorf("server: encode %s: %w", msg.Type, err)
	}
	for _, role := range roles {
		for _, conn := range h.registry.LookupByRole(role) {
			h.deliver(conn, frame)
		}
	}
	return nil
}

// broadcastExcept sends msg to every live session except the one on sender.
func (h *Hub) broadcastExcept(sender ConnID, msg model.Message) error {
	frame, err := protocol.Encode(protocol.EventMessage, msg)
	if err != nil {
		return fmt.Errorf("server: encode %s: %w", msg.Type, err)
	}
	for _, sess := range h.registry.All() {
		if ConnID(sess.ConnID) == sender {
			continue
		}
		h.deliver(ConnID(sess.ConnID), frame)
	}
	return nil
}

// deliverMessage encodes msg and sends it to a single connection.
func (h *Hub) deliverMessage(conn ConnID, msg model.Message) error {
	frame, err := protocol.Encode(protocol.EventMessage, msg)
	if err != nil {
		return fmt.Errorf("server: encode %s: %w", msg.Type, err)
	}
	if err := h.out.Deliver(conn, frame); err != nil {
		h.metrics.SendFailures.Add(1)
		return fmt.Errorf("server: deliver %s to %s: %w", msg.Type, conn, err)
	}
	h.metrics.MessagesDelivered.Add(1)
	return nil
}

// deliver sends a pre-encoded frame. Failures are logged and counted.
func (h *Hub) deliver(conn ConnID, frame []byte) {
	if err := h.out.Deliver(conn, frame); err != nil {
		h.metrics.SendFailures.Add(1)
		h.log.Warn("delivery failed", "conn", conn, "err", err)
		return
	}
	h.metrics.MessagesDelivered.Add(1)
}
