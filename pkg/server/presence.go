package server

import (
	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

// announce sends a userStatus event to every live session. Callers hold h.mu.
func (h *Hub) announce(identity string, role model.Role, status string) {
	frame, err := protocol.Encode(protocol.EventUserStatus, model.PresenceEvent{
		UserID:    identity,
		UserType:  role,
		Status:    status,
		Timestamp: model.FormatTimestamp(h.now()),
	})
	if err != nil {
		h.log.Error("encode presence failed", "user", identity, "err", err)
		return
	}
	h.metrics.PresenceEvents.Add(1)
	for _, sess := range h.registry.All() {
		h.deliver(ConnID(sess.ConnID), frame)
	}
}
