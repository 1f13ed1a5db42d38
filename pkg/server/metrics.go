package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters are monotonic except ActiveConnections and use atomic
// operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime WebSocket connections accepted
	ActiveConnections atomic.Int64 // current open connections
	FailedConnections atomic.Int64 // register/message events that failed
	TotalDisconnects  atomic.Int64 // connections closed (clean + unclean)
	TransportErrors   atomic.Int64 // upgrade, read and write errors
	Registrations     atomic.Int64 // successful register events

	// Routing counters
	MessagesSeen      atomic.Int64 // message events received
	MessagesDelivered atomic.Int64 // outbound frames handed to a connection
	MessagesDropped   atomic.Int64 // directed messages with no live recipient
	MessagesQueued    atomic.Int64 // messages stored for an offline victim
	PendingFlushed    atomic.Int64 // queued messages delivered on register
	SendFailures      atomic.Int64 // frames rejected by a full or closed send queue
	PresenceEvents    atomic.Int64 // userStatus announcements
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	FailedConnections int64 `json:"failed_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	TransportErrors   int64 `json:"transport_errors"`
	Registrations     int64 `json:"registrations"`

	MessagesSeen      int64 `json:"messages_seen"`
	MessagesDelivered int64 `json:"messages_delivered"`
	MessagesDropped   int64 `json:"messages_dropped"`
	MessagesQueued    int64 `json:"messages_queued"`
	PendingFlushed    int64 `json:"pending_flushed"`
	SendFailures      int64 `json:"send_failures"`
	PresenceEvents    int64 `json:"presence_events"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		FailedConnections: m.FailedConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		TransportErrors:   m.TransportErrors.Load(),
		Registrations:     m.Registrations.Load(),
		MessagesSeen:      m.MessagesSeen.Load(),
		MessagesDelivered: m.MessagesDelivered.Load(),
		MessagesDropped:   m.MessagesDropped.Load(),
		MessagesQueued:    m.MessagesQueued.Load(),
		PendingFlushed:    m.PendingFlushed.Load(),
		SendFailures:      m.SendFailures.Load(),
		PresenceEvents:    m.PresenceEvents.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a stats line with the live client count and the number
// of queued messages.
func (m *Metrics) LogSummary(liveClients, pending int) {
	s := m.Snapshot()
	slog.Info("server stats",
		"uptime", s.Uptime,
		"connected_clients", liveClients,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"failed", s.FailedConnections,
		"messages", s.MessagesSeen,
		"pending", pending,
	)
}

// runPeriodicLog logs a summary every interval until ctx is done.
func (m *Metrics) runPeriodicLog(ctx context.Context, interval time.Duration, hub *Hub) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.LogSummary(hub.Registry().Count(), hub.PendingTotal())
		}
	}
}
