package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/version"
)

// MetricsHandler exposes /metrics in Prometheus text exposition format and
// /healthz for liveness probes.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok %s\n", version.String())
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("caserelay_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("caserelay_connections_active", "Current open WebSocket connections.", "gauge",
		m.ActiveConnections.Load())
	write("caserelay_connections_total", "Lifetime WebSocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("caserelay_connections_failed_total", "Register or message events that failed.", "counter",
		m.FailedConnections.Load())
	write("caserelay_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("caserelay_transport_errors_total", "Upgrade, read and write errors.", "counter",
		m.TransportErrors.Load())
	write("caserelay_registrations_total", "Successful registrations.", "counter",
		m.Registrations.Load())

	reg := s.hub.Registry()
	_, _ = fmt.Fprintf(w, "# HELP caserelay_sessions Live sessions by role.\n")
	_, _ = fmt.Fprintf(w, "# TYPE caserelay_sessions gauge\n")
	for _, role := range model.Roles {
		_, _ = fmt.Fprintf(w, "caserelay_sessions{role=%q} %d\n", role, reg.CountByRole(role))
	}

	write("caserelay_messages_total", "Message events received.", "counter",
		m.MessagesSeen.Load())
	write("caserelay_frames_delivered_total", "Outbound frames handed to a connection.", "counter",
		m.MessagesDelivered.Load())
	write("caserelay_messages_dropped_total", "Directed messages with no live recipient.", "counter",
		m.MessagesDropped.Load())
	write("caserelay_messages_queued_total", "Messages stored for an offline victim.", "counter",
		m.MessagesQueued.Load())
	write("caserelay_pending_flushed_total", "Queued messages delivered on register.", "counter",
		m.PendingFlushed.Load())
	write("caserelay_send_failures_total", "Frames rejected by a full or closed send queue.", "counter",
		m.SendFailures.Load())
	write("caserelay_presence_events_total", "userStatus announcements.", "counter",
		m.PresenceEvents.Load())
	write("caserelay_pending_messages", "Messages currently queued.", "gauge",
		int64(s.hub.PendingTotal()))
}
