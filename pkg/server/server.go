// Package server implements the caserelay WebSocket message router.
package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/caserelay/pkg/logging"
	"github.com/NicolasHaas/caserelay/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Pending and will Close() it on shutdown.
type Dependencies struct {
	Pending store.PendingStore // nil uses an in-memory store
	Now     func() time.Time   // nil uses time.Now
}

// Server is the caserelay HTTP + WebSocket server.
type Server struct {
	cfg      Config
	hub      *Hub
	conns    *connTable
	metrics  *Metrics
	pending  store.PendingStore
	upgrader websocket.Upgrader
	handlers sync.WaitGroup // running handleConn loops
	log      *slog.Logger
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	pending := deps.Pending
	if pending == nil {
		pending = store.NewMemory()
	}
	conns := newConnTable()
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		hub:      NewHub(pending, conns, metrics, deps.Now),
		conns:    conns,
		metrics:  metrics,
		pending:  pending,
		upgrader: makeUpgrader(cfg.AllowedOrigins),
		log:      logging.For("server"),
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Hub returns the routing hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the public HTTP handler: the WebSocket endpoint plus the
// static bundle when StaticDir is set.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WSPath, s.ServeWS)
	if s.cfg.StaticDir != "" {
		mux.Handle("/", newSPAHandler(s.cfg.StaticDir))
	}
	return mux
}

// ServeWS upgrades the request and serves the connection until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.TransportErrors.Add(1)
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.handlers.Add(1)
	defer s.handlers.Done()
	s.handleConn(newWSConn(NewConnID(), ws, s.cfg.SendQueueSize))
}

// Shutdown closes every live connection, waits for their handlers to
// finish and closes the pending store.
func (s *Server) Shutdown() error {
	s.conns.closeAll()
	s.handlers.Wait()
	return s.pending.Close()
}
