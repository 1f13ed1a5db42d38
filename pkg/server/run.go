package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run serves HTTP, WebSocket and metrics traffic and logs periodic stats
// until ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listenWithRetry(ctx, s.cfg.Addr())
	if err != nil {
		_ = s.pending.Close()
		return err
	}

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	var metricsSrv *http.Server
	if s.cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              s.cfg.MetricsAddr,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("caserelay server running", "addr", ln.Addr().String(), "ws", s.cfg.WSPath, "static", s.cfg.StaticDir)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			s.log.Info("metrics HTTP listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: metrics: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return s.metrics.runPeriodicLog(ctx, s.cfg.StatsInterval, s.hub)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	if cerr := s.Shutdown(); cerr != nil {
		s.log.Error("close pending store", "err", cerr)
	}
	return err
}

// listenWithRetry binds addr, retrying while the address is in use.
func (s *Server) listenWithRetry(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	for attempt := 0; ; attempt++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || attempt >= s.cfg.ListenRetries {
			return nil, fmt.Errorf("server: listen %s: %w", addr, err)
		}
		s.log.Warn("address in use, retrying", "addr", addr, "attempt", attempt+1, "delay", s.cfg.ListenRetryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.ListenRetryDelay):
		}
	}
}
