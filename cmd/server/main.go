package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/caserelay/pkg/datastore"
	"github.com/NicolasHaas/caserelay/pkg/logging"
	"github.com/NicolasHaas/caserelay/pkg/server"
	"github.com/NicolasHaas/caserelay/pkg/store"
	"github.com/NicolasHaas/caserelay/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	host := flag.String("host", "", "HTTP bind host (overrides config and HOST)")
	port := flag.Int("port", 0, "HTTP bind port (overrides config and PORT)")
	staticDir := flag.String("static", "", "Directory of the built web client")
	metricsAddr := flag.String("metrics", "", "HTTP bind address for Prometheus /metrics")
	dbPath := flag.String("db", "", "SQLite file for the pending queue (empty = in-memory)")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("environment", "err", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "static":
			cfg.StaticDir = *staticDir
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "db":
			cfg.DBPath = *dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	var pending store.PendingStore = store.NewMemory()
	if cfg.DBPath != "" {
		st, err := datastore.NewPendingStore(cfg.DBPath)
		if err != nil {
			slog.Error("open database", "path", cfg.DBPath, "err", err)
			os.Exit(1)
		}
		pending = st
		slog.Info("pending queue persisted", "db", cfg.DBPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting caserelay", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Pending: pending})
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
