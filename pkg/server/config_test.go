package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("CASERELAY_TEST_ORIGIN", "https://cases.example.org")
	path := filepath.Join(t.TempDir(), "caserelay.yaml")
	data := `
port: 8080
static_dir: web/dist
allowed_origins:
  - ${CASERELAY_TEST_ORIGIN}
stats_interval: 1m
send_queue_size: 32
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	want.Port = 8080
	want.StaticDir = "web/dist"
	want.AllowedOrigins = []string{"https://cases.example.org"}
	want.StatsInterval = time.Minute
	want.SendQueueSize = 32
	want.MetricsAddr = ""
	want.ListenRetries = 0
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: 70000\nws_path: ws\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":            "4000",
		"HOST":            "127.0.0.1",
		"ALLOWED_ORIGINS": "https://a.example, https://b.example,,",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:4000" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins); diff != "" {
		t.Fatalf("origins mismatch (-want +got):\n%s", diff)
	}

	bad := DefaultConfig()
	if err := bad.ApplyEnv(func(k string) string {
		if k == "PORT" {
			return "http"
		}
		return ""
	}); err == nil {
		t.Fatalf("expected error for non-numeric PORT")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
}

func TestValidateMaxMessageBytes(t *testing.T) {
	for _, n := range []int64{0, protocol.MaxFrameSize + 1} {
		cfg := DefaultConfig()
		cfg.MaxMessageBytes = n
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Validate with max_message_bytes=%d: expected error", n)
		}
	}
	cfg := DefaultConfig()
	cfg.MaxMessageBytes = 1024
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
