package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/caserelay/pkg/protocol"
)

// Config holds server configuration. Zero values in a loaded file fall back
// to DefaultConfig.
type Config struct {
	Host           string   `yaml:"host"`            // HTTP bind host
	Port           int      `yaml:"port"`            // HTTP bind port
	StaticDir      string   `yaml:"static_dir"`      // single-page bundle directory (empty = disabled)
	WSPath         string   `yaml:"ws_path"`         // WebSocket endpoint path
	AllowedOrigins []string `yaml:"allowed_origins"` // empty or ["*"] allows every origin
	MetricsAddr    string   `yaml:"metrics_addr"`    // HTTP bind address for /metrics (empty = disabled)
	DBPath         string   `yaml:"db_path"`         // SQLite pending queue (empty = in-memory)

	StatsInterval    time.Duration `yaml:"stats_interval"`
	SendQueueSize    int           `yaml:"send_queue_size"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PongWait         time.Duration `yaml:"pong_wait"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	ListenRetries    int           `yaml:"listen_retries"`
	ListenRetryDelay time.Duration `yaml:"listen_retry_delay"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             3000,
		StaticDir:        "dist",
		WSPath:           "/ws",
		MetricsAddr:      ":9090",
		StatsInterval:    30 * time.Second,
		SendQueueSize:    256,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageBytes:  65536,
		ListenRetries:    5,
		ListenRetryDelay: time.Second,
	}
}

// LoadConfig reads a YAML config file, expands ${VAR} references, applies
// defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.WSPath == "" {
		c.WSPath = d.WSPath
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = d.StatsInterval
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait == 0 {
		c.PongWait = d.PongWait
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.ListenRetryDelay == 0 {
		c.ListenRetryDelay = d.ListenRetryDelay
	}
}

// ApplyEnv overrides fields from PORT, HOST and ALLOWED_ORIGINS.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws_path %q must start with /", c.WSPath))
	}
	if c.SendQueueSize < 1 {
		errs = append(errs, errors.New("send_queue_size must be positive"))
	}
	if c.WriteTimeout <= 0 || c.PongWait <= 0 {
		errs = append(errs, errors.New("write_timeout and pong_wait must be positive"))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, errors.New("stats_interval must be positive"))
	}
	if c.MaxMessageBytes < 1 || c.MaxMessageBytes > protocol.MaxFrameSize {
		errs = append(errs, fmt.Errorf("max_message_bytes must be between 1 and %d", protocol.MaxFrameSize))
	}
	if c.ListenRetries < 0 {
		errs = append(errs, errors.New("listen_retries must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
