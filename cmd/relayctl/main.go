// Command relayctl joins a caserelay server as one participant, optionally
// sends a single message, and prints every event it receives as JSON lines.
//
//	relayctl -user off7 -role officer
//	relayctl -user off7 -role officer -type POLICE_TO_VICTIM_MESSAGE \
//	  -payload '{"recipientId":"victim-ann","text":"on our way"}' -wait 2s
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/caserelay/pkg/client"
	"github.com/NicolasHaas/caserelay/pkg/logging"
	"github.com/NicolasHaas/caserelay/pkg/model"
)

func main() {
	// Default to "warn" so stdout stays machine-readable; override with CASERELAY_LOG_LEVEL.
	level := "warn"
	if v := os.Getenv("CASERELAY_LOG_LEVEL"); v != "" {
		level = v
	}
	_ = logging.Setup(logging.Options{
		Level:  level,
		Format: "text",
		Output: os.Stderr,
	})

	url := flag.String("url", "ws://localhost:3000/ws", "Relay WebSocket URL")
	user := flag.String("user", "", "Identity to register (e.g. off7, victim-ann, admin-ops)")
	role := flag.String("role", "officer", "Role: officer, victim or admin")
	msgType := flag.String("type", "", "Message type to send after registering (empty = listen only)")
	payload := flag.String("payload", "{}", "JSON payload for -type")
	wait := flag.Duration("wait", 0, "Exit after this long (0 = until interrupted)")
	flag.Parse()

	if err := run(*url, *user, *role, *msgType, *payload, *wait); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func run(url, user, roleName, msgType, payload string, wait time.Duration) error {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return err
	}
	if user == "" {
		return fmt.Errorf("-user is required")
	}
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("-payload is not valid JSON")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	c, err := client.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Register(user, role); err != nil {
		return err
	}
	slog.Info("registered", "user", user, "role", role)

	if msgType != "" {
		if err := c.Send(model.Message{Type: msgType, Payload: json.RawMessage(payload)}); err != nil {
			return err
		}
		slog.Info("sent", "type", msgType)
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.Events():
			if !ok {
				return fmt.Errorf("connection closed by server")
			}
			if err := enc.Encode(eventLine(ev)); err != nil {
				return err
			}
		}
	}
}

// eventLine renders an event in the envelope shape it arrived in.
func eventLine(ev client.Event) map[string]any {
	line := map[string]any{"event": ev.Name}
	switch {
	case ev.Message != nil:
		line["data"] = ev.Message
	case ev.Presence != nil:
		line["data"] = ev.Presence
	}
	return line
}
