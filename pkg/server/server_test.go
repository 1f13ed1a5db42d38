package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/protocol"
	"github.com/NicolasHaas/caserelay/pkg/store"
)

// panicDeliverer fails every delivery with a panic.
type panicDeliverer struct{}

func (panicDeliverer) Deliver(ConnID, []byte) error { panic("deliverer exploded") }

func newTestServer(t *testing.T) (*Server, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StaticDir = ""
	srv := New(cfg, Dependencies{Now: func() time.Time { return testNow }})
	rec := newRecorder()
	srv.hub = NewHub(store.NewMemory(), rec, srv.metrics, func() time.Time { return testNow })
	return srv, rec
}

func TestConnStateTransitions(t *testing.T) {
	tests := []struct {
		from    connState
		event   string
		want    connState
		wantErr bool
	}{
		{stateConnected, protocol.EventRegister, stateRegistered, false},
		{stateConnected, protocol.EventMessage, stateConnected, false},
		{stateRegistered, protocol.EventRegister, stateRegistered, false},
		{stateRegistered, protocol.EventMessage, stateRegistered, false},
		{stateRegistered, "superseded", stateConnected, false},
		{stateConnected, "superseded", stateConnected, false},
		{stateConnected, "disconnect", stateClosed, false},
		{stateRegistered, "disconnect", stateClosed, false},
		{stateClosed, protocol.EventRegister, stateClosed, true},
		{stateClosed, protocol.EventMessage, stateClosed, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event, func(t *testing.T) {
			got, err := tt.from.next(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("next err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHandleFrameRegisterAndMessage(t *testing.T) {
	srv, rec := newTestServer(t)
	state := stateConnected

	frame, err := protocol.Encode(protocol.EventRegister, model.Registration{UserID: "admin-jo", UserType: "admin"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := srv.handleFrame("c1", &state, frame); err != nil {
		t.Fatalf("handleFrame(register): %v", err)
	}
	if state != stateRegistered {
		t.Fatalf("state = %s, want registered", state)
	}

	other := stateConnected
	msg := []byte(`{"event":"message","data":{"type":"VICTIM_MESSAGE","payload":{"text":"help"}}}`)
	if err := srv.handleFrame("c2", &other, msg); err != nil {
		t.Fatalf("handleFrame(message): %v", err)
	}
	if other != stateConnected {
		t.Fatalf("message before register changed state to %s", other)
	}
	got := rec.messages(t, "c1")
	if len(got) != 1 || got[0].SenderID != "" {
		t.Fatalf("admin messages = %+v, want one with empty sender", got)
	}
}

func TestHandleFrameErrors(t *testing.T) {
	tests := []struct {
		name       string
		registered bool
		frame      string
		want       error
	}{
		{"not json", false, `{{`, nil},
		{"missing event", false, `{"data":{}}`, protocol.ErrMissingEvent},
		{"register without data", false, `{"event":"register"}`, nil},
		{"unknown role", false, `{"event":"register","data":{"userId":"x","userType":"pilot"}}`, model.ErrUnknownRole},
		{"message without type", false, `{"event":"message","data":{"payload":{}}}`, model.ErrMissingType},
		{"directed without recipient", true, `{"event":"message","data":{"type":"ADMIN_MESSAGE","payload":{}}}`, model.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			state := stateConnected
			if tt.registered {
				mustRegister(t, srv.hub, "c1", "admin-jo", "admin")
				state = stateRegistered
			}
			initial := state
			err := srv.handleFrame("c1", &state, []byte(tt.frame))
			if err == nil {
				t.Fatalf("handleFrame: expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if state != initial {
				t.Fatalf("failed event changed state to %s", state)
			}
		})
	}
}

func TestHandleFrameHonorsMessageLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.cfg.MaxMessageBytes = 64
	state := stateConnected

	frame := []byte(`{"event":"message","data":{"type":"VICTIM_MESSAGE","payload":{"text":"` + strings.Repeat("x", 64) + `"}}}`)
	if err := srv.handleFrame("c1", &state, frame); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestSupersededConnectionFallsBackToConnected(t *testing.T) {
	srv, rec := newTestServer(t)
	first, second := stateConnected, stateConnected
	register := []byte(`{"event":"register","data":{"userId":"victim-ann","userType":"victim"}}`)
	if err := srv.handleFrame("c1", &first, register); err != nil {
		t.Fatalf("register c1: %v", err)
	}
	if err := srv.handleFrame("c2", &second, register); err != nil {
		t.Fatalf("register c2: %v", err)
	}
	rec.reset()

	msg := []byte(`{"event":"message","data":{"type":"VICTIM_MESSAGE","payload":{"text":"still here"}}}`)
	if err := srv.handleFrame("c1", &first, msg); err != nil {
		t.Fatalf("message from c1: %v", err)
	}
	if first != stateConnected {
		t.Fatalf("orphaned state = %s, want connected", first)
	}
	if second != stateRegistered {
		t.Fatalf("current owner state = %s, want registered", second)
	}
	got := rec.messages(t, "c2")
	if len(got) != 1 || got[0].SenderID != "" {
		t.Fatalf("c2 messages = %+v, want one broadcast with empty sender", got)
	}
}

func TestHandleFrameIgnoresUnknownEvent(t *testing.T) {
	srv, _ := newTestServer(t)
	state := stateConnected
	if err := srv.handleFrame("c1", &state, []byte(`{"event":"typing","data":{}}`)); err != nil {
		t.Fatalf("unknown event: %v", err)
	}
}

func TestHandleFrameRecoversPanic(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.hub = NewHub(store.NewMemory(), panicDeliverer{}, srv.metrics, nil)
	state := stateConnected

	frame := []byte(`{"event":"register","data":{"userId":"off2","userType":"officer"}}`)
	if err := srv.handleFrame("c1", &state, frame); err == nil {
		t.Fatalf("expected panic to surface as an error")
	}

	// The hub lock is released after the panic.
	done := make(chan struct{})
	go func() {
		msg := []byte(`{"event":"message","data":{"type":"ADMIN_MESSAGE","payload":{"recipientId":"off9"}}}`)
		_ = srv.handleFrame("c2", &state, msg)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("hub still locked after recovered panic")
	}
}
