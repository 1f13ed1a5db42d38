package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		name    string
		claimed string
		role    Role
		want    string
	}{
		{"officer valid", "off42", RoleOfficer, "off42"},
		{"officer bare prefix", "off", RoleOfficer, "off"},
		{"officer malformed", "bob", RoleOfficer, FallbackOfficerID},
		{"officer empty", "", RoleOfficer, FallbackOfficerID},
		{"officer wrong case", "OFF7", RoleOfficer, FallbackOfficerID},
		{"victim valid", "victim-anna", RoleVictim, "victim-anna"},
		{"victim missing hyphen", "victimanna", RoleVictim, FallbackVictimID},
		{"victim malformed", "anna", RoleVictim, FallbackVictimID},
		{"admin valid", "admin-root", RoleAdmin, "admin-root"},
		{"admin malformed", "root", RoleAdmin, FallbackAdminID},
		{"admin claims officer id", "off1", RoleAdmin, FallbackAdminID},
		{"unknown role untouched", "whatever", Role("dispatcher"), "whatever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeIdentity(tt.claimed, tt.role); got != tt.want {
				t.Errorf("NormalizeIdentity(%q, %s) = %q, want %q", tt.claimed, tt.role, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdentityCollapsesMalformedClaims(t *testing.T) {
	for _, role := range Roles {
		a := NormalizeIdentity("alice", role)
		b := NormalizeIdentity("bob", role)
		if a != b {
			t.Errorf("role %s: malformed claims normalized to %q and %q, want the same fallback", role, a, b)
		}
	}
}

func TestVictimIDFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Michael", "victim-michael"},
		{"Jane Doe", "victim-jane-doe"},
		{"Mary Ann Smith", "victim-mary-ann smith"},
		{"", "victim-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VictimIDFromName(tt.name); got != tt.want {
				t.Errorf("VictimIDFromName(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr error
	}{
		{"officer", RoleOfficer, nil},
		{"victim", RoleVictim, nil},
		{"admin", RoleAdmin, nil},
		{"", "", ErrUnknownRole},
		{"Admin", "", ErrUnknownRole},
		{"moderator", "", ErrUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRole(%q) err = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessagePassThroughFields(t *testing.T) {
	in := `{"type":"CHAT","id":"m-1","payload":{"text":"hi"},"senderId":"forged","timestamp":"yesterday","priority":3}`

	var m Message
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Type != "CHAT" || m.SenderID != "forged" || m.Timestamp != "yesterday" {
		t.Fatalf("unexpected decode: %+v", m)
	}

	m.SenderID = "off1"
	m.Timestamp = "2026-01-02T03:04:05.000Z"
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal output: %v", err)
	}
	want := map[string]any{
		"type":      "CHAT",
		"id":        "m-1",
		"payload":   map[string]any{"text": "hi"},
		"senderId":  "off1",
		"timestamp": "2026-01-02T03:04:05.000Z",
		"priority":  float64(3),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("encoded message mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageRequiresType(t *testing.T) {
	for _, in := range []string{`{}`, `{"type":""}`, `{"type":7}`} {
		var m Message
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrMissingType) {
			t.Errorf("Unmarshal(%s) err = %v, want ErrMissingType", in, err)
		}
	}
}

func TestMessagePayloadAccessors(t *testing.T) {
	decode := func(t *testing.T, s string) *Message {
		t.Helper()
		var m Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			t.Fatalf("Unmarshal(%s): %v", s, err)
		}
		return &m
	}

	t.Run("recipient", func(t *testing.T) {
		id, err := decode(t, `{"type":"ADMIN_MESSAGE","payload":{"recipientId":"off9"}}`).Recipient()
		if err != nil || id != "off9" {
			t.Fatalf("Recipient() = %q, %v", id, err)
		}
		if _, err := decode(t, `{"type":"ADMIN_MESSAGE","payload":{}}`).Recipient(); !errors.Is(err, ErrMissingField) {
			t.Fatalf("Recipient() on empty payload err = %v, want ErrMissingField", err)
		}
		if _, err := decode(t, `{"type":"ADMIN_MESSAGE"}`).Recipient(); !errors.Is(err, ErrMissingField) {
			t.Fatalf("Recipient() without payload err = %v, want ErrMissingField", err)
		}
	})

	t.Run("read receipt", func(t *testing.T) {
		p, err := decode(t, `{"type":"MESSAGE_READ","payload":{"messageIds":[1,"b"]}}`).ReadReceipt()
		if err != nil {
			t.Fatalf("ReadReceipt(): %v", err)
		}
		if len(p.MessageIDs) != 2 || p.RecipientID != "" {
			t.Fatalf("ReadReceipt() = %+v", p)
		}
		if _, err := decode(t, `{"type":"MESSAGE_READ","payload":{"recipientId":"off1"}}`).ReadReceipt(); !errors.Is(err, ErrMissingField) {
			t.Fatalf("ReadReceipt() without ids err = %v, want ErrMissingField", err)
		}
	})

	t.Run("victim name", func(t *testing.T) {
		name, err := decode(t, `{"type":"NEW_CASE_ADDED","payload":{"victimName":"Jane Doe"}}`).VictimName()
		if err != nil || name != "Jane Doe" {
			t.Fatalf("VictimName() = %q, %v", name, err)
		}
		if _, err := decode(t, `{"type":"NEW_CASE_ADDED","payload":{"victimName":""}}`).VictimName(); !errors.Is(err, ErrMissingField) {
			t.Fatalf("VictimName() empty err = %v, want ErrMissingField", err)
		}
	})
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("X", 3600))
	if got, want := FormatTimestamp(ts), "2026-03-04T04:06:07.008Z"; got != want {
		t.Errorf("FormatTimestamp = %q, want %q", got, want)
	}
}
