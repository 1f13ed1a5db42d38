package client

import (
	"testing"

	"github.com/NicolasHaas/caserelay/pkg/model"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantName string
		wantMsg  bool
		wantPres bool
		wantErr  bool
	}{
		{"message", `{"event":"message","data":{"type":"VICTIM_MESSAGE","senderId":"victim-ann"}}`, "message", true, false, false},
		{"presence", `{"event":"userStatus","data":{"userId":"off1","userType":"officer","status":"online","timestamp":"t"}}`, "userStatus", false, true, false},
		{"unknown event", `{"event":"typing","data":{}}`, "typing", false, false, false},
		{"message without type", `{"event":"message","data":{}}`, "", false, false, true},
		{"garbage", `nope`, "", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeEvent err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ev.Name != tt.wantName || (ev.Message != nil) != tt.wantMsg || (ev.Presence != nil) != tt.wantPres {
				t.Fatalf("decodeEvent = %+v", ev)
			}
		})
	}

	ev, _ := decodeEvent([]byte(`{"event":"userStatus","data":{"userId":"off1","userType":"officer","status":"offline","timestamp":"t"}}`))
	if ev.Presence.UserType != model.RoleOfficer || ev.Presence.Status != model.StatusOffline {
		t.Fatalf("presence = %+v", ev.Presence)
	}
}
