package model

import "time"

// Session represents a live registration (in-memory only).
// ConnID names the transport connection the session delivers to.
type Session struct {
	ConnID       string
	Identity     string
	Role         Role
	RegisteredAt time.Time
}

// Presence status values carried by userStatus events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceEvent announces a session coming online or going offline.
type PresenceEvent struct {
	UserID    string `json:"userId"`
	UserType  Role   `json:"userType"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Registration is the payload of a register event.
type Registration struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// TimestampLayout formats server timestamps as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
