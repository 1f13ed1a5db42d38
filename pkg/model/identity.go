package model

import (
	"log/slog"
	"strings"
)

// Identity prefixes required per role.
const (
	OfficerPrefix = "off"
	VictimPrefix  = "victim-"
	AdminPrefix   = "admin-"
)

// Reserved identities substituted for malformed claims. Every malformed claim
// of a role collapses onto the same fallback and therefore onto one session slot.
const (
	FallbackOfficerID = "off1"
	FallbackVictimID  = "victim-michael"
	FallbackAdminID   = "admin-user"
)

// NormalizeIdentity returns the canonical identity for a claimed id under role.
// Claims missing the role prefix are replaced by the role's fallback identity.
// Roles outside the known set are returned unchanged.
func NormalizeIdentity(claimed string, role Role) string {
	var prefix, fallback string
	switch role {
	case RoleOfficer:
		prefix, fallback = OfficerPrefix, FallbackOfficerID
	case RoleVictim:
		prefix, fallback = VictimPrefix, FallbackVictimID
	case RoleAdmin:
		prefix, fallback = AdminPrefix, FallbackAdminID
	default:
		return claimed
	}
	if strings.HasPrefix(claimed, prefix) {
		return claimed
	}
	slog.Info("invalid identity format, using fallback", "role", role, "claimed", claimed, "user", fallback)
	return fallback
}

// VictimIDFromName synthesizes a victim identity from a free-text name:
// lowercased, first space replaced by a hyphen, prefixed with "victim-".
//
// The result is not guaranteed to match the identity the victim registers
// with ("Mary Ann Smith" becomes "victim-mary-ann smith").
func VictimIDFromName(name string) string {
	return VictimPrefix + strings.Replace(strings.ToLower(name), " ", "-", 1)
}
