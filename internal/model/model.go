package model

import "time"

// Principal is the authenticated subject. Principals are created and managed
// by the user store; this service only reads them.
type Principal struct {
	ID          string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Active      bool
	Superuser   bool
	Roles       []string
	Permissions []string
	LastLogin   *time.Time
}

// Can reports whether the principal holds the given permission code.
// Superusers hold every permission.
func (p Principal) Can(permission string) bool {
	if p.Superuser {
		return true
	}
	for _, code := range p.Permissions {
		if code == permission {
			return true
		}
	}
	return false
}

// ClientContext is the device/network fingerprint captured from a request:
// the client network address and raw user-agent string.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// SessionRecord is the durable registry entry for one issued refresh
// credential. Records are never hard-deleted; revocation is tracked through
// RevocationEntry rows so the audit trail survives logout.
type SessionRecord struct {
	ID          string
	PrincipalID string
	Token       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UserAgent   string
	IPAddress   string
	Revoked     bool
	RevokedAt   *time.Time
}

// RevocationEntry marks a session record as invalidated ahead of natural
// expiry. Existence of the entry is the revoked state, which makes revoke an
// idempotent set-insert.
type RevocationEntry struct {
	RecordID  string
	RevokedAt time.Time
}
