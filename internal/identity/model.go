package identity

import (
	"time"

	"github.com/google/uuid"
)

// User represents a row in the auth_users table.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an access token issued for a user together with its expiry.
// Sessions are replaced, never modified.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// Credentials carries an email/password pair.
type Credentials struct {
	Email    string
	Password string
}

// EventKind names a session change.
type EventKind int

const (
	EventInitialSession EventKind = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventUserUpdated:
		return "USER_UPDATED"
	}
	return "UNKNOWN"
}

// Event is delivered on a client's change feed. Session is nil after sign-out.
type Event struct {
	Kind    EventKind
	Session *Session
}
