package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// UserID identifies a learner across sessions. It is a domain primitive that
// enforces validity at parse time.
type UserID uuid.UUID

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return UserID(u), nil
}

func (u UserID) String() string { return uuid.UUID(u).String() }

// IsNil reports whether the ID is the zero UUID.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

// SessionID identifies one training session. Sessions are created by the
// orchestrator and may not be UUIDs, so this stays an opaque non-empty string.
type SessionID string

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return "", fmt.Errorf("session id must not be empty")
	}
	return SessionID(s), nil
}

func (s SessionID) String() string { return string(s) }
