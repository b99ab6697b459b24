package event

import (
	"context"

	"pulse-analytics/pkg/domain"
)

// Store persists session events. Implementations return sentinel errors for
// infrastructure facts; validation happens in the service.
type Store interface {
	// Append stores an event. The postgres implementation also writes the
	// outbox row in the same transaction.
	Append(ctx context.Context, ev *SessionEvent) error

	// ListByUser returns the newest events for a user, newest first.
	ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]SessionEvent, error)
}
