package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"pulse-analytics/pkg/platform/sentinel"
)

// Err classifies a database failure into a store sentinel while keeping the
// driver error in the chain for logs. Stores wrap every failure through it so
// services can translate sentinels into domain errors without knowing pq.
func Err(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		// unique_violation
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrConflict)
		// connection exception, insufficient resources, operator intervention
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
