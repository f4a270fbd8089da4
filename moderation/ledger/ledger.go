package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable wraps any persistence-layer failure. The engine aborts the
// event when it sees this: no sanction may be issued against a count that was
// never durably recorded.
var ErrUnavailable = errors.New("warning ledger unavailable")

// Ledger is the durable violation counter store, keyed by (group, user).
//
// IncrementAndGet must be atomic with respect to other increments on the same
// key: it is never a read followed by a conditional write from the caller's
// perspective.
type Ledger interface {
	// GetCount returns the current warning count, or 0 if no record exists.
	GetCount(ctx context.Context, groupID, userID int64) (int, error)
	// IncrementAndGet atomically adds 1 to the count, persists it, and
	// returns the new value.
	IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error)
	// Reset sets the count back to 0 (used after a permanent ban).
	Reset(ctx context.Context, groupID, userID int64) error
}

func recordKey(groupID, userID int64) string {
	return fmt.Sprintf("%d/%d", groupID, userID)
}
