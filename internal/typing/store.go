// Package typing tracks, per conversation, which users are currently typing.
// Entries expire on their own TTL after the last Start for that user.
package typing

import (
	"context"
	"time"
)

const DefaultTTL = 10 * time.Second

type Store interface {
	// Start adds userID to the conversation's typing set, or refreshes its
	// expiry when already present.
	Start(ctx context.Context, conversationID, userID string) error
	// Stop removes userID. Removing an absent user is not an error.
	Stop(ctx context.Context, conversationID, userID string) error
	// List returns the users typing in conversationID, sorted.
	List(ctx context.Context, conversationID string) ([]string, error)
}
