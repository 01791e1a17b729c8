// Package presence records which user owns which live connection.
//
// Two backends implement Store: LocalStore keeps process-local maps and
// RedisStore keeps the mapping in Redis so it survives restarts. Resilient
// wraps both and is what the rest of the server depends on.
package presence

import "context"

type Store interface {
	// SetOnline records connID as the user's current connection. The most
	// recent call for a user wins.
	SetOnline(ctx context.Context, userID, connID string) error
	// SetOffline forgets connID. The user mapping is removed only while it
	// still points at connID, so a stale connection closing never hides a
	// newer one.
	SetOffline(ctx context.Context, userID, connID string) error
	Connection(ctx context.Context, userID string) (string, bool, error)
	User(ctx context.Context, connID string) (string, bool, error)
	Online(ctx context.Context) (map[string]string, error)
}
