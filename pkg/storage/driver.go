// Package storage defines the session-keyed history store: an append-only
// log of dialogue turns with bounded, chronologically ordered reads.
package storage

import "context"

// Driver persists and reads back dialogue turns for sessions.
// Implementations must be safe for concurrent use across sessions.
type Driver interface {
	// Append stores the given turns atomically: either every turn is
	// persisted or none is. Turns keep their argument order within the
	// session.
	Append(ctx context.Context, turns ...Turn) error

	// History returns the most recent limit turns of a session in
	// chronological order. A limit <= 0 returns the whole session.
	// An unknown session yields an empty slice, not an error.
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Sessions lists the known session ids, most recently active first.
	Sessions(ctx context.Context) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}
