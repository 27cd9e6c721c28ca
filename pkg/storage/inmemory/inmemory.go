// Package inmemory provides a map-backed history store for tests and
// ephemeral sessions.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the session mapping
	mu sync.RWMutex

	// sessions maps a session id to its turns in insertion order
	sessions map[string][]storage.Turn

	// order tracks session ids by most recent append, newest last
	order []string

	closed bool
}

// NewDriver creates a new in-memory history store.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string][]storage.Turn),
	}
}

// Append stores the turns. Validation happens before any turn is written,
// so a rejected batch leaves the store untouched.
func (s *Driver) Append(_ context.Context, turns ...storage.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	prepared, err := storage.Prepare(turns)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &storage.Error{Op: "append", SessionID: prepared[0].SessionID, Err: storage.ErrUnreachable}
	}

	for _, t := range prepared {
		s.sessions[t.SessionID] = append(s.sessions[t.SessionID], t)
		s.touch(t.SessionID)
	}
	return nil
}

// History returns a copy of the newest limit turns, oldest first.
func (s *Driver) History(_ context.Context, sessionID string, limit int) ([]storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &storage.Error{Op: "history", SessionID: sessionID, Err: storage.ErrUnreachable}
	}

	turns := s.sessions[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	out := make([]storage.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Sessions returns session ids, most recently appended first.
func (s *Driver) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &storage.Error{Op: "sessions", Err: storage.ErrUnreachable}
	}

	out := make([]string, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.order[i])
	}
	return out, nil
}

// Count returns the total number of stored turns.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, turns := range s.sessions {
		n += len(turns)
	}
	return n
}

// Close marks the store as closed.
func (s *Driver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *Driver) touch(sessionID string) {
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, sessionID)
}
