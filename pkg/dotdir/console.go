package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConsoleState is what the interactive consoles remember between runs so a
// restarted chat resumes the same session.
type ConsoleState struct {
	SessionID string    `json:"session_id"`
	Scope     string    `json:"scope,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadConsoleState reads console.json from the target directory.
// Returns nil, nil when no state has been saved yet.
func (m *Manager) LoadConsoleState(overrideDir string) (*ConsoleState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, ConsoleFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading console state: %w", err)
	}

	state := &ConsoleState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing console state: %w", err)
	}
	return state, nil
}

// SaveConsoleState writes console.json to the target directory.
func (m *Manager) SaveConsoleState(state *ConsoleState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil console state")
	}
	if state.SessionID == "" {
		return errors.New("console state has no session id")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling console state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ConsoleFile), data, 0o600); err != nil {
		return fmt.Errorf("writing console state: %w", err)
	}
	return nil
}

// ClearConsoleState removes console.json so the next console run starts a
// fresh session. Missing state is not an error.
func (m *Manager) ClearConsoleState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, ConsoleFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing console state: %w", err)
	}
	return nil
}

// ResumeSession picks the session a console talks to: explicit when set,
// otherwise the saved console session unless fresh is requested, otherwise
// a new id from newID. The choice is saved for the next run. resumed
// reports whether a saved session was picked up.
func (m *Manager) ResumeSession(overrideDir, explicit string, fresh bool, newID func() string) (sessionID string, resumed bool, err error) {
	switch {
	case explicit != "":
		sessionID = explicit
	case !fresh:
		state, err := m.LoadConsoleState(overrideDir)
		if err != nil {
			return "", false, err
		}
		if state != nil {
			sessionID = state.SessionID
			resumed = true
		}
	}
	if sessionID == "" {
		sessionID = newID()
	}

	if err := m.SaveConsoleState(&ConsoleState{SessionID: sessionID}, overrideDir); err != nil {
		return "", false, err
	}
	return sessionID, resumed, nil
}
