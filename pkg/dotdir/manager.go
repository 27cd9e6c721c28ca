// Package dotdir resolves the .cogniweave/ directory that holds config.toml,
// credentials, console state and, unless configured otherwise, the history
// and tag databases.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the directory, both in the working directory and
// in the home directory.
const DirName = ".cogniweave"

// Files kept inside the directory.
const (
	ConfigFile      = "config.toml"
	CredentialsFile = "credentials.toml"
	ConsoleFile     = "console.json"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the directory to use, creating it
// when missing. An override wins, then ./.cogniweave when it exists, then
// ~/.cogniweave.
func (m *Manager) Target(override string) (string, error) {
	dir := override
	if dir == "" {
		local, exists, err := m.Local()
		if err != nil {
			return "", err
		}
		dir = local
		if !exists {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("getting home directory: %w", err)
			}
			dir = filepath.Join(home, DirName)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// Local returns ./.cogniweave and whether it exists as a directory.
func (m *Manager) Local() (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, DirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir(), nil
}

// Path returns the path of name inside the resolved directory.
func (m *Manager) Path(override, name string) (string, error) {
	dir, err := m.Target(override)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
