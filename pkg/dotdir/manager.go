// Package dotdir manages the .echoes/ and ~/.echoes directories.
//
// The directory holds config.toml and, for the default sqlite backend, the
// echoes.sqlite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the echoes directory.
	dirName = ".echoes"

	// sqliteFile is the default database file inside the directory.
	sqliteFile = "echoes.sqlite"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .echoes/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.echoes/ dir
//  3. Home ~/.echoes/ dir, created if missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating echoes directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// SQLitePath returns the default sqlite database path inside the resolved
// directory.
func (m *Manager) SQLitePath(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sqliteFile), nil
}

// localDirExists checks whether a .echoes/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
