// Package sqlitepath resolves which transcript database a command works on.
package sqlitepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvVar overrides the default database location.
const EnvVar = "THERAMATCH_DB_PATH"

const (
	defaultDir  = ".theramatch"
	defaultFile = "theramatch.db"
)

// ResolveSQLitePath returns flagValue when set, then $THERAMATCH_DB_PATH,
// then ~/.theramatch/theramatch.db. The parent directory of the result is
// created if needed.
func ResolveSQLitePath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not find home directory: %w", err)
		}
		path = filepath.Join(home, defaultDir, defaultFile)
	}

	if path == ":memory:" {
		return "", errors.New("an in-memory database cannot be used here")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create database directory: %w", err)
	}
	return path, nil
}
