package config

import (
	"os"
	"path/filepath"

	"codeberg.org/mutker/packmon/internal/errors"
)

const flagFileName = "config-mode"

// FlagStore persists the configuration-mode request as a one-byte flag
// file. The console sets it, the processing loop polls it once per cycle,
// and the console clears it again when new configuration is saved.
type FlagStore struct {
	path string
}

func NewFlagStore(stateDir string) *FlagStore {
	return &FlagStore{path: filepath.Join(stateDir, flagFileName)}
}

// Path returns the flag file location.
func (s *FlagStore) Path() string {
	return s.path
}

// Set writes the flag, requesting a transition to the Config state.
func (s *FlagStore) Set() error {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	if err := os.WriteFile(s.path, []byte{'1'}, 0o600); err != nil {
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	return nil
}

// Clear removes the flag. Clearing an absent flag is not an error.
func (s *FlagStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrOperationFailed, err)
	}

	return nil
}

// IsSet reports whether the configuration-mode request is pending.
func (s *FlagStore) IsSet() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}

	return len(data) > 0 && data[0] == '1'
}
