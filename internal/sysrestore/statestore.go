package sysrestore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/idmforge/idmd/internal/fsutil"
)

// StateStore records small (module, key) → value facts about the
// pre-installation system, such as the original hostname or which
// authentication profile was active. Values survive process restarts:
// every mutation is persisted before it returns.
type StateStore struct {
	path   string
	logger *slog.Logger
	state  map[string]map[string]string
}

// NewStateStore opens (or creates) a state store persisted at path.
func NewStateStore(path string, logger *slog.Logger) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sysrestore: create state dir: %w", err)
	}

	s := &StateStore{
		path:   path,
		logger: logger.With("component", "sysrestore"),
		state:  make(map[string]map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sysrestore: read state file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("sysrestore: parse state file: %w", err)
	}
	return s, nil
}

// BackupState records value under (module, key).
func (s *StateStore) BackupState(module, key, value string) error {
	if s.state[module] == nil {
		s.state[module] = make(map[string]string)
	}
	s.state[module][key] = value
	if err := s.save(); err != nil {
		return err
	}
	s.logger.Debug("state recorded", "module", module, "key", key)
	return nil
}

// RestoreState returns the value under (module, key) and removes it.
// The second return is false if no value was recorded.
func (s *StateStore) RestoreState(module, key string) (string, bool, error) {
	value, ok := s.state[module][key]
	if !ok {
		return "", false, nil
	}
	delete(s.state[module], key)
	if len(s.state[module]) == 0 {
		delete(s.state, module)
	}
	if err := s.save(); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetState returns the value under (module, key) without removing it.
func (s *StateStore) GetState(module, key string) (string, bool) {
	value, ok := s.state[module][key]
	return value, ok
}

// ModuleState returns a copy of all (key, value) pairs recorded for module.
func (s *StateStore) ModuleState(module string) map[string]string {
	out := make(map[string]string, len(s.state[module]))
	for k, v := range s.state[module] {
		out[k] = v
	}
	return out
}

// HasModule reports whether any state is recorded for module.
func (s *StateStore) HasModule(module string) bool {
	return len(s.state[module]) > 0
}

func (s *StateStore) save() error {
	data, err := yaml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("sysrestore: encode state: %w", err)
	}
	dir, name := filepath.Split(s.path)
	if err := fsutil.WriteFileAtomic(filepath.Clean(dir), name, data, 0o600); err != nil {
		return fmt.Errorf("sysrestore: write state file: %w", err)
	}
	return nil
}
