package sim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"hvboard/core"
)

// FileConfigStore keeps the board configuration in a YAML file, standing in
// for the EEPROM of the real board.
type FileConfigStore struct {
	Path string

	mu sync.Mutex
}

// Load reads the file. A missing file yields the factory configuration;
// fields absent from the file keep their factory values.
func (s *FileConfigStore) Load() (core.BoardConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := core.DefaultConfig()
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return core.DefaultConfig(), fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return cfg, nil
}

// Save replaces the file atomically.
func (s *FileConfigStore) Save(cfg core.BoardConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".hvboard-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
