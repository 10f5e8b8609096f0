package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const StateFileName = "state.yaml"

// State records the outcome of the last run next to its snapshots.
type State struct {
	RunID           string            `yaml:"run_id"`
	MonitorFile     string            `yaml:"monitor_file"`
	Monitors        int               `yaml:"monitors"`
	StartedAt       time.Time         `yaml:"started_at"`
	StoppedAt       time.Time         `yaml:"stopped_at"`
	RefreshCycles   uint64            `yaml:"refresh_cycles"`
	PersistCycles   uint64            `yaml:"persist_cycles"`
	PersistFailures uint64            `yaml:"persist_failures"`
	Skipped         map[string]uint64 `yaml:"skipped,omitempty"`
	LastSnapshot    SnapshotState     `yaml:"last_snapshot"`
	LastError       string            `yaml:"last_error,omitempty"`
}

type SnapshotState struct {
	Path     string    `yaml:"path"`
	StoredAt time.Time `yaml:"stored_at"`
}

func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

func LoadState(ctx context.Context, dir string) (State, error) {
	var state State
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("read state file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file %q: %w", path, err)
	}

	return state, nil
}

// UpdateState replaces the state file in dir.
func UpdateState(ctx context.Context, dir string, state State) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", dir, err)
	}

	path := StatePath(dir)
	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write temp state file %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit state file %q: %w", path, err)
	}

	return nil
}
