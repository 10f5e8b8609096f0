package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath = "MONITORD_CONFIG"

	// Snapshot file names have minute granularity.
	minPersistInterval = time.Minute
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Monitors MonitorsConfig `yaml:"monitors"`
	Run      RunConfig      `yaml:"run"`
	Persist  PersistConfig  `yaml:"persist"`
}

type MonitorsConfig struct {
	File             string `yaml:"file"`
	PublicKey        string `yaml:"public_key"`
	RequireSignature bool   `yaml:"require_signature"`
}

type RunConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	PersistInterval time.Duration `yaml:"persist_interval"`
	Lifetime        time.Duration `yaml:"lifetime"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	TickResolution  time.Duration `yaml:"tick_resolution"`
	Workers         int           `yaml:"workers"`
}

type PersistConfig struct {
	OutputDir     string `yaml:"output_dir"`
	FinalSnapshot bool   `yaml:"final_snapshot"`
	// EventsFile, when set, receives one JSON line per lifecycle event.
	// Relative paths are resolved against OutputDir.
	EventsFile string `yaml:"events_file"`
}

// EventsPath returns the resolved events file path, or "" when disabled.
func (p PersistConfig) EventsPath() string {
	if p.EventsFile == "" || filepath.IsAbs(p.EventsFile) {
		return p.EventsFile
	}
	return filepath.Join(p.OutputDir, p.EventsFile)
}

func Default() Config {
	return Config{
		Run: RunConfig{
			RefreshInterval: 30 * time.Second,
			PersistInterval: 60 * time.Second,
			Lifetime:        5 * time.Minute,
			PollInterval:    time.Second,
			TickResolution:  100 * time.Millisecond,
			Workers:         2,
		},
		Persist: PersistConfig{
			OutputDir:     ".",
			FinalSnapshot: true,
		},
	}
}

// Validate checks that the intervals and lifetime are usable together.
func (c Config) Validate() error {
	r := c.Run
	switch {
	case r.RefreshInterval <= 0:
		return fmt.Errorf("%w: run.refresh_interval must be positive", ErrInvalid)
	case r.PersistInterval < minPersistInterval:
		return fmt.Errorf("%w: run.persist_interval must be at least %s", ErrInvalid, minPersistInterval)
	case r.Lifetime < r.PersistInterval:
		return fmt.Errorf("%w: run.lifetime (%s) is shorter than run.persist_interval (%s)", ErrInvalid, r.Lifetime, r.PersistInterval)
	case r.Lifetime < r.RefreshInterval:
		return fmt.Errorf("%w: run.lifetime (%s) is shorter than run.refresh_interval (%s)", ErrInvalid, r.Lifetime, r.RefreshInterval)
	case r.PollInterval <= 0:
		return fmt.Errorf("%w: run.poll_interval must be positive", ErrInvalid)
	case r.TickResolution <= 0:
		return fmt.Errorf("%w: run.tick_resolution must be positive", ErrInvalid)
	case r.Workers <= 0:
		return fmt.Errorf("%w: run.workers must be positive", ErrInvalid)
	case c.Monitors.RequireSignature && c.Monitors.PublicKey == "":
		return fmt.Errorf("%w: monitors.require_signature needs monitors.public_key", ErrInvalid)
	}
	return nil
}

// Load reads path on top of Default and validates the result.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by MONITORD_CONFIG, or returns Default
// when the variable is unset.
func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		return Default(), nil
	}
	return Load(ctx, path)
}
