package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateAndLoadState(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshots")

	state := State{
		RunID:           "0192b5a4-7c1e-7b8a-9f00-1234567890ab",
		MonitorFile:     "/etc/monitord/monitors.json",
		Monitors:        3,
		StartedAt:       time.Unix(1730000000, 0).UTC(),
		StoppedAt:       time.Unix(1730000300, 0).UTC(),
		RefreshCycles:   11,
		PersistCycles:   6,
		PersistFailures: 1,
		Skipped:         map[string]uint64{"persist": 2},
		LastSnapshot: SnapshotState{
			Path:     "/var/lib/monitord/27_10_2024_3-38am_monitors.json",
			StoredAt: time.Unix(1730000280, 0).UTC(),
		},
		LastError: "commit snapshot: disk full",
	}

	if err := UpdateState(ctx, dir, state); err != nil {
		t.Fatalf("UpdateState returned error: %v", err)
	}

	info, err := os.Stat(StatePath(dir))
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o640 {
		t.Fatalf("unexpected perms: %v", perm)
	}

	loaded, err := LoadState(ctx, dir)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}

	if loaded.RunID != state.RunID || loaded.Monitors != 3 {
		t.Fatalf("unexpected run identity: %+v", loaded)
	}
	if !loaded.StartedAt.Equal(state.StartedAt) || !loaded.StoppedAt.Equal(state.StoppedAt) {
		t.Fatalf("unexpected run times: %+v", loaded)
	}
	if loaded.RefreshCycles != 11 || loaded.PersistCycles != 6 || loaded.PersistFailures != 1 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.Skipped["persist"] != 2 {
		t.Fatalf("unexpected skipped: %+v", loaded.Skipped)
	}
	if loaded.LastSnapshot.Path != state.LastSnapshot.Path || !loaded.LastSnapshot.StoredAt.Equal(state.LastSnapshot.StoredAt) {
		t.Fatalf("unexpected last snapshot: %+v", loaded.LastSnapshot)
	}
}

func TestUpdateStateOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := UpdateState(ctx, dir, State{RunID: "first"}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if err := UpdateState(ctx, dir, State{RunID: "second"}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	loaded, err := LoadState(ctx, dir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.RunID != "second" {
		t.Fatalf("expected second run, got %q", loaded.RunID)
	}
	if _, err := os.Stat(StatePath(dir) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp state file left behind: %v", err)
	}
}

func TestStatePath(t *testing.T) {
	dir := "/var/lib/monitord"
	expected := filepath.Join(dir, StateFileName)
	if got := StatePath(dir); got != expected {
		t.Fatalf("expected %q got %q", expected, got)
	}
}
