package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pingsantohq/monitord/internal/monitorset"
	"github.com/pingsantohq/monitord/pkg/types"
)

const (
	fileSuffix = "_monitors.json"
	// day_month_year_hour-minute with a non-padded 12-hour clock and lowercase am/pm.
	fileLayout = "02_01_2006_3-04pm"
)

// FileName returns the snapshot file name for t rendered in local time, e.g.
// 17_10_2026_3-04pm_monitors.json.
func FileName(t time.Time) string {
	return t.Local().Format(fileLayout) + fileSuffix
}

// Encode renders the set in the snapshot file format.
func Encode(data types.MonitorData) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

type Persister struct {
	set    *monitorset.Set
	dir    string
	encode func(types.MonitorData) ([]byte, error)
}

type Option func(*Persister)

// WithEncoder replaces the snapshot encoder.
func WithEncoder(fn func(types.MonitorData) ([]byte, error)) Option {
	return func(p *Persister) {
		if fn != nil {
			p.encode = fn
		}
	}
}

func New(set *monitorset.Set, dir string, opts ...Option) (*Persister, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure output dir %q: %w", dir, err)
	}
	p := &Persister{
		set:    set,
		dir:    dir,
		encode: Encode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Persister) Dir() string {
	return p.dir
}

// Persist serializes the set under the shared lock and writes it to a new
// snapshot file named after now. The write happens outside the lock.
func (p *Persister) Persist(ctx context.Context, now time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var payload []byte
	err := p.set.View(func(data types.MonitorData) error {
		var err error
		payload, err = p.encode(data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	path := filepath.Join(p.dir, FileName(now))
	if err := writeAtomic(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create temp snapshot %q: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp snapshot %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp snapshot %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp snapshot %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit snapshot %q: %w", path, err)
	}
	return nil
}
