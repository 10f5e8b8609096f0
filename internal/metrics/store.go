package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store maintains in-memory counters for refresh and persist cycles.
type Store struct {
	refreshCycles   atomic.Uint64
	refreshFailures atomic.Uint64
	persistCycles   atomic.Uint64
	persistFailures atomic.Uint64
	errorsDropped   atomic.Uint64

	mu             sync.Mutex
	skipped        map[string]uint64
	lastRefreshAt  time.Time
	lastSnapshot   string
	lastSnapshotAt time.Time
	lastError      string
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	return &Store{skipped: make(map[string]uint64)}
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	RefreshCycles   uint64
	RefreshFailures uint64
	PersistCycles   uint64
	PersistFailures uint64
	ErrorsDropped   uint64
	Skipped         map[string]uint64
	LastRefreshAt   time.Time
	LastSnapshot    string
	LastSnapshotAt  time.Time
	LastError       string
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	skipped := make(map[string]uint64, len(s.skipped))
	for task, n := range s.skipped {
		skipped[task] = n
	}
	snap := Snapshot{
		Skipped:        skipped,
		LastRefreshAt:  s.lastRefreshAt,
		LastSnapshot:   s.lastSnapshot,
		LastSnapshotAt: s.lastSnapshotAt,
		LastError:      s.lastError,
	}
	s.mu.Unlock()

	snap.RefreshCycles = s.refreshCycles.Load()
	snap.RefreshFailures = s.refreshFailures.Load()
	snap.PersistCycles = s.persistCycles.Load()
	snap.PersistFailures = s.persistFailures.Load()
	snap.ErrorsDropped = s.errorsDropped.Load()
	return snap
}

func (s *Store) ObserveRefresh(at time.Time, err error) {
	if err != nil {
		s.refreshFailures.Add(1)
		s.setLastError(err)
		return
	}
	s.refreshCycles.Add(1)
	s.mu.Lock()
	s.lastRefreshAt = at
	s.mu.Unlock()
}

func (s *Store) ObservePersist(at time.Time, path string, err error) {
	if err != nil {
		s.persistFailures.Add(1)
		s.setLastError(err)
		return
	}
	s.persistCycles.Add(1)
	s.mu.Lock()
	s.lastSnapshot = path
	s.lastSnapshotAt = at
	s.mu.Unlock()
}

func (s *Store) IncSkipped(task string) {
	s.mu.Lock()
	s.skipped[task]++
	s.mu.Unlock()
}

func (s *Store) IncErrorsDropped() {
	s.errorsDropped.Add(1)
}

func (s *Store) setLastError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}
