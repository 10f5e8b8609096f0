// Package monitorset holds the authoritative in-memory monitor set shared by
// the refresh and persist tasks.
package monitorset

import (
	"sync"

	"github.com/pingsantohq/monitord/pkg/types"
)

// Set guards a MonitorData value. Every multi-field read or write happens in a
// single critical section, so readers never see a partially refreshed set.
type Set struct {
	mu   sync.RWMutex
	data types.MonitorData
}

// New takes ownership of data; callers must not retain references into it.
func New(data types.MonitorData) *Set {
	return &Set{data: data}
}

// Update runs fn with exclusive access to the set.
func (s *Set) Update(fn func(*types.MonitorData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// View runs fn with shared access to the set. fn must not mutate data or keep
// references into it after returning.
func (s *Set) View(fn func(types.MonitorData) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// Snapshot returns a deep copy of the current set.
func (s *Set) Snapshot() types.MonitorData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Monitors)
}
