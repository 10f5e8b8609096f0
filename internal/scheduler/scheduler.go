package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pingsantohq/monitord/internal/worker"
)

const defaultInterval = 30 * time.Second

// TaskSpec describes a periodic task. Immediate tasks fire on the first tick
// instead of one interval after Update.
type TaskSpec struct {
	Name      string
	Interval  time.Duration
	Immediate bool
}

type Scheduler struct {
	jobCh          chan<- worker.Job
	tickResolution time.Duration

	now    func() time.Time
	onSkip func(task string, at time.Time)

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	spec     TaskSpec
	next     time.Time
	inFlight bool
}

type Option func(*Scheduler)

func WithTickResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickResolution = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSkipHook registers fn to be called when a due cycle is not dispatched
// because the previous one is still running or the job channel is full.
func WithSkipHook(fn func(task string, at time.Time)) Option {
	return func(s *Scheduler) {
		s.onSkip = fn
	}
}

func New(jobCh chan<- worker.Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobCh:          jobCh,
		tickResolution: 100 * time.Millisecond,
		now:            time.Now,
		entries:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Update(specs []TaskSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	nextEntries := make(map[string]*entry, len(specs))
	for _, spec := range specs {
		if spec.Interval <= 0 {
			spec.Interval = defaultInterval
		}
		next := now.Add(spec.Interval)
		if spec.Immediate {
			next = now
		}
		e := &entry{spec: spec, next: next}
		if prev, ok := s.entries[spec.Name]; ok {
			e.inFlight = prev.inFlight
		}
		nextEntries[spec.Name] = e
	}
	s.entries = nextEntries
}

// Complete marks the in-flight job of task as finished so the next due cycle
// can be dispatched.
func (s *Scheduler) Complete(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[task]; ok {
		e.inFlight = false
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickResolution)
	defer ticker.Stop()

	s.tick(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		dispatched := false
		if !e.inFlight {
			job := worker.Job{
				Task:         e.spec.Name,
				ScheduledFor: e.next,
				FiredAt:      now,
			}
			select {
			case s.jobCh <- job:
				e.inFlight = true
				dispatched = true
			default:
			}
		}
		if !dispatched && s.onSkip != nil {
			s.onSkip(e.spec.Name, now)
		}
		for !now.Before(e.next) {
			e.next = e.next.Add(e.spec.Interval)
		}
	}
}
