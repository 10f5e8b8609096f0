// Package supervisor runs the refresh and persist tasks against one shared
// monitor set for a bounded lifetime.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/monitord/internal/events"
	"github.com/pingsantohq/monitord/internal/metrics"
	"github.com/pingsantohq/monitord/internal/monitorset"
	"github.com/pingsantohq/monitord/internal/persist"
	"github.com/pingsantohq/monitord/internal/refresh"
	"github.com/pingsantohq/monitord/internal/scheduler"
	"github.com/pingsantohq/monitord/internal/worker"
	"github.com/pingsantohq/monitord/pkg/types"
)

const (
	TaskRefresh = "refresh"
	TaskPersist = "persist"
)

var ErrAlreadyStarted = errors.New("supervisor already started")

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TaskError reports a failed cycle. The task itself keeps running.
type TaskError struct {
	Task string
	At   time.Time
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s cycle at %s: %v", e.Task, e.At.Format(time.RFC3339), e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

type Option func(*config)

type config struct {
	refreshInterval time.Duration
	persistInterval time.Duration
	lifetime        time.Duration
	pollInterval    time.Duration
	tickResolution  time.Duration
	workers         int
	errBuffer       int
	finalSnapshot   bool
	now             func() time.Time
	valueSource     func() int32
	recorder        events.Recorder
	metricsStore    *metrics.Store
	logger          *log.Logger
}

func WithRefreshInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.refreshInterval = d
		}
	}
}

func WithPersistInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.persistInterval = d
		}
	}
}

func WithLifetime(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.lifetime = d
		}
	}
}

// WithPollInterval sets how often elapsed time is compared to the lifetime.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithTickResolution(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.tickResolution = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithErrorBuffer sets the capacity of the Errors channel.
func WithErrorBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.errBuffer = n
		}
	}
}

// WithFinalSnapshot controls whether one more snapshot is written after the
// tasks have stopped.
func WithFinalSnapshot(enabled bool) Option {
	return func(c *config) {
		c.finalSnapshot = enabled
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func WithValueSource(fn func() int32) Option {
	return func(c *config) {
		if fn != nil {
			c.valueSource = fn
		}
	}
}

func WithRecorder(rec events.Recorder) Option {
	return func(c *config) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

func WithMetricsStore(store *metrics.Store) Option {
	return func(c *config) {
		if store != nil {
			c.metricsStore = store
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type Supervisor struct {
	cfg       config
	runID     string
	set       *monitorset.Set
	refresher *refresh.Refresher
	persister *persist.Persister
	scheduler *scheduler.Scheduler
	pool      *worker.Pool
	metrics   *metrics.Store
	errs      chan *TaskError
	state     atomic.Int32

	mu        sync.Mutex
	startedAt time.Time
	stoppedAt time.Time
}

// Report summarises a run.
type Report struct {
	RunID     string
	Monitors  int
	StartedAt time.Time
	StoppedAt time.Time
	Metrics   metrics.Snapshot
}

func New(set *monitorset.Set, persister *persist.Persister, opts ...Option) *Supervisor {
	cfg := config{
		refreshInterval: 30 * time.Second,
		persistInterval: 60 * time.Second,
		lifetime:        5 * time.Minute,
		pollInterval:    time.Second,
		tickResolution:  100 * time.Millisecond,
		workers:         2,
		errBuffer:       16,
		finalSnapshot:   true,
		now:             time.Now,
		valueSource:     refresh.RandomValue,
		recorder:        events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.metricsStore == nil {
		cfg.metricsStore = metrics.NewStore()
	}
	if cfg.logger == nil {
		cfg.logger = log.New(io.Discard, "", 0)
	}

	s := &Supervisor{
		cfg:       cfg,
		runID:     uuid.Must(uuid.NewV7()).String(),
		set:       set,
		refresher: refresh.New(set, refresh.WithValueSource(cfg.valueSource)),
		persister: persister,
		metrics:   cfg.metricsStore,
		errs:      make(chan *TaskError, cfg.errBuffer),
	}

	jobs := make(chan worker.Job, cfg.workers)
	s.scheduler = scheduler.New(jobs,
		scheduler.WithNow(cfg.now),
		scheduler.WithTickResolution(cfg.tickResolution),
		scheduler.WithSkipHook(s.onSkip),
	)
	s.pool = worker.NewPool(jobs,
		worker.WithWorkerCount(cfg.workers),
		worker.WithHandler(TaskRefresh, s.handleRefresh),
		worker.WithHandler(TaskPersist, s.handlePersist),
		worker.WithCompletion(s.onJobDone),
	)
	return s
}

func (s *Supervisor) RunID() string {
	return s.runID
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Errors returns the channel on which failed cycles are published. It is
// closed once the supervisor has stopped. Errors are dropped when the buffer
// is full.
func (s *Supervisor) Errors() <-chan *TaskError {
	return s.errs
}

func (s *Supervisor) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Report{
		RunID:     s.runID,
		Monitors:  s.set.Len(),
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		Metrics:   s.metrics.Snapshot(),
	}
}

// Run starts both tasks, waits for the lifetime to elapse or ctx to be
// cancelled, then stops and joins them. It returns once the supervisor is
// stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	start := s.cfg.now()
	s.mu.Lock()
	s.startedAt = start
	s.mu.Unlock()

	s.cfg.logger.Printf("monitor tasks starting (run=%s, monitors=%d, refresh=%s, persist=%s, lifetime=%s)",
		s.runID, s.set.Len(), s.cfg.refreshInterval, s.cfg.persistInterval, s.cfg.lifetime)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.scheduler.Update([]scheduler.TaskSpec{
		{Name: TaskRefresh, Interval: s.cfg.refreshInterval, Immediate: true},
		{Name: TaskPersist, Interval: s.cfg.persistInterval, Immediate: true},
	})

	grp, groupCtx := errgroup.WithContext(runCtx)
	workers := s.pool.Start(groupCtx)

	grp.Go(func() error {
		workers.Wait()
		return nil
	})
	grp.Go(func() error {
		s.scheduler.Start(groupCtx)
		return nil
	})
	grp.Go(func() error {
		defer cancel()
		s.watchLifetime(groupCtx, start)
		s.state.Store(int32(StateStopping))
		return nil
	})

	err := grp.Wait()

	if s.cfg.finalSnapshot {
		at := s.cfg.now()
		if perr := s.persistCycle(context.WithoutCancel(ctx), at); perr != nil {
			s.publish(&TaskError{Task: TaskPersist, At: at, Err: perr})
		}
	}

	stopped := s.cfg.now()
	s.mu.Lock()
	s.stoppedAt = stopped
	s.mu.Unlock()
	s.state.Store(int32(StateStopped))
	close(s.errs)

	s.record(types.Event{Type: types.EventStopped, Timestamp: stopped})
	return err
}

func (s *Supervisor) watchLifetime(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(s.cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.cfg.now()
			if now.Sub(start) >= s.cfg.lifetime {
				s.record(types.Event{
					Type:      types.EventLifetimeElapsed,
					Timestamp: now,
					Details:   map[string]any{"lifetime": s.cfg.lifetime},
				})
				return
			}
		}
	}
}

func (s *Supervisor) handleRefresh(ctx context.Context, job worker.Job) error {
	n, err := s.refresher.Refresh(ctx, job.FiredAt)
	if ctx.Err() != nil && isShutdown(err) {
		return err
	}
	s.metrics.ObserveRefresh(job.FiredAt, err)

	details := map[string]any{"monitors": n}
	if err != nil {
		details["error"] = err
	}
	s.record(types.Event{
		Type:      types.EventRefreshCompleted,
		Timestamp: job.FiredAt,
		Task:      TaskRefresh,
		Details:   details,
	})
	return err
}

// handlePersist names the snapshot after the slot the cycle was scheduled
// for, not the tick that delivered it, so cycles one period apart never share
// a file name.
func (s *Supervisor) handlePersist(ctx context.Context, job worker.Job) error {
	return s.persistCycle(ctx, job.ScheduledFor)
}

func (s *Supervisor) persistCycle(ctx context.Context, at time.Time) error {
	path, err := s.persister.Persist(ctx, at)
	if ctx.Err() != nil && isShutdown(err) {
		return err
	}
	s.metrics.ObservePersist(at, path, err)
	if err != nil {
		s.record(types.Event{
			Type:      types.EventSnapshotFailed,
			Timestamp: at,
			Task:      TaskPersist,
			Details:   map[string]any{"error": err},
		})
		return err
	}
	s.record(types.Event{
		Type:      types.EventSnapshotStored,
		Timestamp: at,
		Task:      TaskPersist,
		Details:   map[string]any{"path": path},
	})
	return nil
}

func (s *Supervisor) onJobDone(job worker.Job, err error) {
	s.scheduler.Complete(job.Task)
	if err == nil || isShutdown(err) {
		return
	}
	s.publish(&TaskError{Task: job.Task, At: job.FiredAt, Err: err})
}

// onSkip runs with the scheduler lock held.
func (s *Supervisor) onSkip(task string, at time.Time) {
	s.metrics.IncSkipped(task)
	s.record(types.Event{Type: types.EventCycleSkipped, Timestamp: at, Task: task})
}

func (s *Supervisor) publish(taskErr *TaskError) {
	select {
	case s.errs <- taskErr:
	default:
		s.metrics.IncErrorsDropped()
	}
}

func (s *Supervisor) record(event types.Event) {
	event.RunID = s.runID
	s.cfg.recorder.Record(event)
}

// isShutdown reports whether err comes from the run context ending rather
// than from the cycle itself.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
