package worker

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one cycle of a task.
type Handler func(ctx context.Context, job Job) error

type Pool struct {
	jobs        <-chan Job
	workerCount int
	handlers    map[string]Handler
	onDone      func(Job, error)
}

type PoolOption func(*Pool)

func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

func WithHandler(task string, fn Handler) PoolOption {
	return func(p *Pool) {
		if fn != nil {
			p.handlers[task] = fn
		}
	}
}

// WithCompletion registers fn to be called after every job, with the error
// returned by its handler.
func WithCompletion(fn func(Job, error)) PoolOption {
	return func(p *Pool) {
		if fn != nil {
			p.onDone = fn
		}
	}
}

func NewPool(jobs <-chan Job, opts ...PoolOption) *Pool {
	p := &Pool{
		jobs:        jobs,
		workerCount: 2,
		handlers:    make(map[string]Handler),
		onDone:      func(Job, error) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

func (p *Pool) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx)
		}()
	}
	return &wg
}

func (p *Pool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.handleJob(ctx, job)
		}
	}
}

func (p *Pool) handleJob(ctx context.Context, job Job) {
	handler, ok := p.handlers[job.Task]
	if !ok {
		p.onDone(job, fmt.Errorf("no handler for task %q", job.Task))
		return
	}
	p.onDone(job, handler(ctx, job))
}
