package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pingsantohq/monitord/internal/worker"
)

func TestSchedulerTickFiresJobs(t *testing.T) {
	jobCh := make(chan worker.Job, 10)
	current := time.Unix(0, 0).UTC()
	ctx := context.Background()

	s := New(jobCh, WithNow(func() time.Time { return current }))
	s.Update([]TaskSpec{{Name: "refresh", Interval: 50 * time.Millisecond}})

	current = current.Add(40 * time.Millisecond)
	s.tick(ctx, current)

	select {
	case <-jobCh:
		t.Fatalf("unexpected job before interval elapsed")
	default:
	}

	current = current.Add(10 * time.Millisecond)
	s.tick(ctx, current)

	select {
	case job := <-jobCh:
		if job.Task != "refresh" {
			t.Fatalf("expected task refresh got %s", job.Task)
		}
		if job.ScheduledFor.IsZero() || !job.FiredAt.Equal(current) {
			t.Fatalf("unexpected job times: %+v", job)
		}
	default:
		t.Fatalf("expected job to fire")
	}

	s.Complete("refresh")
	current = current.Add(60 * time.Millisecond)
	s.tick(ctx, current)

	select {
	case <-jobCh:
	default:
		t.Fatalf("expected second job after reschedule")
	}
}

func TestSchedulerImmediateTaskFiresOnFirstTick(t *testing.T) {
	jobCh := make(chan worker.Job, 10)
	current := time.Unix(100, 0)
	s := New(jobCh, WithNow(func() time.Time { return current }))
	s.Update([]TaskSpec{
		{Name: "persist", Interval: time.Minute, Immediate: true},
		{Name: "refresh", Interval: 30 * time.Second},
	})

	s.tick(context.Background(), current)

	if len(jobCh) != 1 {
		t.Fatalf("expected exactly one immediate job, got %d", len(jobCh))
	}
	if job := <-jobCh; job.Task != "persist" {
		t.Fatalf("expected persist job got %s", job.Task)
	}
}

func TestSchedulerSkipsInFlightTask(t *testing.T) {
	jobCh := make(chan worker.Job, 10)
	current := time.Unix(0, 0)
	var skipped []string
	s := New(jobCh,
		WithNow(func() time.Time { return current }),
		WithSkipHook(func(task string, _ time.Time) { skipped = append(skipped, task) }),
	)
	s.Update([]TaskSpec{{Name: "persist", Interval: time.Second, Immediate: true}})

	s.tick(context.Background(), current)
	if len(jobCh) != 1 {
		t.Fatalf("expected first job")
	}

	current = current.Add(time.Second)
	s.tick(context.Background(), current)
	if len(jobCh) != 1 {
		t.Fatalf("expected no dispatch while in flight, queue=%d", len(jobCh))
	}
	if len(skipped) != 1 || skipped[0] != "persist" {
		t.Fatalf("expected one skip for persist, got %v", skipped)
	}

	s.Complete("persist")
	current = current.Add(time.Second)
	s.tick(context.Background(), current)
	if len(jobCh) != 2 {
		t.Fatalf("expected dispatch after completion, queue=%d", len(jobCh))
	}
}

func TestSchedulerSkipsWhenChannelFull(t *testing.T) {
	jobCh := make(chan worker.Job)
	current := time.Unix(0, 0)
	skips := 0
	s := New(jobCh,
		WithNow(func() time.Time { return current }),
		WithSkipHook(func(string, time.Time) { skips++ }),
	)
	s.Update([]TaskSpec{{Name: "refresh", Interval: time.Second, Immediate: true}})

	s.tick(context.Background(), current)
	if skips != 1 {
		t.Fatalf("expected skip on full channel, got %d", skips)
	}

	// A dropped job does not leave the task marked in flight.
	s.mu.Lock()
	inFlight := s.entries["refresh"].inFlight
	s.mu.Unlock()
	if inFlight {
		t.Fatalf("task marked in flight after drop")
	}
}

func TestSchedulerStopsFiringAfterCancel(t *testing.T) {
	jobCh := make(chan worker.Job, 10)
	current := time.Unix(0, 0)
	s := New(jobCh, WithNow(func() time.Time { return current }))
	s.Update([]TaskSpec{{Name: "refresh", Interval: time.Second, Immediate: true}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.tick(ctx, current)
	if len(jobCh) != 0 {
		t.Fatalf("expected no jobs after cancel")
	}
}

func TestSchedulerUpdateReplacesTasks(t *testing.T) {
	jobCh := make(chan worker.Job, 10)
	current := time.Now()
	s := New(jobCh, WithNow(func() time.Time { return current }))

	s.Update([]TaskSpec{{Name: "refresh", Interval: 20 * time.Millisecond}})
	current = current.Add(25 * time.Millisecond)
	s.tick(context.Background(), current)
	if len(jobCh) != 1 || (<-jobCh).Task != "refresh" {
		t.Fatalf("expected job for refresh")
	}

	s.Update([]TaskSpec{{Name: "persist", Interval: 20 * time.Millisecond}})
	current = current.Add(25 * time.Millisecond)
	s.tick(context.Background(), current)

	select {
	case job := <-jobCh:
		if job.Task != "persist" {
			t.Fatalf("expected task persist got %s", job.Task)
		}
	default:
		t.Fatalf("expected job for persist")
	}
}
