package refresh

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pingsantohq/monitord/internal/monitorset"
	"github.com/pingsantohq/monitord/pkg/types"
)

// RandomValue draws a uniformly distributed signed 32-bit value.
func RandomValue() int32 {
	return int32(rand.Uint32())
}

type Refresher struct {
	set   *monitorset.Set
	value func() int32
}

type Option func(*Refresher)

func WithValueSource(fn func() int32) Option {
	return func(r *Refresher) {
		if fn != nil {
			r.value = fn
		}
	}
}

func New(set *monitorset.Set, opts ...Option) *Refresher {
	r := &Refresher{
		set:   set,
		value: RandomValue,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh overwrites the result of every monitor within one critical section
// and returns the number of monitors updated. processed_at never moves
// backwards for a monitor, even if now does.
func (r *Refresher) Refresh(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ts := now.Unix()
	var updated int
	r.set.Update(func(data *types.MonitorData) {
		for i := range data.Monitors {
			mon := &data.Monitors[i]
			processedAt := ts
			if mon.Result != nil && mon.Result.ProcessedAt > processedAt {
				processedAt = mon.Result.ProcessedAt
			}
			mon.Result = &types.Result{
				Value:       r.value(),
				ProcessedAt: processedAt,
			}
		}
		updated = len(data.Monitors)
	})
	return updated, nil
}
