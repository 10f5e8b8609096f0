package monitorset

import (
	"sync"
	"testing"

	"github.com/pingsantohq/monitord/pkg/types"
)

func TestSnapshotIsIsolated(t *testing.T) {
	set := New(types.MonitorData{Monitors: []types.Monitor{{Name: "a", Code: "A"}}})

	snap := set.Snapshot()
	snap.Monitors[0].Name = "mutated"

	if got := set.Snapshot().Monitors[0].Name; got != "a" {
		t.Fatalf("snapshot shares state with set, name=%s", got)
	}
	if set.Len() != 1 {
		t.Fatalf("expected len 1 got %d", set.Len())
	}
}

func TestViewNeverObservesPartialUpdate(t *testing.T) {
	monitors := make([]types.Monitor, 64)
	for i := range monitors {
		monitors[i] = types.Monitor{Name: "m", Code: "c", Result: &types.Result{Value: 0, ProcessedAt: 0}}
	}
	set := New(types.MonitorData{Monitors: monitors})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for cycle := int64(1); cycle <= 200; cycle++ {
			set.Update(func(d *types.MonitorData) {
				for i := range d.Monitors {
					d.Monitors[i].Result = &types.Result{Value: int32(cycle), ProcessedAt: cycle}
				}
			})
		}
	}()

	for i := 0; i < 200; i++ {
		_ = set.View(func(d types.MonitorData) error {
			want := d.Monitors[0].Result.ProcessedAt
			for _, mon := range d.Monitors {
				if mon.Result.ProcessedAt != want {
					t.Errorf("mixed snapshot: %d vs %d", mon.Result.ProcessedAt, want)
					return nil
				}
			}
			return nil
		})
	}
	wg.Wait()
}
