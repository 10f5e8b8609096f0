package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/monitord/internal/monitorset"
	"github.com/pingsantohq/monitord/pkg/types"
)

func TestRefreshStampsEveryMonitor(t *testing.T) {
	set := monitorset.New(types.MonitorData{Monitors: []types.Monitor{
		{Name: "a", Code: "A"},
		{Name: "b", Code: "B"},
	}})
	r := New(set, WithValueSource(func() int32 { return -7 }))

	now := time.Unix(1730000000, 0)
	n, err := r.Refresh(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	snap := set.Snapshot()
	for _, mon := range snap.Monitors {
		require.NotNil(t, mon.Result)
		require.Equal(t, int32(-7), mon.Result.Value)
		require.Equal(t, now.Unix(), mon.Result.ProcessedAt)
	}
}

func TestRefreshIsMonotonic(t *testing.T) {
	set := monitorset.New(types.MonitorData{Monitors: []types.Monitor{
		{Name: "a", Code: "A", Result: &types.Result{Value: 1, ProcessedAt: 2000}},
		{Name: "b", Code: "B", Result: &types.Result{Value: 1, ProcessedAt: 500}},
		{Name: "c", Code: "C"},
	}})
	before := set.Snapshot()

	r := New(set)
	_, err := r.Refresh(context.Background(), time.Unix(1000, 0))
	require.NoError(t, err)

	after := set.Snapshot()
	for i, mon := range after.Monitors {
		require.NotNil(t, mon.Result)
		if prev := before.Monitors[i].Result; prev != nil {
			require.GreaterOrEqual(t, mon.Result.ProcessedAt, prev.ProcessedAt)
		}
	}
	require.Equal(t, int64(2000), after.Monitors[0].Result.ProcessedAt)
	require.Equal(t, int64(1000), after.Monitors[1].Result.ProcessedAt)
	require.Equal(t, int64(1000), after.Monitors[2].Result.ProcessedAt)
}

func TestRefreshHonoursCancelledContext(t *testing.T) {
	set := monitorset.New(types.MonitorData{Monitors: []types.Monitor{{Name: "a", Code: "A"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(set).Refresh(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, set.Snapshot().Monitors[0].Result)
}
