package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/backoffice-console/internal/events"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func startReconciler(t *testing.T, r *Reconciler) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, r.Stop())
		require.NoError(t, <-errCh)
	})
}

func TestNextInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		jitter   time.Duration
		min, max time.Duration
	}{
		{name: "no jitter", interval: time.Minute, min: time.Minute, max: time.Minute},
		{name: "jitter bounds", interval: time.Minute, jitter: 10 * time.Second, min: 50 * time.Second, max: 70 * time.Second},
		{name: "jitter larger than interval stays positive", interval: time.Second, jitter: time.Minute, min: time.Nanosecond, max: time.Minute + time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New("menus", &countingRefresher{}, WithInterval(tt.interval), WithJitter(tt.jitter))
			for range 50 {
				d := r.nextInterval()
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}

func TestReconciler_StopBeforeStart(t *testing.T) {
	t.Parallel()

	r := New("menus", &countingRefresher{})
	assert.NoError(t, r.Stop())
}

func TestReconciler_CoalescesBurst(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{}
	r := New("menus", refresher, WithDebounce(50*time.Millisecond))
	startReconciler(t, r)

	for range 5 {
		r.Schedule("menuCreated")
	}

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, 1, r.Refreshes())
}

func TestReconciler_ScheduleBeforeStart(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{}
	r := New("roles", refresher, WithDebounce(0))
	r.Schedule("roleCreated")
	startReconciler(t, r)

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_FailureKeepsLoopRunning(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{err: errors.New("backend down")}
	r := New("taxes", refresher, WithDebounce(0))
	startReconciler(t, r)

	r.Schedule("manual")
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	r.Schedule("manual")
	require.Eventually(t, func() bool { return refresher.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_PeriodicRefresh(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{}
	r := New("products", refresher, WithInterval(20*time.Millisecond))
	startReconciler(t, r)

	require.Eventually(t, func() bool { return refresher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestReconciler_OnEvent(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{}
	r := New("stores", refresher, WithDebounce(0))
	bus := events.NewLocalBus()
	defer bus.Close()

	unsubscribe, err := bus.Subscribe(events.CreatedTopic("store"), r.OnEvent)
	require.NoError(t, err)
	defer unsubscribe()
	startReconciler(t, r)

	require.NoError(t, bus.Publish(context.Background(), events.NewEvent(events.CreatedTopic("store"), "stores", "7", nil)))
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}
