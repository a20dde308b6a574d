package reconcile

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stacklok/backoffice-console/internal/events"
	"github.com/stacklok/backoffice-console/internal/telemetry"
)

const (
	// DefaultDebounce is the window in which refresh requests are merged
	DefaultDebounce = 200 * time.Millisecond

	// ReasonInterval labels periodic refreshes
	ReasonInterval = "interval"
)

// Refresher performs one fetch of the current page
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reconciler schedules background refreshes for one resource
type Reconciler struct {
	resource  string
	refresher Refresher
	debounce  time.Duration
	interval  time.Duration
	jitter    time.Duration
	metrics   *telemetry.ReconcileMetrics

	requests chan struct{}

	mu       sync.Mutex
	reasons  []string
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	refreshN int
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithDebounce sets the coalescing window. Zero refreshes on every request.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) {
		r.debounce = d
	}
}

// WithInterval enables periodic auto-refresh
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.interval = d
	}
}

// WithJitter sets the maximum random offset applied to the periodic interval
func WithJitter(d time.Duration) Option {
	return func(r *Reconciler) {
		r.jitter = d
	}
}

// WithMetrics records refresh durations
func WithMetrics(m *telemetry.ReconcileMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// New creates a reconciler for resource
func New(resource string, refresher Refresher, opts ...Option) *Reconciler {
	r := &Reconciler{
		resource:  resource,
		refresher: refresher,
		debounce:  DefaultDebounce,
		requests:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule requests a refresh. It never blocks; requests made before Start
// are served once the loop runs.
func (r *Reconciler) Schedule(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()

	select {
	case r.requests <- struct{}{}:
	default:
	}
}

// OnEvent schedules a refresh named after the event topic
func (r *Reconciler) OnEvent(_ context.Context, ev events.Event) {
	r.Schedule(string(ev.Topic))
}

// Refreshes returns how many refreshes have run
func (r *Reconciler) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshN
}

// nextInterval returns the interval with a random offset in [-jitter, +jitter)
func (r *Reconciler) nextInterval() time.Duration {
	if r.jitter <= 0 {
		return r.interval
	}
	//nolint:gosec // G404: non-cryptographic randomness is enough for jitter
	offset := time.Duration(rand.Int64N(int64(2*r.jitter))) - r.jitter
	if d := r.interval + offset; d > 0 {
		return d
	}
	return r.interval
}

// Start runs the loop until ctx is cancelled or Stop is called
func (r *Reconciler) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.started = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		close(r.done)
		slog.Debug("Reconciler stopped", "resource", r.resource)
	}()

	var (
		debounceTimer *time.Timer
		debounceC     <-chan time.Time
		tickC         <-chan time.Time
		ticker        *time.Ticker
	)
	if r.interval > 0 {
		ticker = time.NewTicker(r.nextInterval())
		defer ticker.Stop()
		tickC = ticker.C
		slog.Debug("Reconciler auto-refresh enabled", "resource", r.resource, "interval", r.interval)
	}

	for {
		select {
		case <-r.requests:
			if r.debounce <= 0 {
				r.run(loopCtx)
				continue
			}
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(r.debounce)
				debounceC = debounceTimer.C
			}
		case <-debounceC:
			debounceTimer, debounceC = nil, nil
			r.run(loopCtx)
		case <-tickC:
			r.Schedule(ReasonInterval)
			<-r.requests
			r.run(loopCtx)
			ticker.Reset(r.nextInterval())
		case <-loopCtx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil
		}
	}
}

// Stop cancels the loop and waits for it to exit
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-r.done
	return nil
}

func (r *Reconciler) run(ctx context.Context) {
	r.mu.Lock()
	reasons := r.reasons
	r.reasons = nil
	r.mu.Unlock()
	if len(reasons) == 0 {
		return
	}
	reason := reasons[0]

	start := time.Now()
	err := r.refresher.Refresh(ctx)
	duration := time.Since(start)

	r.mu.Lock()
	r.refreshN++
	r.mu.Unlock()

	r.metrics.RecordRefresh(ctx, r.resource, reason, duration, err == nil)
	if err != nil {
		slog.Warn("Background refresh failed",
			"resource", r.resource,
			"reason", reason,
			"requests", len(reasons),
			"error", err)
		return
	}
	slog.Debug("Background refresh completed",
		"resource", r.resource,
		"reason", reason,
		"requests", len(reasons),
		"duration", duration)
}
