package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CheckOutcome classifies a single pass of the refresh loop.
type CheckOutcome int

const (
	// OutcomeValid: the session checked out (or was re-minted) successfully.
	OutcomeValid CheckOutcome = iota
	// OutcomeSkippedInFlight: another check was already running; treated as
	// still-valid.
	OutcomeSkippedInFlight
	// OutcomeThrottled: the last success was too recent; treated as valid.
	OutcomeThrottled
	// OutcomeFailed: the check failed but the session is not yet declared
	// expired; the next trigger retries.
	OutcomeFailed
	// OutcomeExpired: consecutive failures crossed the limit and OnExpired
	// was invoked.
	OutcomeExpired
)

// RefresherConfig tunes the background session keep-alive loop.
type RefresherConfig struct {
	// Interval between periodic checks. Default 2m.
	Interval time.Duration
	// MinInterval throttles bursts: a check beginning within MinInterval of
	// the last successful one short-circuits as valid. Default 30s.
	MinInterval time.Duration
	// InitialDelay postpones the very first check so a session freshly
	// minted by an OAuth callback is not immediately re-validated. Default 5s.
	InitialDelay time.Duration
	// MaxConsecutiveFailures before OnExpired fires. Default 2: a single
	// failed check is absorbed as a transient race, not a dead session.
	MaxConsecutiveFailures int

	// Check validates (and if necessary refreshes) the current session.
	// A nil error means the session is alive.
	Check func(ctx context.Context) error
	// OnRefreshed runs after every successful check. Optional.
	OnRefreshed func()
	// OnExpired runs once when consecutive failures cross the limit. Optional.
	OnExpired func(err error)

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func (c RefresherConfig) withDefaults() RefresherConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = 2 * time.Minute
	}
	if out.MinInterval <= 0 {
		out.MinInterval = 30 * time.Second
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = 5 * time.Second
	}
	if out.MaxConsecutiveFailures <= 0 {
		out.MaxConsecutiveFailures = 2
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}

// Refresher keeps a session alive from the background: a periodic ticker
// plus Wake (the focus/visibility analog) and CheckNow (the manual path)
// all funnel into one deduplicated check.
//
// Ordering guarantees:
//   - at most one check is in flight system-wide, however many triggers fire;
//   - no two checks begin within MinInterval of the last success, even after
//     the in-flight one has completed.
type Refresher struct {
	cfg RefresherConfig

	inFlight atomic.Bool

	mu          sync.Mutex
	lastSuccess time.Time
	failures    int
	expired     bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

func NewRefresher(cfg RefresherConfig) *Refresher {
	cfg = cfg.withDefaults()
	return &Refresher{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run(ctx)
}

// Stop synchronously tears the loop down: the pending initial-delay timer,
// the ticker, and the goroutine are all released before Stop returns.
// Safe to call more than once, and before Start.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started.Load() {
		<-r.done
	}
}

// Wake requests a check outside the periodic schedule (the equivalent of a
// window regaining focus or visibility). Never blocks; coalesces bursts.
func (r *Refresher) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// CheckNow runs one deduplicated check on the caller's goroutine.
func (r *Refresher) CheckNow(ctx context.Context) CheckOutcome {
	return r.checkAndRefresh(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	delay := time.NewTimer(r.cfg.InitialDelay)
	select {
	case <-delay.C:
		r.checkAndRefresh(ctx)
	case <-r.stop:
		delay.Stop()
		return
	case <-ctx.Done():
		delay.Stop()
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.checkAndRefresh(ctx)
		case <-r.wake:
			r.checkAndRefresh(ctx)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) checkAndRefresh(ctx context.Context) CheckOutcome {
	// Dedup guard: one check in flight system-wide.
	if !r.inFlight.CompareAndSwap(false, true) {
		return OutcomeSkippedInFlight
	}
	defer r.inFlight.Store(false)

	r.mu.Lock()
	if r.expired {
		r.mu.Unlock()
		return OutcomeExpired
	}
	// Throttle guard: near-simultaneous wake+timer triggers must not flood
	// the identity endpoint right after a success.
	if !r.lastSuccess.IsZero() && r.cfg.Clock().Sub(r.lastSuccess) < r.cfg.MinInterval {
		r.mu.Unlock()
		return OutcomeThrottled
	}
	r.mu.Unlock()

	err := r.cfg.Check(ctx)

	r.mu.Lock()
	if err != nil {
		r.failures++
		// Two-strike rule: a single failure is usually a refresh mid-flight
		// elsewhere or a redirect race, not a dead session.
		if r.failures >= r.cfg.MaxConsecutiveFailures {
			r.expired = true
			onExpired := r.cfg.OnExpired
			r.mu.Unlock()
			if onExpired != nil {
				onExpired(err)
			}
			return OutcomeExpired
		}
		r.mu.Unlock()
		return OutcomeFailed
	}

	r.failures = 0
	r.lastSuccess = r.cfg.Clock()
	onRefreshed := r.cfg.OnRefreshed
	r.mu.Unlock()
	if onRefreshed != nil {
		onRefreshed()
	}
	return OutcomeValid
}
