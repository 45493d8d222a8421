package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/auth"
)

// RefreshState represents the current state of the session refresher.
type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRunning
	RefreshError
)

func (s RefreshState) String() string {
	switch s {
	case RefreshRunning:
		return "refreshing"
	case RefreshError:
		return "error"
	}
	return "idle"
}

// RefreshStatus is a snapshot of the refresher.
type RefreshStatus struct {
	State       RefreshState
	Running     bool
	LastRefresh time.Time
	NextRefresh time.Time
	Error       error
}

// Target is the session holder kept fresh by a Refresher.
type Target interface {
	Session() *auth.Session
	Refresh(ctx context.Context) error
}

const (
	// refreshTimeout is the maximum time allowed for a single refresh.
	refreshTimeout = 30 * time.Second

	defaultMargin     = 2 * time.Minute
	defaultIdle       = time.Minute
	defaultErrorDelay = 30 * time.Second
)

// Refresher refreshes the session in the background shortly before the
// access token expires.
type Refresher struct {
	target Target
	clock  clock.Clock
	logger *zap.Logger

	margin     time.Duration
	idle       time.Duration
	errorDelay time.Duration

	mu      gosync.Mutex
	status  RefreshStatus
	cancel  context.CancelFunc
	doneCh  chan struct{}
	running bool
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(r *Refresher) { r.clock = c }
}

// WithMargin sets how long before expiry the session is refreshed.
func WithMargin(d time.Duration) Option {
	return func(r *Refresher) { r.margin = d }
}

// WithIdleInterval sets how often to look for a session while signed out.
func WithIdleInterval(d time.Duration) Option {
	return func(r *Refresher) { r.idle = d }
}

// WithErrorDelay sets the minimum wait after a failed refresh.
func WithErrorDelay(d time.Duration) Option {
	return func(r *Refresher) { r.errorDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// New creates a Refresher for target.
func New(target Target, opts ...Option) *Refresher {
	r := &Refresher{
		target:     target,
		clock:      clock.WallClock,
		logger:     zap.NewNop(),
		margin:     defaultMargin,
		idle:       defaultIdle,
		errorDelay: defaultErrorDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background goroutine. Starting a running refresher
// does nothing.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.status.Running = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.doneCh = make(chan struct{})

	go r.loop(ctx, r.doneCh)
}

// Stop halts the background goroutine and waits for it to exit. A refresh in
// flight is cancelled.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.doneCh
	r.running = false
	r.status.Running = false
	r.mu.Unlock()

	<-done
}

// Status returns the current status.
func (r *Refresher) Status() RefreshStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Refresher) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		wait := r.nextWait()
		r.mu.Lock()
		r.status.NextRefresh = r.clock.Now().Add(wait)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(wait):
			if r.target.Session() != nil {
				r.refreshOnce(ctx)
			}
		}
	}
}

// nextWait returns how long to sleep before the next refresh.
func (r *Refresher) nextWait() time.Duration {
	sess := r.target.Session()
	if sess == nil || sess.ExpiresAt == 0 {
		return r.idle
	}

	wait := sess.Expiry().Add(-r.margin).Sub(r.clock.Now())
	if wait < 0 {
		wait = 0
	}

	r.mu.Lock()
	failed := r.status.State == RefreshError
	r.mu.Unlock()
	if failed && wait < r.errorDelay {
		wait = r.errorDelay
	}
	return wait
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	r.setStatus(RefreshRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if err := r.target.Refresh(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			r.mu.Lock()
			r.status.State = RefreshIdle
			r.mu.Unlock()
			return
		}
		r.logger.Warn("background session refresh failed", zap.Error(err))
		r.setStatus(RefreshError, err)
		return
	}
	r.setStatus(RefreshIdle, nil)
}

func (r *Refresher) setStatus(state RefreshState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.State = state
	r.status.Error = err
	if state == RefreshIdle && err == nil {
		r.status.LastRefresh = r.clock.Now()
	}
}
