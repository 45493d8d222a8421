package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/lepinet/internal/auth"
)

var start = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

type fakeTarget struct {
	mu        gosync.Mutex
	clock     *testclock.Clock
	session   *auth.Session
	refreshes int
	err       error
	refreshed chan struct{}
}

func (f *fakeTarget) Session() *auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeTarget) Refresh(context.Context) error {
	f.mu.Lock()
	f.refreshes++
	err := f.err
	if err == nil {
		f.session = &auth.Session{
			AccessToken: "fresh",
			ExpiresAt:   f.clock.Now().Add(10 * time.Minute).Unix(),
		}
	}
	f.mu.Unlock()

	f.refreshed <- struct{}{}
	return err
}

func newTarget(clk *testclock.Clock) *fakeTarget {
	return &fakeTarget{
		clock:     clk,
		session:   &auth.Session{AccessToken: "stale", ExpiresAt: start.Add(10 * time.Minute).Unix()},
		refreshed: make(chan struct{}, 4),
	}
}

func waitRefreshed(t *testing.T, f *fakeTarget) {
	t.Helper()
	select {
	case <-f.refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not happen")
	}
}

func TestRefresherRefreshesBeforeExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	target := newTarget(clk)
	r := New(target, WithClock(clk), WithMargin(time.Minute))

	r.Start()
	r.Start()
	defer r.Stop()

	require.NoError(t, clk.WaitAdvance(9*time.Minute, 5*time.Second, 1))
	waitRefreshed(t, target)

	assert.Eventually(t, func() bool {
		return r.Status().LastRefresh.Equal(start.Add(9 * time.Minute))
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "fresh", target.Session().AccessToken)
	assert.True(t, r.Status().Running)
}

func TestRefresherReportsErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	target := newTarget(clk)
	target.err = errors.New("network down")
	r := New(target, WithClock(clk), WithMargin(time.Minute), WithErrorDelay(time.Minute))

	r.Start()
	require.NoError(t, clk.WaitAdvance(9*time.Minute, 5*time.Second, 1))
	waitRefreshed(t, target)

	assert.Eventually(t, func() bool {
		return r.Status().State == RefreshError
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualError(t, r.Status().Error, "network down")

	// The next attempt waits for the error delay rather than spinning.
	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	waitRefreshed(t, target)

	r.Stop()
	assert.False(t, r.Status().Running)
	target.mu.Lock()
	assert.Equal(t, 2, target.refreshes)
	target.mu.Unlock()
}

func TestRefresherIdleWhileSignedOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	target := newTarget(clk)
	target.session = nil
	r := New(target, WithClock(clk), WithIdleInterval(time.Minute))

	r.Start()
	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	// The loop comes back to wait again without refreshing.
	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	r.Stop()

	target.mu.Lock()
	assert.Zero(t, target.refreshes)
	target.mu.Unlock()
	assert.Equal(t, RefreshIdle, r.Status().State)
}

// blockingTarget hangs in Refresh until its context ends.
type blockingTarget struct {
	session *auth.Session
	entered chan struct{}
}

func (b *blockingTarget) Session() *auth.Session { return b.session }

func (b *blockingTarget) Refresh(ctx context.Context) error {
	close(b.entered)
	<-ctx.Done()
	return ctx.Err()
}

func TestRefresherStopCancelsRefreshInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	target := &blockingTarget{
		session: &auth.Session{AccessToken: "stale", ExpiresAt: start.Add(10 * time.Minute).Unix()},
		entered: make(chan struct{}),
	}
	r := New(target, WithClock(clk), WithMargin(time.Minute))

	r.Start()
	require.NoError(t, clk.WaitAdvance(9*time.Minute, 5*time.Second, 1))
	select {
	case <-target.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not start")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop waited for the refresh timeout")
	}

	assert.Equal(t, RefreshIdle, r.Status().State)
	assert.NoError(t, r.Status().Error)
	assert.True(t, r.Status().LastRefresh.IsZero())
}
