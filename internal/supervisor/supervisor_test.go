package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
)

var errDial = errors.New("dial refused")

// fakeDriver fails Connect failConnects times, then succeeds and parks in
// Run until the context ends or runErr is returned.
type fakeDriver struct {
	mu           sync.Mutex
	failConnects int
	runErr       error
	connectCalls int
	closeCalls   int
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCalls++
	if d.failConnects > 0 {
		d.failConnects--
		return errDial
	}
	return nil
}

func (d *fakeDriver) Run(ctx context.Context) error {
	d.mu.Lock()
	err := d.runErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *fakeDriver) connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectCalls
}

func (d *fakeDriver) closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		BaseDelay:      time.Millisecond,
		MaxDelay:       4 * time.Millisecond,
		MaxAttempts:    maxAttempts,
		ConnectTimeout: 100 * time.Millisecond,
	}
}

func waitForState(t *testing.T, s *Supervisor, want domain.ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status().State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("supervisor never reached state %s, stuck at %s", want, s.Status().State)
}

func TestConnectThenGuard(t *testing.T) {
	b := bus.New(16)
	defer b.Close()
	driver := &fakeDriver{}
	s := New(domain.IntegrationTwitch, driver, b, fastRetry(3))

	assert.ErrorIs(t, s.Guard(), domain.ErrNotConnected)

	s.Start(context.Background())
	waitForState(t, s, domain.StateConnected)
	assert.NoError(t, s.Guard())

	s.Stop()
	assert.Equal(t, domain.StateDisconnected, s.Status().State)
	assert.ErrorIs(t, s.Guard(), domain.ErrNotConnected)
	assert.GreaterOrEqual(t, driver.closes(), 1)
}

func TestStartIsIdempotent(t *testing.T) {
	b := bus.New(16)
	defer b.Close()
	driver := &fakeDriver{}
	s := New(domain.IntegrationDiscord, driver, b, fastRetry(3))
	defer s.Stop()

	s.Start(context.Background())
	s.Start(context.Background())
	waitForState(t, s, domain.StateConnected)

	assert.Equal(t, 1, driver.connects())
}

func TestFailedAfterAttemptCeiling(t *testing.T) {
	b := bus.New(64)
	defer b.Close()
	events := b.Subscribe("test")

	driver := &fakeDriver{failConnects: 100}
	s := New(domain.IntegrationVRChat, driver, b, fastRetry(2))

	s.Start(context.Background())
	waitForState(t, s, domain.StateFailed)
	s.Stop()

	// Initial attempt plus MaxAttempts retries before giving up.
	assert.Equal(t, 3, driver.connects())

	// Reconnecting statuses carry increasing attempt numbers and a
	// populated retry deadline.
	var attempts []int
	for {
		var ev domain.Event
		select {
		case ev = <-events:
		case <-time.After(time.Second):
			t.Fatal("bus drained before Failed was observed")
		}
		cc, ok := ev.(domain.ConnectivityChanged)
		require.True(t, ok)
		if cc.Status.State == domain.StateReconnecting {
			assert.False(t, cc.Status.NextRetryAt.IsZero())
			attempts = append(attempts, cc.Status.Attempt)
		}
		if cc.Status.State == domain.StateFailed {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestFailedRequiresReset(t *testing.T) {
	b := bus.New(64)
	defer b.Close()

	driver := &fakeDriver{failConnects: 3}
	s := New(domain.IntegrationTwitch, driver, b, fastRetry(2))

	s.Start(context.Background())
	waitForState(t, s, domain.StateFailed)

	// No silent retries while Failed.
	calls := driver.connects()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, driver.connects())

	s.Reset(context.Background())
	waitForState(t, s, domain.StateConnected)
	s.Stop()
}

func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	b := bus.New(64)
	defer b.Close()
	events := b.Subscribe("test")

	// Fails twice, connects, Run errors once, then reconnects cleanly. With
	// MaxAttempts 2 this only stays alive if success resets the counter.
	driver := &fakeDriver{failConnects: 2, runErr: errors.New("stream closed")}
	s := New(domain.IntegrationOSC, driver, b, fastRetry(2))

	// The Connected status lasts only as long as the fake driver's Run call,
	// so observe transitions through the bus instead of polling Status().
	waitForEvent := func(want domain.ConnectionState) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev := <-events:
				if cc, ok := ev.(domain.ConnectivityChanged); ok {
					require.NotEqual(t, domain.StateFailed, cc.Status.State)
					if cc.Status.State == want {
						return
					}
				}
			case <-deadline:
				t.Fatalf("never observed state %s", want)
			}
		}
	}

	s.Start(context.Background())
	waitForEvent(domain.StateConnected)
	waitForEvent(domain.StateReconnecting)

	driver.mu.Lock()
	driver.runErr = nil
	driver.mu.Unlock()

	waitForEvent(domain.StateConnected)
	s.Stop()
}

func TestBackoff(t *testing.T) {
	testCases := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "first retry", attempt: 1, expected: time.Second},
		{name: "second retry", attempt: 2, expected: 2 * time.Second},
		{name: "third retry", attempt: 3, expected: 4 * time.Second},
		{name: "fifth retry", attempt: 5, expected: 16 * time.Second},
		{name: "hits ceiling", attempt: 6, expected: 30 * time.Second},
		{name: "stays at ceiling", attempt: 10, expected: 30 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, backoff(time.Second, 30*time.Second, tc.attempt))
		})
	}
}
