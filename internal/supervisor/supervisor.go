// Package supervisor owns the lifecycle and reconnect policy shared by every
// external integration.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Driver is one integration's protocol-specific connection logic. Connect
// performs a single attempt (dial + handshake); Run pumps the established
// connection until it fails or ctx is cancelled; Close releases the socket.
type Driver interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// RetryConfig is the uniform reconnect policy.
type RetryConfig struct {
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultRetry is the shared reconnect policy: exponential backoff capped
// at 30s, ten attempts, then Failed until explicitly reset.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    10,
		ConnectTimeout: 15 * time.Second,
	}
}

// Supervisor drives one Driver through connect/run/reconnect cycles and
// publishes every status transition immediately.
type Supervisor struct {
	id     domain.IntegrationID
	driver Driver
	bus    *bus.Bus
	retry  RetryConfig

	mu      sync.Mutex
	status  domain.ConnectionStatus
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped supervisor in StateDisconnected.
func New(id domain.IntegrationID, driver Driver, b *bus.Bus, retry RetryConfig) *Supervisor {
	if retry.BaseDelay <= 0 {
		retry = DefaultRetry()
	}
	return &Supervisor{
		id:     id,
		driver: driver,
		bus:    b,
		retry:  retry,
		status: domain.ConnectionStatus{State: domain.StateDisconnected},
	}
}

// ID returns the supervised integration's identifier.
func (s *Supervisor) ID() domain.IntegrationID { return s.id }

// Status returns the current connection status.
func (s *Supervisor) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Guard returns ErrNotConnected unless the integration is Connected.
// Integration clients call it before every outbound action so commands fail
// fast instead of buffering while disconnected.
func (s *Supervisor) Guard() error {
	if !s.Status().Connected() {
		return domain.ErrNotConnected
	}
	return nil
}

// Start begins connection attempts. Idempotent: calling while the loop is
// already running is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx)
}

// Reset restarts a Failed integration. It is the only way out of
// StateFailed; nothing retries silently past the attempt ceiling.
func (s *Supervisor) Reset(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

// Stop cancels the retry timer, closes the socket, and emits a final
// Disconnected status. Safe to call on a stopped supervisor.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)
	defer s.driver.Close()

	l := log.With(string(s.id))
	attempt := 0

	// Shutdown emits a final Disconnected so bus consumers observe the end
	// of this integration's event stream. The Failed terminal state is left
	// standing; only an explicit Reset clears it.
	disconnect := func() {
		s.setStatus(domain.ConnectionStatus{State: domain.StateDisconnected})
	}

	for {
		s.setStatus(domain.ConnectionStatus{State: domain.StateConnecting})

		connectCtx, cancel := context.WithTimeout(ctx, s.retry.ConnectTimeout)
		err := s.driver.Connect(connectCtx)
		cancel()

		if err == nil {
			attempt = 0
			s.setStatus(domain.ConnectionStatus{State: domain.StateConnected})
			l.Info().Msg("connected")

			err = s.driver.Run(ctx)
			if ctx.Err() != nil {
				disconnect()
				return
			}
			l.Warn().Err(err).Msg("connection lost")
		} else {
			if ctx.Err() != nil {
				disconnect()
				return
			}
			l.Warn().Err(err).Int(log.FieldAttempt, attempt+1).Msg("connect failed")
		}

		attempt++
		if attempt > s.retry.MaxAttempts {
			s.setStatus(domain.ConnectionStatus{State: domain.StateFailed})
			l.Error().Int(log.FieldAttempt, attempt-1).Msg("attempt ceiling reached, giving up until reset")
			return
		}

		delay := backoff(s.retry.BaseDelay, s.retry.MaxDelay, attempt)
		s.setStatus(domain.ConnectionStatus{
			State:       domain.StateReconnecting,
			Attempt:     attempt,
			NextRetryAt: time.Now().Add(delay),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			disconnect()
			return
		case <-timer.C:
		}
	}
}

func (s *Supervisor) setStatus(status domain.ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.bus.Publish(domain.ConnectivityChanged{Integration: s.id, Status: status})
}

// backoff computes min(maxDelay, base << (attempt-1)); attempt is 1-based.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
