package integration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/internal/resilience"
)

// Status is the supervisor's view of the recognizer connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// ServiceHealth is a point-in-time snapshot of a supervised connection,
// exposed through the admin call-status endpoint.
type ServiceHealth struct {
	Status            Status    `json:"status"`
	LastConnected     time.Time `json:"last_connected,omitzero"`
	LastError         string    `json:"last_error,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	TotalReconnects   int       `json:"total_reconnects"`
}

// SupervisorHooks are the supervisor's notifications to the rest of the
// call. Any field may be nil. Hooks run on the reconnect goroutine.
type SupervisorHooks struct {
	// OnDown fires when the stream is lost, before the first retry. The
	// session starts spilling caller audio here.
	OnDown func()

	// OnReconnected fires after a successful reconnect. The session drains
	// the spill buffer here.
	OnReconnected func()

	// OnFailed fires once when the retry budget is exhausted. The session
	// ends the call here.
	OnFailed func(lastErr error)
}

// Supervisor owns the recognizer connection lifecycle for one call: the
// initial connect and bounded reconnects with jittered exponential backoff.
type Supervisor struct {
	client *STTClient
	hooks  SupervisorHooks
	log    *slog.Logger

	backoff     resilience.Backoff
	maxAttempts int
	metrics     *observe.Metrics

	mu       sync.Mutex
	health   ServiceHealth
	stopping bool
}

// SupervisorOption is a functional option for [Supervisor].
type SupervisorOption func(*Supervisor)

// WithBackoff overrides the reconnect backoff schedule.
func WithBackoff(b resilience.Backoff) SupervisorOption {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

// WithMaxAttempts overrides the reconnect attempt budget.
func WithMaxAttempts(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxAttempts = n
	}
}

// WithMetrics counts reconnect attempts on the given instruments.
func WithMetrics(m *observe.Metrics) SupervisorOption {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// NewSupervisor creates a Supervisor for client.
func NewSupervisor(client *STTClient, hooks SupervisorHooks, log *slog.Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		client: client,
		hooks:  hooks,
		log:    log,
		backoff: resilience.Backoff{
			Base:   time.Second,
			Factor: 2,
			Jitter: 0.25,
		},
		maxAttempts: 3,
		health:      ServiceHealth{Status: StatusDisconnected},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens the initial recognizer stream.
func (s *Supervisor) Start(ctx context.Context) error {
	s.setStatus(StatusConnecting)
	if err := s.client.Start(ctx); err != nil {
		s.recordError(err)
		s.setStatus(StatusFailed)
		return err
	}
	s.recordConnected()
	return nil
}

// OnStreamLost runs the reconnect loop. Wire it as the client's disconnect
// callback, dispatched on its own goroutine. At most maxAttempts reconnects
// are tried; exhaustion fires the OnFailed hook.
func (s *Supervisor) OnStreamLost(ctx context.Context) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.health.Status = StatusReconnecting
	s.health.ReconnectAttempts = 0
	s.mu.Unlock()

	if s.hooks.OnDown != nil {
		s.hooks.OnDown()
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		delay := s.backoff.Delay(attempt)
		s.log.Info("recognizer reconnect scheduled",
			"attempt", attempt+1, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.setStatus(StatusDisconnected)
			return
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			return
		}
		s.health.ReconnectAttempts = attempt + 1
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecognizerReconnects.Add(ctx, 1)
		}

		if err := s.client.Start(ctx); err != nil {
			lastErr = err
			s.recordError(err)
			continue
		}

		s.mu.Lock()
		s.health.Status = StatusConnected
		s.health.LastConnected = time.Now()
		s.health.TotalReconnects++
		s.mu.Unlock()
		s.log.Info("recognizer reconnected", "attempt", attempt+1)

		if s.hooks.OnReconnected != nil {
			s.hooks.OnReconnected()
		}
		return
	}

	s.setStatus(StatusFailed)
	s.log.Error("recognizer reconnect budget exhausted", "err", lastErr)
	if s.hooks.OnFailed != nil {
		s.hooks.OnFailed(lastErr)
	}
}

// Stop disables further reconnects and closes the stream.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.stopping = true
	s.health.Status = StatusDisconnected
	s.mu.Unlock()
	return s.client.Close()
}

// Health returns a snapshot of the connection state.
func (s *Supervisor) Health() ServiceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.Status = st
}

func (s *Supervisor) recordConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.Status = StatusConnected
	s.health.LastConnected = time.Now()
	s.health.LastError = ""
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.LastError = err.Error()
}
