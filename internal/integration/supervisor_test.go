package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/internal/resilience"
	"github.com/atelic-ai/voceria/pkg/provider/stt"
	sttmock "github.com/atelic-ai/voceria/pkg/provider/stt/mock"
	"github.com/atelic-ai/voceria/pkg/types"
)

func fastBackoff() resilience.Backoff {
	return resilience.Backoff{Base: time.Millisecond, Factor: 2}
}

func newMockSession() *sttmock.Session {
	return &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 4),
		FinalsCh:   make(chan types.Transcript, 4),
	}
}

type hookRecorder struct {
	mu          sync.Mutex
	downs       int
	reconnects  int
	failed      chan error
	reconnected chan struct{}
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{
		failed:      make(chan error, 1),
		reconnected: make(chan struct{}, 4),
	}
}

func (r *hookRecorder) hooks() SupervisorHooks {
	return SupervisorHooks{
		OnDown: func() {
			r.mu.Lock()
			r.downs++
			r.mu.Unlock()
		},
		OnReconnected: func() {
			r.mu.Lock()
			r.reconnects++
			r.mu.Unlock()
			r.reconnected <- struct{}{}
		},
		OnFailed: func(err error) {
			r.failed <- err
		},
	}
}

func TestSupervisorStartConnects(t *testing.T) {
	provider := &sttmock.Provider{Session: newMockSession()}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	s := NewSupervisor(client, SupervisorHooks{}, testLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h := s.Health()
	if h.Status != StatusConnected {
		t.Errorf("Status = %q, want connected", h.Status)
	}
	if h.LastConnected.IsZero() {
		t.Error("LastConnected not stamped")
	}
}

func TestSupervisorStartFailure(t *testing.T) {
	provider := &sttmock.Provider{StartStreamErr: errors.New("bad key")}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	s := NewSupervisor(client, SupervisorHooks{}, testLogger())

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start with failing provider returned nil")
	}
	h := s.Health()
	if h.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", h.Status)
	}
	if h.LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestSupervisorReconnectsAfterOutage(t *testing.T) {
	// First attempt fails, second succeeds.
	provider := &sttmock.Provider{
		Session:         newMockSession(),
		StartStreamErrs: []error{nil, errors.New("socket dropped"), nil},
	}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	rec := newHookRecorder()
	s := NewSupervisor(client, rec.hooks(), testLogger(),
		WithBackoff(fastBackoff()), WithMaxAttempts(3))

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.OnStreamLost(ctx)

	select {
	case <-rec.reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	h := s.Health()
	if h.Status != StatusConnected {
		t.Errorf("Status = %q, want connected", h.Status)
	}
	if h.TotalReconnects != 1 {
		t.Errorf("TotalReconnects = %d, want 1", h.TotalReconnects)
	}
	if h.ReconnectAttempts != 2 {
		t.Errorf("ReconnectAttempts = %d, want 2", h.ReconnectAttempts)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.downs != 1 {
		t.Errorf("OnDown fired %d times, want 1", rec.downs)
	}
}

func TestSupervisorExhaustsRetryBudget(t *testing.T) {
	wantErr := errors.New("still down")
	provider := &sttmock.Provider{
		StartStreamErrs: []error{nil, wantErr, wantErr, wantErr},
	}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	rec := newHookRecorder()
	s := NewSupervisor(client, rec.hooks(), testLogger(),
		WithBackoff(fastBackoff()), WithMaxAttempts(3))

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.OnStreamLost(ctx)

	select {
	case err := <-rec.failed:
		if !errors.Is(err, wantErr) {
			t.Errorf("OnFailed err = %v, want %v", err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnFailed")
	}

	h := s.Health()
	if h.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", h.Status)
	}
	if h.ReconnectAttempts != 3 {
		t.Errorf("ReconnectAttempts = %d, want 3", h.ReconnectAttempts)
	}
	// 1 initial + 3 retries.
	if provider.StartStreamCallCount() != 4 {
		t.Errorf("StartStream calls = %d, want 4", provider.StartStreamCallCount())
	}
}

func TestSupervisorStopSuppressesReconnect(t *testing.T) {
	provider := &sttmock.Provider{Session: newMockSession()}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	rec := newHookRecorder()
	s := NewSupervisor(client, rec.hooks(), testLogger(),
		WithBackoff(fastBackoff()))

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	s.OnStreamLost(ctx)
	time.Sleep(50 * time.Millisecond)

	if provider.StartStreamCallCount() != 1 {
		t.Errorf("StartStream calls = %d after Stop, want 1", provider.StartStreamCallCount())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.downs != 0 {
		t.Errorf("OnDown fired %d times after Stop, want 0", rec.downs)
	}
}

// End-to-end shape of a mid-call outage: audio spills while the recognizer is
// down and drains through the new session after the reconnect.
func TestSupervisorOutageSpillAndDrain(t *testing.T) {
	first := newMockSession()
	second := newMockSession()
	provider := &sttmock.Provider{
		Sessions:        []stt.SessionHandle{first, second},
		StartStreamErrs: []error{nil, nil},
	}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())

	var mu sync.Mutex
	var spill [][]byte
	reconnected := make(chan struct{}, 1)
	hooks := SupervisorHooks{
		OnReconnected: func() {
			mu.Lock()
			frames := spill
			spill = nil
			mu.Unlock()
			for _, f := range frames {
				client.SendAudio(context.Background(), f)
			}
			reconnected <- struct{}{}
		},
	}
	s := NewSupervisor(client, hooks, testLogger(), WithBackoff(fastBackoff()))

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	client.SendAudio(ctx, []byte{1})

	// Outage: frames arriving now are spilled by the caller.
	mu.Lock()
	spill = append(spill, []byte{2}, []byte{3})
	mu.Unlock()
	s.OnStreamLost(ctx)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	if got := first.SentBytes(); len(got) != 1 || got[0] != 1 {
		t.Errorf("first session audio = %v, want [1]", got)
	}
	if got := second.SentBytes(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("second session audio = %v, want [2 3]", got)
	}
}

func TestSupervisorCountsReconnectAttempts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Initial connect succeeds, the first reconnect attempt fails and the
	// second lands, so two attempts must be counted.
	provider := &sttmock.Provider{
		Session:         newMockSession(),
		StartStreamErrs: []error{nil, errors.New("socket dropped"), nil},
	}
	client := NewSTTClient(provider, testStreamConfig(), STTCallbacks{}, testLogger())
	rec := newHookRecorder()
	s := NewSupervisor(client, rec.hooks(), testLogger(),
		WithBackoff(fastBackoff()), WithMaxAttempts(3), WithMetrics(metrics))

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.OnStreamLost(ctx)

	select {
	case <-rec.reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var attempts int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voceria.stt.reconnects" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("stt.reconnects data = %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				attempts += dp.Value
			}
		}
	}
	if attempts != 2 {
		t.Errorf("reconnect attempts counted = %d, want 2", attempts)
	}
}
