// Package integration wraps the raw speech providers in call-scoped clients:
// connection lifecycle, stall detection, fallback, and reconnect supervision.
//
// [STTClient] binds one recognizer stream to callback plumbing, [TTSClient]
// guards synthesis with deadlines and an HTTP fallback, and [Supervisor]
// keeps the recognizer connected across mid-call outages.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atelic-ai/voceria/pkg/provider/stt"
	"github.com/atelic-ai/voceria/pkg/types"
)

// ErrNotConnected is returned by [STTClient.SendAudio] when no recognizer
// stream is open.
var ErrNotConnected = errors.New("integration: recognizer is not connected")

// STTCallbacks receives recognizer output. Callbacks run on the client's pump
// goroutine and must not block for long. Any field may be nil.
type STTCallbacks struct {
	// OnPartial fires for interim hypotheses.
	OnPartial func(t types.Transcript)

	// OnFinal fires for stable segments.
	OnFinal func(t types.Transcript)

	// OnDisconnect fires once per stream when it ends for any reason other
	// than an explicit Close.
	OnDisconnect func()
}

// STTClient binds one recognizer stream at a time and pumps its transcripts
// into callbacks. Reconnection policy lives in [Supervisor]; the client only
// reports the disconnect.
type STTClient struct {
	provider stt.Provider
	cfg      stt.StreamConfig
	cb       STTCallbacks
	log      *slog.Logger

	mu       sync.Mutex
	session  stt.SessionHandle
	closing  bool
	pumpDone chan struct{}
}

// NewSTTClient creates a client streaming with cfg against provider.
func NewSTTClient(provider stt.Provider, cfg stt.StreamConfig, cb STTCallbacks, log *slog.Logger) *STTClient {
	return &STTClient{
		provider: provider,
		cfg:      cfg,
		cb:       cb,
		log:      log,
	}
}

// Start opens a recognizer stream and starts the transcript pumps. Calling
// Start while a stream is open replaces it.
func (c *STTClient) Start(ctx context.Context) error {
	session, err := c.provider.StartStream(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("integration: start recognizer: %w", err)
	}

	c.mu.Lock()
	old := c.session
	c.session = session
	c.closing = false
	c.pumpDone = make(chan struct{})
	done := c.pumpDone
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go c.pump(session, done)
	return nil
}

// pump relays transcripts until both channels close, then reports the
// disconnect unless the stream was closed deliberately.
func (c *STTClient) pump(session stt.SessionHandle, done chan struct{}) {
	defer close(done)

	partials, finals := session.Partials(), session.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if c.cb.OnPartial != nil {
				c.cb.OnPartial(t)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if c.cb.OnFinal != nil {
				c.cb.OnFinal(t)
			}
		}
	}

	c.mu.Lock()
	deliberate := c.closing
	current := c.session == session
	if current {
		c.session = nil
	}
	c.mu.Unlock()

	if !current || deliberate {
		return
	}
	c.log.Warn("recognizer stream ended unexpectedly")
	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
}

// SendAudio forwards one caller frame to the open stream. It satisfies the
// ingress sink interface; the context is accepted for symmetry but the
// provider session manages its own write deadlines.
func (c *STTClient) SendAudio(_ context.Context, frame []byte) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrNotConnected
	}
	if err := session.SendAudio(frame); err != nil {
		return fmt.Errorf("integration: send audio: %w", err)
	}
	return nil
}

// Connected reports whether a recognizer stream is open.
func (c *STTClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Close ends the current stream and waits for the pump to drain. Safe to call
// with no stream open.
func (c *STTClient) Close() error {
	c.mu.Lock()
	session := c.session
	done := c.pumpDone
	c.closing = true
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	err := session.Close()
	if done != nil {
		<-done
	}
	return err
}
