// Package telephonytest provides an in-memory [telephony.Wire] double for
// driving a Link without a network connection.
//
// Tests inject provider frames with the Inject helpers and observe everything
// the code under test sent back via Sent and the typed accessors.
package telephonytest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/atelic-ai/voceria/internal/telephony"
)

// Wire is an in-memory implementation of telephony.Wire.
type Wire struct {
	inbound chan []byte

	mu     sync.Mutex
	sent   [][]byte
	closed bool

	done chan struct{}
	once sync.Once
}

// NewWire creates a Wire with a buffered inbound queue.
func NewWire() *Wire {
	return &Wire{
		inbound: make(chan []byte, 1024),
		done:    make(chan struct{}),
	}
}

// Read returns the next injected frame.
func (w *Wire) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-w.inbound:
		if !ok {
			return nil, errors.New("telephonytest: wire closed")
		}
		return data, nil
	case <-w.done:
		return nil, errors.New("telephonytest: wire closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write records the outbound frame.
func (w *Wire) Write(_ context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("telephonytest: wire closed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	w.sent = append(w.sent, cp)
	return nil
}

// Close marks the wire closed; pending Reads fail.
func (w *Wire) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
	})
	return nil
}

// ─── Inbound injection ────────────────────────────────────────────────────────

// InjectRaw queues a raw frame for the next Read.
func (w *Wire) InjectRaw(data []byte) {
	w.inbound <- data
}

// InjectConnected queues a provider handshake frame.
func (w *Wire) InjectConnected() {
	w.InjectRaw([]byte(`{"event":"connected"}`))
}

// InjectStart queues a start frame with the given identifiers.
func (w *Wire) InjectStart(streamID, callID string) {
	w.InjectRaw(fmt.Appendf(nil, `{"event":"start","start":{"streamSid":%q,"callSid":%q}}`, streamID, callID))
}

// InjectMedia queues a media frame carrying the given μ-law bytes.
func (w *Wire) InjectMedia(audio []byte) {
	payload := base64.StdEncoding.EncodeToString(audio)
	w.InjectRaw(fmt.Appendf(nil, `{"event":"media","media":{"payload":%q}}`, payload))
}

// InjectMark queues an echoed mark frame.
func (w *Wire) InjectMark(name string) {
	w.InjectRaw(fmt.Appendf(nil, `{"event":"mark","mark":{"name":%q}}`, name))
}

// InjectStop queues a terminal stop frame.
func (w *Wire) InjectStop() {
	w.InjectRaw([]byte(`{"event":"stop"}`))
}

// ─── Outbound inspection ──────────────────────────────────────────────────────

// sentFrame mirrors the outbound envelope for inspection.
type sentFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// SentFrame is one decoded outbound frame.
type SentFrame struct {
	Event    string
	StreamID string
	// Audio is the decoded media payload for media frames.
	Audio []byte
	// Mark is the marker name for mark frames.
	Mark string
}

// Sent returns every outbound frame decoded, in send order.
func (w *Wire) Sent() []SentFrame {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SentFrame, 0, len(w.sent))
	for _, raw := range w.sent {
		var f sentFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		sf := SentFrame{Event: f.Event, StreamID: f.StreamSid}
		if f.Media != nil {
			audio, err := base64.StdEncoding.DecodeString(f.Media.Payload)
			if err == nil {
				sf.Audio = audio
			}
		}
		if f.Mark != nil {
			sf.Mark = f.Mark.Name
		}
		out = append(out, sf)
	}
	return out
}

// SentEvents returns just the event discriminators, in send order.
func (w *Wire) SentEvents() []string {
	frames := w.Sent()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// SentAudio returns the concatenation of all media payloads, in send order.
func (w *Wire) SentAudio() []byte {
	var out []byte
	for _, f := range w.Sent() {
		if f.Event == "media" {
			out = append(out, f.Audio...)
		}
	}
	return out
}

// Ensure Wire implements telephony.Wire at compile time.
var _ telephony.Wire = (*Wire)(nil)
