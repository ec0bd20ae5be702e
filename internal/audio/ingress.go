package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// defaultSpillLimit caps the bytes buffered while speech recognition is
// disconnected. 40000 μ-law bytes is 5 seconds of call audio.
const defaultSpillLimit = 40_000

// Sink receives caller audio frames. The speech recognition client
// implements it.
type Sink interface {
	SendAudio(ctx context.Context, frame []byte) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, frame []byte) error

// SendAudio calls f.
func (f SinkFunc) SendAudio(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// Ingress forwards caller audio to speech recognition.
//
// While the recognizer is disconnected, frames accumulate in a bounded spill
// buffer and are drained in arrival order on reconnect, so the first words
// spoken during an outage are not lost. While the agent is speaking, frames
// are dropped outright.
type Ingress struct {
	state *State
	sink  Sink
	log   *slog.Logger

	mu         sync.Mutex
	connected  bool
	spill      [][]byte
	spillBytes int
	spillLimit int
	dropped    int
}

// IngressOption is a functional option for [Ingress].
type IngressOption func(*Ingress)

// WithSpillLimit overrides the spill buffer capacity in bytes.
func WithSpillLimit(n int) IngressOption {
	return func(in *Ingress) {
		in.spillLimit = n
	}
}

// NewIngress creates an Ingress feeding the given sink. The recognizer starts
// disconnected; call [Ingress.SetConnected] once the stream is up.
func NewIngress(state *State, sink Sink, log *slog.Logger, opts ...IngressOption) *Ingress {
	in := &Ingress{
		state:      state,
		sink:       sink,
		log:        log,
		spillLimit: defaultSpillLimit,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// HandleMedia processes one inbound caller frame.
func (in *Ingress) HandleMedia(ctx context.Context, frame []byte) error {
	in.state.TouchActivity()

	if in.state.SuppressSTT() {
		return nil
	}

	in.mu.Lock()
	if !in.connected {
		in.bufferLocked(frame)
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	if err := in.sink.SendAudio(ctx, frame); err != nil {
		return fmt.Errorf("audio: forward frame: %w", err)
	}
	return nil
}

// bufferLocked appends frame to the spill buffer, dropping it with a warning
// when the buffer is full. in.mu must be held.
func (in *Ingress) bufferLocked(frame []byte) {
	if in.spillBytes+len(frame) > in.spillLimit {
		in.dropped++
		// Log on the first drop and then sparsely; an outage produces 50
		// frames per second.
		if in.dropped == 1 || in.dropped%100 == 0 {
			in.log.Warn("spill buffer full, dropping caller audio",
				"dropped_frames", in.dropped,
				"buffered_bytes", in.spillBytes)
		}
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	in.spill = append(in.spill, cp)
	in.spillBytes += len(cp)
}

// SetConnected records whether the recognizer stream is up. Use it to start
// spilling on disconnect and to open the gate on the initial connect, when the
// buffer is still empty; after a reconnect use [Ingress.DrainSpill], which
// opens the gate itself once the backlog has been flushed.
func (in *Ingress) SetConnected(v bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.connected = v
}

// DrainSpill flushes buffered frames to the sink in arrival order, then marks
// the recognizer connected. The gate stays closed while the drain runs, so
// frames arriving mid-drain keep spilling behind the backlog instead of
// jumping ahead of it; the loop picks them up before opening the gate. A send
// failure leaves the gate closed, the recognizer will disconnect again anyway.
func (in *Ingress) DrainSpill(ctx context.Context) error {
	for {
		in.mu.Lock()
		if len(in.spill) == 0 {
			in.connected = true
			in.dropped = 0
			in.mu.Unlock()
			return nil
		}
		frames := in.spill
		in.spill = nil
		in.spillBytes = 0
		in.mu.Unlock()

		for _, frame := range frames {
			if err := in.sink.SendAudio(ctx, frame); err != nil {
				return fmt.Errorf("audio: drain spill: %w", err)
			}
		}
	}
}

// SpillBytes returns the number of bytes currently buffered.
func (in *Ingress) SpillBytes() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.spillBytes
}

// ClearSpill discards buffered frames without sending them.
func (in *Ingress) ClearSpill() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.spill = nil
	in.spillBytes = 0
	in.dropped = 0
}
