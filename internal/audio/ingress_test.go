package audio

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSink) SendAudio(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *recordingSink) all() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, f := range s.frames {
		out = append(out, f...)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIngressForwardsWhenConnected(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngress(NewState(), sink, discardLogger())
	in.SetConnected(true)

	ctx := context.Background()
	if err := in.HandleMedia(ctx, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}
	if err := in.HandleMedia(ctx, []byte{0x03}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}

	if got, want := sink.all(), []byte{0x01, 0x02, 0x03}; !bytes.Equal(got, want) {
		t.Errorf("forwarded audio = %v, want %v", got, want)
	}
	if in.SpillBytes() != 0 {
		t.Errorf("SpillBytes = %d, want 0", in.SpillBytes())
	}
}

func TestIngressDropsWhileSpeaking(t *testing.T) {
	sink := &recordingSink{}
	state := NewState()
	in := NewIngress(state, sink, discardLogger())
	in.SetConnected(true)

	state.SetSpeaking(true)
	if err := in.HandleMedia(context.Background(), []byte{0xff}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}

	if len(sink.frames) != 0 {
		t.Errorf("forwarded %d frames while speaking, want 0", len(sink.frames))
	}
	if in.SpillBytes() != 0 {
		t.Errorf("spilled %d bytes while speaking, want 0", in.SpillBytes())
	}
}

func TestIngressSpillsWhileDisconnected(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngress(NewState(), sink, discardLogger())

	ctx := context.Background()
	for i := byte(0); i < 3; i++ {
		if err := in.HandleMedia(ctx, []byte{i, i}); err != nil {
			t.Fatalf("HandleMedia: %v", err)
		}
	}

	if len(sink.frames) != 0 {
		t.Fatalf("forwarded %d frames while disconnected, want 0", len(sink.frames))
	}
	if in.SpillBytes() != 6 {
		t.Errorf("SpillBytes = %d, want 6", in.SpillBytes())
	}

	// Reconnect and drain in arrival order.
	if err := in.DrainSpill(ctx); err != nil {
		t.Fatalf("DrainSpill: %v", err)
	}
	if got, want := sink.all(), []byte{0, 0, 1, 1, 2, 2}; !bytes.Equal(got, want) {
		t.Errorf("drained audio = %v, want %v", got, want)
	}
	if in.SpillBytes() != 0 {
		t.Errorf("SpillBytes after drain = %d, want 0", in.SpillBytes())
	}

	// The drain opened the gate; live frames now forward directly.
	if err := in.HandleMedia(ctx, []byte{7}); err != nil {
		t.Fatalf("HandleMedia after drain: %v", err)
	}
	if got, want := sink.all(), []byte{0, 0, 1, 1, 2, 2, 7}; !bytes.Equal(got, want) {
		t.Errorf("audio after drain = %v, want %v", got, want)
	}
}

func TestIngressSpillLimit(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngress(NewState(), sink, discardLogger(), WithSpillLimit(5))

	ctx := context.Background()
	frames := [][]byte{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	for _, f := range frames {
		if err := in.HandleMedia(ctx, f); err != nil {
			t.Fatalf("HandleMedia: %v", err)
		}
	}

	// The third and fourth frames exceed the limit and are dropped; the
	// oldest audio is kept.
	if in.SpillBytes() != 4 {
		t.Errorf("SpillBytes = %d, want 4", in.SpillBytes())
	}

	if err := in.DrainSpill(ctx); err != nil {
		t.Fatalf("DrainSpill: %v", err)
	}
	if got, want := sink.all(), []byte{1, 1, 2, 2}; !bytes.Equal(got, want) {
		t.Errorf("drained audio = %v, want %v", got, want)
	}
}

func TestIngressClearSpill(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngress(NewState(), sink, discardLogger())

	ctx := context.Background()
	if err := in.HandleMedia(ctx, []byte{9, 9}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}
	in.ClearSpill()

	if in.SpillBytes() != 0 {
		t.Errorf("SpillBytes after clear = %d, want 0", in.SpillBytes())
	}
	if err := in.DrainSpill(ctx); err != nil {
		t.Fatalf("DrainSpill: %v", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("drained %d frames after clear, want 0", len(sink.frames))
	}
}

// injectingSink wraps a recordingSink and, on its first delivery, feeds one
// live frame back through HandleMedia, simulating the caller talking while the
// reconnect drain is in flight.
type injectingSink struct {
	recordingSink
	in     *Ingress
	inject []byte
	once   sync.Once
}

func (s *injectingSink) SendAudio(ctx context.Context, frame []byte) error {
	if err := s.recordingSink.SendAudio(ctx, frame); err != nil {
		return err
	}
	s.once.Do(func() {
		if err := s.in.HandleMedia(ctx, s.inject); err != nil {
			panic(err)
		}
	})
	return nil
}

func TestIngressDrainHoldsGateUntilEmpty(t *testing.T) {
	sink := &injectingSink{inject: []byte{9, 9}}
	in := NewIngress(NewState(), sink, discardLogger())
	sink.in = in

	ctx := context.Background()
	for i := byte(0); i < 3; i++ {
		if err := in.HandleMedia(ctx, []byte{i, i}); err != nil {
			t.Fatalf("HandleMedia: %v", err)
		}
	}

	// The frame injected mid-drain must land after the full backlog, never
	// between or ahead of spilled frames.
	if err := in.DrainSpill(ctx); err != nil {
		t.Fatalf("DrainSpill: %v", err)
	}
	if got, want := sink.all(), []byte{0, 0, 1, 1, 2, 2, 9, 9}; !bytes.Equal(got, want) {
		t.Errorf("drained audio = %v, want %v", got, want)
	}
	if in.SpillBytes() != 0 {
		t.Errorf("SpillBytes after drain = %d, want 0", in.SpillBytes())
	}
}

func TestIngressDrainErrorKeepsSpilling(t *testing.T) {
	wantErr := errors.New("stream torn down")
	sink := &recordingSink{err: wantErr}
	in := NewIngress(NewState(), sink, discardLogger())

	ctx := context.Background()
	if err := in.HandleMedia(ctx, []byte{1, 1}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}
	if err := in.DrainSpill(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("DrainSpill error = %v, want wrapped %v", err, wantErr)
	}

	// The gate stayed closed, so new frames keep buffering instead of hitting
	// the dead sink.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	if err := in.HandleMedia(ctx, []byte{2, 2}); err != nil {
		t.Fatalf("HandleMedia after failed drain: %v", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("forwarded %d frames after failed drain, want 0", len(sink.frames))
	}
	if in.SpillBytes() != 2 {
		t.Errorf("SpillBytes = %d, want 2", in.SpillBytes())
	}
}

func TestIngressForwardError(t *testing.T) {
	wantErr := errors.New("stream torn down")
	sink := &recordingSink{err: wantErr}
	in := NewIngress(NewState(), sink, discardLogger())
	in.SetConnected(true)

	err := in.HandleMedia(context.Background(), []byte{0x01})
	if !errors.Is(err, wantErr) {
		t.Errorf("HandleMedia error = %v, want wrapped %v", err, wantErr)
	}
}

func TestIngressTouchesActivity(t *testing.T) {
	state := NewState()
	before := state.LastActivity()
	in := NewIngress(state, &recordingSink{}, discardLogger())

	if err := in.HandleMedia(context.Background(), []byte{0x01}); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}
	if !state.LastActivity().After(before) && state.LastActivity() != before {
		// Clock resolution can make the stamps equal; they must never go back.
		t.Errorf("LastActivity went backwards: %v -> %v", before, state.LastActivity())
	}
}
