package telephony_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelic-ai/voceria/internal/telephony"
	"github.com/atelic-ai/voceria/internal/telephony/telephonytest"
)

func collectEvents(t *testing.T, events <-chan telephony.Event, n int) []telephony.Event {
	t.Helper()
	out := make([]telephony.Event, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events channel closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestLinkDemuxOrder(t *testing.T) {
	wire := telephonytest.NewWire()
	link := telephony.NewLink(wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	wire.InjectConnected()
	wire.InjectStart("MZ123", "CA456")
	wire.InjectMedia([]byte{0x01, 0x02})
	wire.InjectMark("end_of_tts")
	wire.InjectStop()

	got := collectEvents(t, link.Events(), 5)

	wantTypes := []telephony.EventType{
		telephony.EventConnected,
		telephony.EventStart,
		telephony.EventMedia,
		telephony.EventMark,
		telephony.EventStop,
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("event[%d].Type = %q, want %q", i, got[i].Type, want)
		}
	}
	if got[1].StreamID != "MZ123" || got[1].CallID != "CA456" {
		t.Errorf("start event = %+v, want StreamID MZ123 CallID CA456", got[1])
	}
	if !bytes.Equal(got[2].Media, []byte{0x01, 0x02}) {
		t.Errorf("media event payload = %v", got[2].Media)
	}
	if got[3].Mark != "end_of_tts" {
		t.Errorf("mark event name = %q, want end_of_tts", got[3].Mark)
	}

	// Run returned on stop; the events channel must close.
	select {
	case _, ok := <-link.Events():
		if ok {
			t.Error("expected events channel to be closed after stop")
		}
	case <-time.After(2 * time.Second):
		t.Error("events channel not closed after stop")
	}
}

func TestLinkCapturesStreamID(t *testing.T) {
	wire := telephonytest.NewWire()
	link := telephony.NewLink(wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	if id := link.StreamID(); id != "" {
		t.Errorf("StreamID before start = %q, want empty", id)
	}

	wire.InjectStart("MZ999", "CA111")
	collectEvents(t, link.Events(), 1)

	if id := link.StreamID(); id != "MZ999" {
		t.Errorf("StreamID after start = %q, want MZ999", id)
	}

	// Outbound frames carry the captured stream ID.
	if err := link.SendMedia(ctx, []byte{0xaa}); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if err := link.SendMark(ctx, "end_of_tts"); err != nil {
		t.Fatalf("SendMark: %v", err)
	}

	sent := wire.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d frames, want 2", len(sent))
	}
	for i, f := range sent {
		if f.StreamID != "MZ999" {
			t.Errorf("sent[%d].StreamID = %q, want MZ999", i, f.StreamID)
		}
	}
	if sent[0].Event != "media" || sent[1].Event != "mark" {
		t.Errorf("sent events = %q,%q, want media,mark", sent[0].Event, sent[1].Event)
	}
}

func TestLinkSurfacesStopOnWireFailure(t *testing.T) {
	wire := telephonytest.NewWire()
	link := telephony.NewLink(wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	wire.InjectStart("MZ1", "CA1")
	collectEvents(t, link.Events(), 1)

	// Tearing the wire down without a stop frame must still surface a stop
	// event so the session sees a uniform terminal signal.
	wire.Close()

	got := collectEvents(t, link.Events(), 1)
	if got[0].Type != telephony.EventStop {
		t.Errorf("event after wire failure = %q, want stop", got[0].Type)
	}
}

func TestLinkSkipsUndecodableFrames(t *testing.T) {
	wire := telephonytest.NewWire()
	link := telephony.NewLink(wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	wire.InjectRaw([]byte(`{"event":"dtmf","dtmf":{"digit":"5"}}`))
	wire.InjectRaw([]byte(`not json at all`))
	wire.InjectMark("after-garbage")

	got := collectEvents(t, link.Events(), 1)
	if got[0].Type != telephony.EventMark || got[0].Mark != "after-garbage" {
		t.Errorf("first surfaced event = %+v, want mark after-garbage", got[0])
	}
}

func TestLinkSendAfterClose(t *testing.T) {
	wire := telephonytest.NewWire()
	link := telephony.NewLink(wire)

	if err := link.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := link.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx := context.Background()
	if err := link.SendMedia(ctx, []byte{0x01}); !errors.Is(err, telephony.ErrLinkClosed) {
		t.Errorf("SendMedia after close = %v, want ErrLinkClosed", err)
	}
	if err := link.SendClear(ctx); !errors.Is(err, telephony.ErrLinkClosed) {
		t.Errorf("SendClear after close = %v, want ErrLinkClosed", err)
	}
	if err := link.SendMark(ctx, "m"); !errors.Is(err, telephony.ErrLinkClosed) {
		t.Errorf("SendMark after close = %v, want ErrLinkClosed", err)
	}
}
