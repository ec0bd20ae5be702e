package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// ErrLinkClosed is returned by send operations after the link has closed.
// Callers treat it as loss of the call, not as a fatal fault.
var ErrLinkClosed = errors.New("telephony: link is closed")

// Wire is the minimal bidirectional frame channel a [Link] runs over. The
// production implementation adapts a WebSocket connection; tests substitute an
// in-memory pipe.
type Wire interface {
	// Read blocks until the next raw frame arrives or the wire fails.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one raw frame. Safe for concurrent use is NOT required;
	// the Link serialises writes.
	Write(ctx context.Context, data []byte) error

	// Close tears the wire down. Pending Reads return an error.
	Close() error
}

// wsWire adapts a *websocket.Conn to the [Wire] interface.
type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsWire) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsWire) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "call ended")
}

// Accept upgrades an HTTP request to the provider's media WebSocket and wraps
// it in a [Link]. The caller must invoke [Link.Run] to start the receive loop.
func Accept(w http.ResponseWriter, r *http.Request) (*Link, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The provider does not send an Origin header that matches the host.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, fmt.Errorf("telephony: accept: %w", err)
	}
	// Media frames arrive every 20 ms; the default limit is too small for
	// bursts after network hiccups.
	conn.SetReadLimit(1 << 20)
	return NewLink(&wsWire{conn: conn}), nil
}

// Link is one bidirectional frame channel with the telephony provider.
//
// The receive loop demuxes raw frames into [Event] values on the Events
// channel. Outbound operations are idempotent and best-effort: sending on a
// closed link fails with [ErrLinkClosed].
type Link struct {
	wire Wire

	events chan Event

	writeMu sync.Mutex

	mu       sync.Mutex
	streamID string

	done chan struct{}
	once sync.Once
}

// NewLink wraps a wire in a Link. Call [Link.Run] to start demuxing.
func NewLink(wire Wire) *Link {
	return &Link{
		wire:   wire,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
}

// Events returns the demuxed inbound event stream. The channel is closed after
// a stop event has been surfaced or the wire fails.
func (l *Link) Events() <-chan Event {
	return l.events
}

// StreamID returns the provider-assigned stream identifier, or "" before the
// start event has been observed.
func (l *Link) StreamID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamID
}

// Run executes the receive loop until the wire closes, a stop frame arrives,
// or ctx is cancelled. A closed wire surfaces a final stop event upstream so
// the session observes a uniform terminal signal.
func (l *Link) Run(ctx context.Context) {
	defer close(l.events)

	for {
		data, err := l.wire.Read(ctx)
		if err != nil {
			// Closed channel terminates the receive loop; surface Stop upstream.
			l.deliver(ctx, Event{Type: EventStop})
			return
		}

		ev, err := DecodeFrame(data)
		if err != nil {
			slog.Warn("telephony: skipping undecodable frame", "err", err)
			continue
		}

		if ev.Type == EventStart {
			l.mu.Lock()
			l.streamID = ev.StreamID
			l.mu.Unlock()
		}

		l.deliver(ctx, ev)

		if ev.Type == EventStop {
			return
		}
	}
}

// deliver pushes ev to the events channel without blocking forever.
func (l *Link) deliver(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	case <-l.done:
	}
}

// SendMedia frames raw μ-law bytes as a media event tied to the current stream.
func (l *Link) SendMedia(ctx context.Context, audio []byte) error {
	return l.send(ctx, EncodeMedia(l.StreamID(), audio))
}

// SendClear instructs the provider to drop its outbound jitter buffer.
func (l *Link) SendClear(ctx context.Context) error {
	return l.send(ctx, EncodeClear(l.StreamID()))
}

// SendMark emits a boundary marker. The provider echoes it back once all audio
// queued before the mark has been played out.
func (l *Link) SendMark(ctx context.Context, name string) error {
	return l.send(ctx, EncodeMark(l.StreamID(), name))
}

func (l *Link) send(ctx context.Context, frame []byte) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.wire.Write(ctx, frame); err != nil {
		return fmt.Errorf("telephony: send: %w", err)
	}
	return nil
}

// Close tears down the wire. Safe to call multiple times.
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.wire.Close()
	})
	return err
}
