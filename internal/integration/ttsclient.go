package integration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/pkg/provider/tts"
	"github.com/atelic-ai/voceria/pkg/types"
)

const (
	// defaultFirstChunkDeadline bounds the wait for the first audio byte of
	// an utterance. A silent agent past this point feels like a dead line.
	defaultFirstChunkDeadline = 2 * time.Second

	// defaultStallTimeout bounds the gap between consecutive chunks once
	// audio has started.
	defaultStallTimeout = 3 * time.Second
)

// ErrDuplicateUtterance is returned by [TTSClient.Speak] when the exact text
// is already being synthesized. Duplicate triggers come from double-fired
// turns; playing the same line twice back to back sounds broken.
var ErrDuplicateUtterance = errors.New("integration: utterance already in flight")

// TTSClient synthesizes agent utterances one at a time.
//
// The streaming path is guarded by a first-chunk deadline and a stall
// watchdog. A stall, before or after the first chunk, retries the same
// utterance over batch HTTP synthesis, still watchdogged. A second stall in
// the same utterance truncates it and latches the HTTP path for every
// remaining utterance of the call.
type TTSClient struct {
	provider tts.Provider
	voice    types.VoiceProfile
	log      *slog.Logger

	firstChunkDeadline time.Duration
	stallTimeout       time.Duration

	// speakMu serialises utterances; it is held from Speak until the output
	// channel closes.
	speakMu sync.Mutex

	mu       sync.Mutex
	inFlight string
	stalls   int
	httpOnly bool
}

// TTSOption is a functional option for [TTSClient].
type TTSOption func(*TTSClient)

// WithFirstChunkDeadline overrides the first-chunk deadline.
func WithFirstChunkDeadline(d time.Duration) TTSOption {
	return func(c *TTSClient) {
		c.firstChunkDeadline = d
	}
}

// WithStallTimeout overrides the inter-chunk stall timeout.
func WithStallTimeout(d time.Duration) TTSOption {
	return func(c *TTSClient) {
		c.stallTimeout = d
	}
}

// NewTTSClient creates a client speaking with the given voice.
func NewTTSClient(provider tts.Provider, voice types.VoiceProfile, log *slog.Logger, opts ...TTSOption) *TTSClient {
	c := &TTSClient{
		provider:           provider,
		voice:              voice,
		log:                log,
		firstChunkDeadline: defaultFirstChunkDeadline,
		stallTimeout:       defaultStallTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speak synthesizes text and returns the audio stream. The channel closes
// when the utterance is complete, truncated after repeated stalls, or the
// context ends. Utterances are played one at a time; Speak blocks while a
// previous utterance is still synthesizing.
func (c *TTSClient) Speak(ctx context.Context, text string) (<-chan []byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("integration: utterance text must not be empty")
	}

	c.mu.Lock()
	if c.inFlight == text {
		c.mu.Unlock()
		return nil, ErrDuplicateUtterance
	}
	c.mu.Unlock()

	c.speakMu.Lock()

	c.mu.Lock()
	c.inFlight = text
	httpOnly := c.httpOnly
	c.mu.Unlock()

	out := make(chan []byte, 64)
	go func() {
		// Release the utterance slot before closing the output channel, so
		// a consumer observing the close can immediately speak again.
		defer func() {
			c.mu.Lock()
			c.inFlight = ""
			c.mu.Unlock()
			c.speakMu.Unlock()
			close(out)
		}()

		if httpOnly {
			c.synthesizeHTTP(ctx, text, out)
			return
		}
		c.synthesizeStream(ctx, text, out)
	}()
	return out, nil
}

// synthesizeStream runs the streaming path under the watchdog timers.
func (c *TTSClient) synthesizeStream(ctx context.Context, text string, out chan<- []byte) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	chunks, err := c.provider.SynthesizeStream(streamCtx, textCh, c.voice)
	if err != nil {
		c.log.Warn("stream synthesis failed to start, using batch fallback", "err", err)
		c.synthesizeHTTP(ctx, text, out)
		return
	}

	emitted := false
	watchdog := time.NewTimer(c.firstChunkDeadline)
	defer watchdog.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			emitted = true
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(c.stallTimeout)

		case <-watchdog.C:
			cancel()
			c.noteStall(emitted)
			c.retryHTTP(ctx, text, out)
			return

		case <-ctx.Done():
			return
		}
	}
}

// retryHTTP replays a stalled utterance over the batch path, still under the
// watchdog. A second stall in the same utterance truncates it and latches
// HTTP-only mode for the rest of the call.
func (c *TTSClient) retryHTTP(ctx context.Context, text string, out chan<- []byte) {
	httpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := c.provider.Synthesize(httpCtx, text, c.voice)
	if err != nil {
		c.log.Error("batch retry failed, utterance dropped", "err", err)
		return
	}

	watchdog := time.NewTimer(c.firstChunkDeadline)
	defer watchdog.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(c.stallTimeout)

		case <-watchdog.C:
			cancel()
			c.mu.Lock()
			c.stalls++
			c.httpOnly = true
			c.mu.Unlock()
			c.log.Warn("batch retry stalled too, truncating utterance and latching batch synthesis")
			return

		case <-ctx.Done():
			return
		}
	}
}

// synthesizeHTTP runs the batch path, relaying its chunks to out.
func (c *TTSClient) synthesizeHTTP(ctx context.Context, text string, out chan<- []byte) {
	chunks, err := c.provider.Synthesize(ctx, text, c.voice)
	if err != nil {
		c.log.Error("batch synthesis failed, utterance dropped", "err", err)
		return
	}
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// noteStall records a streaming watchdog trip. The latch decision belongs to
// retryHTTP: only a second stall within the same utterance disables streaming.
func (c *TTSClient) noteStall(midStream bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalls++
	if midStream {
		c.log.Warn("stream synthesis stalled mid-utterance, retrying over batch",
			"stalls", c.stalls)
	} else {
		c.log.Warn("stream synthesis produced no audio before deadline, retrying over batch",
			"stalls", c.stalls)
	}
}

// Stalls returns how many watchdog trips the call has seen.
func (c *TTSClient) Stalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalls
}

// HTTPOnly reports whether the client has latched the batch path.
func (c *TTSClient) HTTPOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpOnly
}
