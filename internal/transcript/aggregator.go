// Package transcript turns the recognizer's piecemeal final segments into
// whole caller utterances.
//
// A caller rarely produces one neat segment per sentence; the recognizer
// emits finals mid-thought whenever it is confident. The [Aggregator] holds
// segments until the caller has paused long enough, then emits the joined
// utterance downstream.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

const (
	// defaultPause is the silence that ends an utterance.
	defaultPause = 700 * time.Millisecond

	// defaultPhonePause is the longer silence used while the caller is
	// dictating digits, which come slowly with gaps between groups.
	defaultPhonePause = 1000 * time.Millisecond

	// defaultMaxHold bounds how long segments can accumulate before the
	// utterance is emitted regardless of pauses.
	defaultMaxHold = 15 * time.Second

	// minLength is the shortest utterance worth a turn. Single characters
	// are recognition noise.
	minLength = 2
)

// Aggregator accumulates final transcript segments and emits joined
// utterances after a silence gap. Safe for concurrent use.
type Aggregator struct {
	emit func(text string)

	pause      time.Duration
	phonePause time.Duration
	maxHold    time.Duration

	mu           sync.Mutex
	parts        []string
	phoneCapture bool
	pauseTimer   *time.Timer
	holdTimer    *time.Timer
	pauseGen     uint64
	holdGen      uint64
	closed       bool
}

// Option is a functional option for [Aggregator].
type Option func(*Aggregator)

// WithPause overrides the end-of-utterance silence gap.
func WithPause(d time.Duration) Option {
	return func(a *Aggregator) {
		a.pause = d
	}
}

// WithPhonePause overrides the silence gap used in phone-capture mode.
func WithPhonePause(d time.Duration) Option {
	return func(a *Aggregator) {
		a.phonePause = d
	}
}

// WithMaxHold overrides the accumulation ceiling.
func WithMaxHold(d time.Duration) Option {
	return func(a *Aggregator) {
		a.maxHold = d
	}
}

// New creates an Aggregator that calls emit with each completed utterance.
// The emit callback runs on a timer goroutine and must not block for long.
func New(emit func(text string), opts ...Option) *Aggregator {
	a := &Aggregator{
		emit:       emit,
		pause:      defaultPause,
		phonePause: defaultPhonePause,
		maxHold:    defaultMaxHold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddFinal appends one final segment and restarts the pause timer.
// Whitespace-only segments restart the timer without contributing text.
func (a *Aggregator) AddFinal(t types.Transcript) {
	text := strings.TrimSpace(t.Text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	if text != "" {
		if len(a.parts) == 0 {
			a.startHoldLocked()
		}
		a.parts = append(a.parts, text)
	}
	a.restartPauseLocked()
}

// Touch restarts the pause timer without adding text. Called on interim
// results: the caller is still talking, so the utterance is not over.
func (a *Aggregator) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || len(a.parts) == 0 {
		return
	}
	a.restartPauseLocked()
}

// SetPhoneCapture switches between the normal and phone-capture silence gaps.
func (a *Aggregator) SetPhoneCapture(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phoneCapture = v
}

// Flush emits whatever has accumulated without waiting for the pause.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked()
}

// Pending reports whether segments are waiting to be emitted.
func (a *Aggregator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parts) > 0
}

// Close stops the timers and discards pending segments.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.parts = nil
	a.stopTimersLocked()
}

// restartPauseLocked arms the pause timer. The generation check guards
// against a fire that was already in flight when the timer was re-armed:
// Timer.Stop cannot unblock a callback waiting on a.mu, so the callback
// itself must notice it is stale. a.mu must be held.
func (a *Aggregator) restartPauseLocked() {
	d := a.pause
	if a.phoneCapture {
		d = a.phonePause
	}
	if a.pauseTimer != nil {
		a.pauseTimer.Stop()
	}
	a.pauseGen++
	gen := a.pauseGen
	a.pauseTimer = time.AfterFunc(d, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if gen != a.pauseGen {
			return
		}
		a.flushLocked()
	})
}

// startHoldLocked arms the accumulation ceiling. a.mu must be held.
func (a *Aggregator) startHoldLocked() {
	if a.holdTimer != nil {
		a.holdTimer.Stop()
	}
	a.holdGen++
	gen := a.holdGen
	a.holdTimer = time.AfterFunc(a.maxHold, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if gen != a.holdGen {
			return
		}
		a.flushLocked()
	})
}

// flushLocked joins and emits pending segments. Utterances shorter than
// minLength are discarded. a.mu must be held.
func (a *Aggregator) flushLocked() {
	if a.closed || len(a.parts) == 0 {
		return
	}
	text := strings.Join(a.parts, " ")
	a.parts = nil
	a.stopTimersLocked()

	if len([]rune(text)) < minLength {
		return
	}
	go a.emit(text)
}

// stopTimersLocked disarms both timers and invalidates any fire already in
// flight. a.mu must be held.
func (a *Aggregator) stopTimersLocked() {
	a.pauseGen++
	a.holdGen++
	if a.pauseTimer != nil {
		a.pauseTimer.Stop()
		a.pauseTimer = nil
	}
	if a.holdTimer != nil {
		a.holdTimer.Stop()
		a.holdTimer = nil
	}
}
