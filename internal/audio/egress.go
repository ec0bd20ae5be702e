package audio

import (
	"context"
	"fmt"
)

// MarkEndOfTTS is the boundary marker sent after the last chunk of each
// utterance. The provider echoes it back once playback has drained.
const MarkEndOfTTS = "end_of_tts"

// MediaSender sends framed audio toward the caller. The telephony link
// implements it.
type MediaSender interface {
	SendMedia(ctx context.Context, audio []byte) error
	SendClear(ctx context.Context) error
	SendMark(ctx context.Context, name string) error
}

// Egress plays synthesized agent audio out to the caller.
//
// Each utterance is framed as clear, media…, mark: the clear empties any
// stale provider-side buffer before the first chunk, and the end-of-speech
// mark lets the session learn when playback has actually finished rather than
// when the last chunk was merely queued.
type Egress struct {
	sender MediaSender
	state  *State
}

// NewEgress creates an Egress writing to the given sender.
func NewEgress(state *State, sender MediaSender) *Egress {
	return &Egress{sender: sender, state: state}
}

// Play streams one utterance to the caller, blocking until the audio channel
// closes and the trailing mark has been sent. It flips the speaking flag on
// before the first chunk; the flag stays on until the provider echoes the
// mark back and [Egress.HandleMark] observes it.
//
// An empty stream (channel closed before any chunk) sends nothing and leaves
// all flags untouched.
func (e *Egress) Play(ctx context.Context, audio <-chan []byte) error {
	first := true
	e.state.SetTTSInProgress(true)
	defer e.state.SetTTSInProgress(false)

	for {
		select {
		case chunk, ok := <-audio:
			if !ok {
				if first {
					return nil
				}
				if err := e.sender.SendMark(ctx, MarkEndOfTTS); err != nil {
					return fmt.Errorf("audio: send mark: %w", err)
				}
				return nil
			}
			if len(chunk) == 0 {
				continue
			}
			if first {
				if err := e.sender.SendClear(ctx); err != nil {
					return fmt.Errorf("audio: send clear: %w", err)
				}
				e.state.SetSpeaking(true)
				first = false
			}
			if err := e.sender.SendMedia(ctx, chunk); err != nil {
				return fmt.Errorf("audio: send media: %w", err)
			}
			e.state.TouchChunkEmitted()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HandleMark processes an echoed marker from the provider. It returns true
// when the marker closes an utterance, at which point the speaking flag has
// been dropped and caller audio flows to recognition again.
func (e *Egress) HandleMark(name string) bool {
	if name != MarkEndOfTTS {
		return false
	}
	e.state.SetSpeaking(false)
	return true
}

// Interrupt drops the speaking flag and asks the provider to discard queued
// audio. Used on teardown so a half-played farewell does not hold the flags.
func (e *Egress) Interrupt(ctx context.Context) error {
	e.state.SetSpeaking(false)
	e.state.SetTTSInProgress(false)
	if err := e.sender.SendClear(ctx); err != nil {
		return fmt.Errorf("audio: interrupt: %w", err)
	}
	return nil
}
