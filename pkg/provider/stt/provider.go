// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw audio frames and emits two
// streams of Transcript values — low-latency partials for turn-taking
// responsiveness and authoritative finals for the conversation history.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"

	"github.com/atelic-ai/voceria/pkg/types"
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session. All fields must be compatible with what the underlying provider
// supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Telephony media streams use 8000.
	SampleRate int

	// Encoding is the audio codec of the frames sent via SendAudio
	// (e.g., "mulaw", "linear16"). Empty uses the provider default.
	Encoding string

	// Channels is the number of audio channels. 1 = mono (required by most STT
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "es", "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// InterimResults requests low-latency partial transcripts in addition to
	// finals. The pause detector relies on partials to restart its timer, so
	// the voice path always sets this.
	InterimResults bool
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw audio bytes to the provider for
	// transcription. The chunk must match the SampleRate, Encoding, and Channels
	// agreed in StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Transcript values as the provider makes preliminary guesses. These drive
	// the pause detector but must not be written to the conversation history.
	// The channel is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the provider has committed to a recognition result. These are
	// the values accumulated into user utterances.
	// The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session, flushes any pending audio, and releases all
	// associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per live call).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and recognition configuration. The returned SessionHandle is
	// ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
