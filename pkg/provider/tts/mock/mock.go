// Package mock provides test doubles for the tts package interfaces.
//
// The Provider double lets tests script the audio chunks emitted for each
// synthesis call and observe the text fragments that were consumed. Chunks are
// produced through a ChunkScript so that stall and timeout behaviour can be
// simulated deterministically.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/pkg/provider/tts"
	"github.com/atelic-ai/voceria/pkg/types"
)

// Chunk describes one scripted audio emission: the payload and an optional
// delay before it is sent.
type Chunk struct {
	// Data is the audio payload.
	Data []byte

	// Delay is how long to wait before emitting Data.
	Delay time.Duration
}

// StreamCall records a single invocation of Provider.SynthesizeStream.
type StreamCall struct {
	// Voice is the profile passed to the call.
	Voice types.VoiceProfile

	// Text is the concatenation of all fragments read from the text channel.
	Text string
}

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Voice types.VoiceProfile
	Text  string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is the scripted audio for each SynthesizeStream call, in
	// order. When exhausted, calls fall back to the last script. A nil script
	// emits nothing and closes immediately after the text channel closes.
	StreamChunks [][]Chunk

	// StreamErr, if non-nil, is returned by SynthesizeStream.
	StreamErr error

	// StreamErrs, when non-empty, is consumed one per call before StreamErr.
	StreamErrs []error

	// HTTPChunks is the scripted audio for each Synthesize call.
	HTTPChunks [][]Chunk

	// HTTPErr, if non-nil, is returned by Synthesize.
	HTTPErr error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// --- Call records ---

	StreamCalls     []StreamCall
	SynthesizeCalls []SynthesizeCall

	streamIdx int
	httpIdx   int
}

// SynthesizeStream consumes and records the text fragments, then plays the
// next chunk script onto the returned channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if len(p.StreamErrs) > 0 {
		err := p.StreamErrs[0]
		p.StreamErrs = p.StreamErrs[1:]
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
	} else if p.StreamErr != nil {
		defer p.mu.Unlock()
		return nil, p.StreamErr
	}

	script := p.nextScriptLocked(&p.streamIdx, p.StreamChunks)
	callIdx := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Voice: voice})
	p.mu.Unlock()

	out := make(chan []byte, 64)
	go func() {
		defer close(out)

		// Drain the text channel first, recording what was spoken. The real
		// provider pipelines text and audio; for scripted tests collecting the
		// full text first keeps call records deterministic.
		var full string
		for {
			select {
			case frag, ok := <-text:
				if !ok {
					goto emit
				}
				full += frag
			case <-ctx.Done():
				return
			}
		}
	emit:
		p.mu.Lock()
		p.StreamCalls[callIdx].Text = full
		p.mu.Unlock()

		for _, c := range script {
			if c.Delay > 0 {
				select {
				case <-time.After(c.Delay):
				case <-ctx.Done():
					return
				}
			}
			if len(c.Data) == 0 {
				continue
			}
			select {
			case out <- c.Data:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Synthesize records the call and plays the next HTTP chunk script.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.HTTPErr != nil {
		defer p.mu.Unlock()
		return nil, p.HTTPErr
	}
	script := p.nextScriptLocked(&p.httpIdx, p.HTTPChunks)
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Voice: voice, Text: text})
	p.mu.Unlock()

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for _, c := range script {
			if c.Delay > 0 {
				select {
				case <-time.After(c.Delay):
				case <-ctx.Done():
					return
				}
			}
			if len(c.Data) == 0 {
				continue
			}
			select {
			case out <- c.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns the configured voice list.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}

// StreamCallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// SpokenText returns the recorded text of stream call i, or "" if out of range.
func (p *Provider) SpokenText(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.StreamCalls) {
		return ""
	}
	return p.StreamCalls[i].Text
}

// nextScriptLocked returns the script at *idx, advancing the cursor. The last
// script is sticky once the list is exhausted. p.mu must be held.
func (p *Provider) nextScriptLocked(idx *int, scripts [][]Chunk) []Chunk {
	if len(scripts) == 0 {
		return nil
	}
	i := *idx
	if i >= len(scripts) {
		i = len(scripts) - 1
	} else {
		*idx = i + 1
	}
	return scripts[i]
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
