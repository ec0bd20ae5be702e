// Package mock provides a test double for the llm package interfaces.
//
// Tests script the text each StreamCompletion call should emit (optionally in
// multiple chunks with delays) and inspect the requests that were made.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/pkg/provider/llm"
	"github.com/atelic-ai/voceria/pkg/types"
)

// Reply scripts the output of one StreamCompletion call.
type Reply struct {
	// Chunks is the sequence of text fragments to emit. A single-element slice
	// emits the whole reply at once.
	Chunks []string

	// ChunkDelay is an optional delay before each chunk.
	ChunkDelay time.Duration

	// Err, if non-nil, is returned from StreamCompletion instead of a channel.
	Err error

	// StreamErr, when true, emits a chunk with FinishReason "error" after any
	// scripted text, simulating a mid-stream transport failure.
	StreamErr bool
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies is consumed one entry per StreamCompletion call. When exhausted,
	// the last entry is replayed.
	Replies []Reply

	// Requests records every CompletionRequest passed to StreamCompletion or
	// Complete, in order.
	Requests []llm.CompletionRequest

	// Caps is returned by Capabilities. Zero value gets a sensible default.
	Caps types.ModelCapabilities

	idx int
}

// StreamCompletion records the request and plays the next scripted reply.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	reply := p.nextLocked()
	p.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}

	ch := make(chan llm.Chunk, len(reply.Chunks)+1)
	go func() {
		defer close(ch)
		for _, text := range reply.Chunks {
			if reply.ChunkDelay > 0 {
				select {
				case <-time.After(reply.ChunkDelay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- llm.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if reply.StreamErr {
			ch <- llm.Chunk{FinishReason: "error", Text: "mock stream error"}
			return
		}
		ch <- llm.Chunk{FinishReason: "stop"}
	}()
	return ch, nil
}

// Complete drains a scripted stream into a single response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	var content string
	for c := range ch {
		content += c.Text
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CountTokens approximates 4 characters per token.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total, nil
}

// Capabilities returns Caps, defaulting to a streaming 128k-context model.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Caps == (types.ModelCapabilities{}) {
		return types.ModelCapabilities{
			ContextWindow:     128_000,
			MaxOutputTokens:   8_192,
			SupportsStreaming: true,
		}
	}
	return p.Caps
}

// RequestCount returns the number of recorded requests. Thread-safe.
func (p *Provider) RequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// LastRequest returns the most recent request, or a zero value if none.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Requests[len(p.Requests)-1]
}

// nextLocked returns the next scripted reply; the last entry is sticky.
// p.mu must be held.
func (p *Provider) nextLocked() Reply {
	if len(p.Replies) == 0 {
		return Reply{Chunks: []string{""}}
	}
	i := p.idx
	if i >= len(p.Replies) {
		i = len(p.Replies) - 1
	} else {
		p.idx = i + 1
	}
	return p.Replies[i]
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
