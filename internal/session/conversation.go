package session

import (
	"sync"

	"github.com/atelic-ai/voceria/internal/engine"
	"github.com/atelic-ai/voceria/pkg/types"
)

// Conversation holds the per-call message history and active mode. It is the
// only mutable conversational state; components read it through the narrow
// engine view and never keep references past the call.
type Conversation struct {
	mu      sync.Mutex
	history []types.Message
	mode    types.ConversationMode
}

// NewConversation returns an empty conversation in the neutral mode.
func NewConversation() *Conversation {
	return &Conversation{mode: types.ModeNone}
}

// History returns a copy of the message history in append order.
func (c *Conversation) History() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Append adds one message to the history.
func (c *Conversation) Append(m types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
}

// Tail returns a copy of the last n messages, fewer when the history is
// shorter.
func (c *Conversation) Tail(n int) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.history) {
		n = len(c.history)
	}
	out := make([]types.Message, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// Mode returns the active conversation mode.
func (c *Conversation) Mode() types.ConversationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the active conversation mode. Invalid modes are ignored;
// the set_mode tool validates before calling.
func (c *Conversation) SetMode(m types.ConversationMode) {
	if !m.IsValid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Turns counts completed user turns.
func (c *Conversation) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.history {
		if m.Role == "user" {
			n++
		}
	}
	return n
}

var _ engine.Conversation = (*Conversation)(nil)
