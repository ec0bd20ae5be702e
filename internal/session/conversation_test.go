package session

import (
	"testing"

	"github.com/atelic-ai/voceria/pkg/types"
)

func TestConversationHistoryAndTail(t *testing.T) {
	c := NewConversation()
	c.Append(types.Message{Role: "user", Content: "hola"})
	c.Append(types.Message{Role: "assistant", Content: "buenos días"})
	c.Append(types.Message{Role: "user", Content: "quiero una cita"})

	if got := c.Turns(); got != 2 {
		t.Errorf("turns = %d", got)
	}

	tail := c.Tail(2)
	if len(tail) != 2 || tail[0].Content != "buenos días" || tail[1].Content != "quiero una cita" {
		t.Errorf("tail = %+v", tail)
	}
	if got := c.Tail(10); len(got) != 3 {
		t.Errorf("oversized tail = %d entries", len(got))
	}

	// History returns a copy; mutating it leaves the conversation intact.
	hist := c.History()
	hist[0].Content = "mutated"
	if c.History()[0].Content != "hola" {
		t.Error("history copy leaked internal state")
	}
}

func TestConversationMode(t *testing.T) {
	c := NewConversation()
	if c.Mode() != types.ModeNone {
		t.Errorf("initial mode = %q", c.Mode())
	}

	c.SetMode(types.ModeCreateAppt)
	if c.Mode() != types.ModeCreateAppt {
		t.Errorf("mode = %q", c.Mode())
	}

	c.SetMode(types.ConversationMode("bogus"))
	if c.Mode() != types.ModeCreateAppt {
		t.Error("invalid mode replaced a valid one")
	}
}
