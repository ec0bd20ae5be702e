package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

func fixedClock() func() time.Time {
	// 2026-08-24 is a Monday; 15:00 UTC is 10:00 in Cancún (UTC-5).
	return func() time.Time {
		return time.Date(2026, time.August, 24, 15, 0, 0, 0, time.UTC)
	}
}

func newTestBuilder(t *testing.T, opts ...PromptOption) *PromptBuilder {
	t.Helper()
	opts = append([]PromptOption{WithClock(fixedClock())}, opts...)
	b, err := NewPromptBuilder("# IDENTIDAD\nEres Alex, el asistente.", []types.ToolDefinition{
		{Name: "end_call", Description: "Cierra la conversación.", Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"reason": map[string]any{"type": "string"}},
		}},
	}, opts...)
	if err != nil {
		t.Fatalf("NewPromptBuilder: %v", err)
	}
	return b
}

func TestSpanishDate(t *testing.T) {
	d := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	if got, want := SpanishDate(d), "Lunes 24 de Agosto de 2026"; got != want {
		t.Errorf("SpanishDate = %q, want %q", got, want)
	}
}

func TestBuildPromptStructure(t *testing.T) {
	b := newTestBuilder(t)
	history := []types.Message{
		{Role: "user", Content: "hola buenas"},
		{Role: "assistant", Content: "¡Hola! ¿En qué puedo ayudarle?"},
	}

	got := b.Build(history, types.ModeNone, "Cielo despejado, 29 grados.")

	if !strings.HasPrefix(got, "<|begin_of_text|><|start_header_id|>system<|end_header_id|>") {
		t.Error("prompt does not start with the system header")
	}
	if !strings.HasSuffix(got, "<|start_header_id|>assistant<|end_header_id|>\n\n") {
		t.Error("prompt does not end with the assistant cue")
	}
	for _, want := range []string{
		"Hoy es Lunes 24 de Agosto de 2026",
		"Hora actual en Cancún: 10:00",
		"# CLIMA ACTUAL EN CANCÚN\nCielo despejado, 29 grados.",
		"# IDENTIDAD\nEres Alex",
		"## HERRAMIENTAS DISPONIBLES",
		`"name": "end_call"`,
		"<|start_header_id|>user<|end_header_id|>\n\nhola buenas<|eot_id|>",
		"<|start_header_id|>assistant<|end_header_id|>\n\n¡Hola! ¿En qué puedo ayudarle?<|eot_id|>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "# CONTEXTO ACTIVO") {
		t.Error("mode context present without an active mode")
	}
}

func TestBuildPromptActiveMode(t *testing.T) {
	b := newTestBuilder(t)

	got := b.Build(nil, types.ModeCreateAppt, "")

	if !strings.Contains(got, "# CONTEXTO ACTIVO") {
		t.Fatal("mode context missing")
	}
	if !strings.Contains(got, `"active_mode":"create_appt"`) {
		t.Error("active mode not serialised")
	}
}

func TestBuildPromptRendersToolResultsAsSystem(t *testing.T) {
	b := newTestBuilder(t)
	history := []types.Message{
		{Role: "user", Content: "busca mi cita"},
		{Role: "tool", ToolName: "search_calendar_event_by_phone", Content: `{"status":"not_found"}`},
	}

	got := b.Build(history, types.ModeNone, "")
	if !strings.Contains(got, "<|start_header_id|>system<|end_header_id|>\n\n{\"status\":\"not_found\"}<|eot_id|>") {
		t.Error("tool message not rendered as a system turn")
	}
}

func TestBuildPromptTrimsOldestFirst(t *testing.T) {
	// A budget small enough to hold only a few turns: the system block and
	// the newest messages survive, the oldest are dropped.
	b := newTestBuilder(t, WithMaxPromptTokens(1200))

	var history []types.Message
	for i := 0; i < 50; i++ {
		history = append(history, types.Message{
			Role:    "user",
			Content: fmt.Sprintf("mensaje número %02d con algo de relleno para ocupar espacio", i),
		})
	}

	got := b.Build(history, types.ModeNone, "")

	if !strings.Contains(got, "## HERRAMIENTAS DISPONIBLES") {
		t.Error("system block was trimmed")
	}
	if !strings.Contains(got, "mensaje número 49") {
		t.Error("most recent message was trimmed")
	}
	if strings.Contains(got, "mensaje número 00") {
		t.Error("oldest message survived past the budget")
	}
	for i := 1; i < 49; i++ {
		cur := fmt.Sprintf("mensaje número %02d", i)
		next := fmt.Sprintf("mensaje número %02d", i+1)
		if strings.Contains(got, cur) && !strings.Contains(got, next) {
			t.Errorf("kept %s but dropped newer %s", cur, next)
		}
	}
}
