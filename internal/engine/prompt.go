package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

// charsPerToken approximates the prompt budget without a tokenizer.
const charsPerToken = 3

var spanishDays = map[time.Weekday]string{
	time.Monday:    "Lunes",
	time.Tuesday:   "Martes",
	time.Wednesday: "Miércoles",
	time.Thursday:  "Jueves",
	time.Friday:    "Viernes",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

var spanishMonths = map[time.Month]string{
	time.January:   "Enero",
	time.February:  "Febrero",
	time.March:     "Marzo",
	time.April:     "Abril",
	time.May:       "Mayo",
	time.June:      "Junio",
	time.July:      "Julio",
	time.August:    "Agosto",
	time.September: "Septiembre",
	time.October:   "Octubre",
	time.November:  "Noviembre",
	time.December:  "Diciembre",
}

// SpanishDate renders t as "Lunes 24 de Agosto de 2026".
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%s %d de %s de %d",
		spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()], t.Year())
}

// PromptBuilder assembles the single native prompt string sent to the model:
// system block (clock, weather, persona, tool schemas, active mode) followed
// by the conversation rendered in the model's chat template.
type PromptBuilder struct {
	persona   string
	tools     []types.ToolDefinition
	toolsJSON string
	maxTokens int
	location  *time.Location
	now       func() time.Time
}

// PromptOption is a functional option for [PromptBuilder].
type PromptOption func(*PromptBuilder)

// WithMaxPromptTokens overrides the prompt budget.
func WithMaxPromptTokens(n int) PromptOption {
	return func(b *PromptBuilder) {
		b.maxTokens = n
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) PromptOption {
	return func(b *PromptBuilder) {
		b.now = now
	}
}

// NewPromptBuilder creates a builder for the given persona text and tool set.
func NewPromptBuilder(persona string, tools []types.ToolDefinition, opts ...PromptOption) (*PromptBuilder, error) {
	loc, err := time.LoadLocation("America/Cancun")
	if err != nil {
		return nil, fmt.Errorf("engine: load timezone: %w", err)
	}

	schemas := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schema := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if t.Parameters != nil {
			schema["parameters"] = t.Parameters
		}
		schemas = append(schemas, schema)
	}
	toolsJSON, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("engine: marshal tool schemas: %w", err)
	}

	b := &PromptBuilder{
		persona:   persona,
		tools:     tools,
		toolsJSON: string(toolsJSON),
		maxTokens: 120_000,
		location:  loc,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Build renders the full prompt for one turn. weather may be empty.
func (b *PromptBuilder) Build(history []types.Message, mode types.ConversationMode, weather string) string {
	now := b.now().In(b.location)

	var sys strings.Builder
	fmt.Fprintf(&sys, "# FECHA Y HORA ACTUAL\nHoy es %s. Hora actual en Cancún: %s.\n",
		SpanishDate(now), now.Format("15:04"))
	fmt.Fprintf(&sys, "IMPORTANTE: Todas las citas deben ser para %d o años posteriores.\n", now.Year())
	if weather != "" {
		fmt.Fprintf(&sys, "\n# CLIMA ACTUAL EN CANCÚN\n%s\n", weather)
	}
	sys.WriteString("\n# INSTRUCCIÓN DE TONO\nResponde siempre de forma conversacional, cálida, humana y natural. No seas robótico ni demasiado formal.\n")
	sys.WriteString(b.persona)
	fmt.Fprintf(&sys, "\n\n## HERRAMIENTAS DISPONIBLES\n%s", b.toolsJSON)
	if mode != types.ModeNone {
		modeCtx, _ := json.Marshal(map[string]string{
			"active_mode": string(mode),
			"action":      fmt.Sprintf("Sigue estrictamente las instrucciones del módulo <module id='%s'>", mode),
		})
		fmt.Fprintf(&sys, "\n\n# CONTEXTO ACTIVO\n%s", modeCtx)
	}

	head := fmt.Sprintf("<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\n%s<|eot_id|>", sys.String())
	tail := "<|start_header_id|>assistant<|end_header_id|>\n\n"

	rendered := make([]string, 0, len(history))
	for _, m := range history {
		role := m.Role
		switch role {
		case "user", "assistant":
		case "tool":
			// The chat template has no tool role; tool results ride as
			// system turns.
			role = "system"
		default:
			continue
		}
		rendered = append(rendered,
			fmt.Sprintf("<|start_header_id|>%s<|end_header_id|>\n\n%s<|eot_id|>", role, m.Content))
	}

	// Budget the middle: keep the system block and the most recent messages,
	// dropping the oldest first.
	budget := b.maxTokens*charsPerToken - len(head) - len(tail)
	var middle strings.Builder
	start := 0
	total := 0
	for i := len(rendered) - 1; i >= 0; i-- {
		if total+len(rendered[i]) > budget {
			start = i + 1
			break
		}
		total += len(rendered[i])
	}
	for _, r := range rendered[start:] {
		middle.WriteString(r)
	}

	return head + middle.String() + tail
}
