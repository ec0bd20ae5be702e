package engine

import (
	"strings"
	"testing"

	"github.com/atelic-ai/voceria/pkg/types"
)

// firstTemplate pins the random pick for deterministic assertions.
func firstTemplate(t *testing.T) {
	t.Helper()
	orig := pickTemplate
	pickTemplate = func(options []string) string { return options[0] }
	t.Cleanup(func() { pickTemplate = orig })
}

func TestSyntheticSlotList(t *testing.T) {
	firstTemplate(t)

	got := SyntheticResponse("process_appointment_request", types.ToolResult{
		"status":           "SLOT_LIST",
		"date_iso":         "2026-08-25",
		"available_pretty": []string{"nueve treinta", "diez quince", "once en punto", "doce y media"},
	})

	want := "Para el Martes 25 de Agosto, tengo disponible: nueve treinta o diez quince o once en punto. ¿Alguna de estas horas le funciona?"
	if got != want {
		t.Errorf("SyntheticResponse = %q, want %q", got, want)
	}
}

func TestSyntheticSlotListCapsOptions(t *testing.T) {
	firstTemplate(t)

	got := SyntheticResponse("process_appointment_request", types.ToolResult{
		"status":           "SLOT_LIST",
		"date_iso":         "2026-08-25",
		"available_pretty": []any{"a", "b", "c", "d", "e"},
	})
	if strings.Count(got, " o ") != 2 {
		t.Errorf("spoken slots = %q, want at most three options", got)
	}
}

func TestSyntheticErrorKeying(t *testing.T) {
	firstTemplate(t)

	// No status: the presence of an error key selects the error templates.
	got := SyntheticResponse("create_calendar_event", types.ToolResult{
		"error":   "calendar webhook unreachable",
		"details": "dial tcp: timeout",
	})
	if got != "Hubo un problema al crear la cita. Permítame intentar nuevamente." {
		t.Errorf("SyntheticResponse = %q, want the error template", got)
	}
}

func TestSyntheticExplicitStatusWins(t *testing.T) {
	firstTemplate(t)

	got := SyntheticResponse("create_calendar_event", types.ToolResult{
		"status": "validation_error",
		"error":  "start_time in the past",
	})
	if got != "Disculpe, hubo un error con la fecha. Permítame corregirlo." {
		t.Errorf("SyntheticResponse = %q, want the validation_error template", got)
	}
}

func TestSyntheticUnknownTool(t *testing.T) {
	got := SyntheticResponse("unknown_tool", types.ToolResult{"status": "success"})
	if got != syntheticDone {
		t.Errorf("SyntheticResponse = %q, want the generic done phrase", got)
	}

	got = SyntheticResponse("unknown_tool", types.ToolResult{"error": "boom"})
	if got != syntheticError {
		t.Errorf("SyntheticResponse = %q, want the generic error phrase", got)
	}
}

func TestSyntheticUnknownStatusFallsBack(t *testing.T) {
	got := SyntheticResponse("edit_calendar_event", types.ToolResult{"status": "weird_status"})
	if got != syntheticDone {
		t.Errorf("SyntheticResponse = %q, want the generic done phrase", got)
	}
}

func TestSyntheticUnfilledSlotSurvives(t *testing.T) {
	firstTemplate(t)

	// A found-appointment result without the pretty date keeps the slot
	// marker rather than panicking or emitting garbage.
	got := SyntheticResponse("search_calendar_event_by_phone", types.ToolResult{
		"status": "found",
	})
	if !strings.Contains(got, "{pretty_date}") {
		t.Errorf("SyntheticResponse = %q, want the unfilled slot left in place", got)
	}
}
