package tools

import (
	"context"

	"github.com/atelic-ai/voceria/pkg/types"
)

// defaultEndReason is reported when the model closes the call without giving
// a reason of its own.
const defaultEndReason = "assistant_request"

// RegisterBuiltins wires the control tools that every call gets regardless of
// business configuration: end_call and set_mode. setMode receives the
// validated mode; it must be safe to call from a tool worker goroutine.
func RegisterBuiltins(r *Registry, setMode func(types.ConversationMode)) error {
	if err := r.Register(types.ToolDefinition{
		Name:        "end_call",
		Description: "Termina la llamada actual. Úsala cuando el usuario se despida o pida colgar.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Motivo del cierre, por ejemplo user_request o no_response.",
				},
			},
		},
	}, endCall); err != nil {
		return err
	}

	return r.Register(types.ToolDefinition{
		Name:        "set_mode",
		Description: "Activa el módulo de conversación que corresponde a la intención del usuario.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{
					"type": "string",
					"enum": []any{
						string(types.ModeCaptureLead),
						string(types.ModeCreateAppt),
						string(types.ModeEditAppt),
						string(types.ModeDeleteAppt),
					},
				},
			},
			"required": []any{"mode"},
		},
	}, setModeHandler(setMode))
}

func endCall(_ context.Context, args map[string]any) types.ToolResult {
	reason, _ := args["reason"].(string)
	if reason == "" {
		reason = defaultEndReason
	}
	return types.ToolResult{
		"action":           "end_call",
		"reason":           reason,
		types.TerminateKey: true,
	}
}

func setModeHandler(setMode func(types.ConversationMode)) Handler {
	return func(_ context.Context, args map[string]any) types.ToolResult {
		raw, _ := args["mode"].(string)
		mode := types.ConversationMode(raw)
		if !mode.IsValid() || mode == types.ModeNone {
			return types.ToolResult{"error": "unknown mode: " + raw}
		}
		if setMode != nil {
			setMode(mode)
		}
		return types.ToolResult{"status": "success", "mode": raw}
	}
}
