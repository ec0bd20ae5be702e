// Package calendar implements the appointment tools: availability search
// over a precomputed free-slot grid, and create/edit/delete/search calls
// against the scheduling webhook service.
package calendar

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

// Service bundles the slot cache and the webhook client behind the five
// appointment tools.
type Service struct {
	cache  *SlotCache
	client *Client
	log    *slog.Logger
}

// NewService wires the tools over an already constructed cache and client.
func NewService(cache *SlotCache, client *Client, log *slog.Logger) *Service {
	return &Service{cache: cache, client: client, log: log}
}

// Cache exposes the slot cache for admin-triggered reloads.
func (s *Service) Cache() *SlotCache { return s.cache }

// Definitions returns the appointment tool definitions in the order they are
// offered to the model.
func (s *Service) Definitions() []types.ToolDefinition {
	return []types.ToolDefinition{
		{
			Name:        "process_appointment_request",
			Description: "Busca horarios de cita disponibles a partir de la fecha y hora que pidió el usuario.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user_query_for_date_time":       map[string]any{"type": "string"},
					"day_param":                      map[string]any{"type": "integer"},
					"month_param":                    map[string]any{"type": "string"},
					"year_param":                     map[string]any{"type": "integer"},
					"fixed_weekday_param":            map[string]any{"type": "string"},
					"explicit_time_preference_param": map[string]any{"type": "string"},
					"is_urgent_param":                map[string]any{"type": "boolean"},
					"more_late_param":                map[string]any{"type": "boolean"},
					"more_early_param":               map[string]any{"type": "boolean"},
				},
				"required": []any{"user_query_for_date_time"},
			},
		},
		{
			Name:        "create_calendar_event",
			Description: "Agenda la cita una vez confirmados nombre, teléfono, motivo y horario.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"phone":      map[string]any{"type": "string"},
					"reason":     map[string]any{"type": "string"},
					"start_time": map[string]any{"type": "string"},
					"end_time":   map[string]any{"type": "string"},
				},
				"required": []any{"name", "phone", "reason", "start_time", "end_time"},
			},
		},
		{
			Name:        "search_calendar_event_by_phone",
			Description: "Busca citas existentes por número de teléfono.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"phone": map[string]any{"type": "string"},
				},
				"required": []any{"phone"},
			},
		},
		{
			Name:        "edit_calendar_event",
			Description: "Cambia la fecha u hora de una cita existente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_id":                  map[string]any{"type": "string"},
					"new_start_time_iso":        map[string]any{"type": "string"},
					"new_end_time_iso":          map[string]any{"type": "string"},
					"new_name":                  map[string]any{"type": "string"},
					"new_reason":                map[string]any{"type": "string"},
					"new_phone_for_description": map[string]any{"type": "string"},
				},
				"required": []any{"event_id", "new_start_time_iso", "new_end_time_iso"},
			},
		},
		{
			Name:        "delete_calendar_event",
			Description: "Cancela una cita existente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_id":                map[string]any{"type": "string"},
					"original_start_time_iso": map[string]any{"type": "string"},
				},
				"required": []any{"event_id", "original_start_time_iso"},
			},
		},
	}
}

// HandleProcessAppointment executes a process_appointment_request call.
func (s *Service) HandleProcessAppointment(ctx context.Context, args map[string]any) types.ToolResult {
	q := Query{
		Text:           stringArg(args, "user_query_for_date_time"),
		Day:            intArg(args, "day_param"),
		Month:          stringArg(args, "month_param"),
		Year:           intArg(args, "year_param"),
		FixedWeekday:   stringArg(args, "fixed_weekday_param"),
		TimePreference: stringArg(args, "explicit_time_preference_param"),
		Urgent:         boolArg(args, "is_urgent_param"),
		MoreLate:       boolArg(args, "more_late_param"),
		MoreEarly:      boolArg(args, "more_early_param"),
	}
	return s.cache.Process(ctx, q)
}

// HandleCreate executes a create_calendar_event call.
func (s *Service) HandleCreate(ctx context.Context, args map[string]any) types.ToolResult {
	name := strings.TrimSpace(stringArg(args, "name"))
	phone := stringArg(args, "phone")
	reason := stringArg(args, "reason")
	startISO := stringArg(args, "start_time")
	endISO := stringArg(args, "end_time")

	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return types.ToolResult{"status": "validation_error", "error": "start_time inválido: " + startISO}
	}
	if _, err := time.Parse(time.RFC3339, endISO); err != nil {
		return types.ToolResult{"status": "validation_error", "error": "end_time inválido: " + endISO}
	}
	if start.Before(s.cache.localNow()) {
		return types.ToolResult{"status": "validation_error", "error": "la fecha solicitada ya pasó"}
	}

	eventID, err := s.client.CreateEvent(ctx, name, phone, reason, startISO, endISO)
	if err != nil {
		s.log.Error("calendar create failed", "err", err)
		return types.ToolResult{"status": "error", "error": "no_se_pudo_crear"}
	}
	return types.ToolResult{
		"status":   "success",
		"event_id": eventID,
		"date_iso": startISO,
	}
}

// HandleSearch executes a search_calendar_event_by_phone call.
func (s *Service) HandleSearch(ctx context.Context, args map[string]any) types.ToolResult {
	phone := stringArg(args, "phone")
	events, err := s.client.SearchByPhone(ctx, phone)
	if err != nil {
		s.log.Error("calendar search failed", "err", err)
		return types.ToolResult{"status": "error", "error": "busqueda_fallida"}
	}

	switch len(events) {
	case 0:
		return types.ToolResult{"status": "not_found"}
	case 1:
		return types.ToolResult{
			"status":   "found",
			"event_id": events[0].ID,
			"name":     events[0].Name,
			"reason":   events[0].Reason,
			"date_iso": events[0].StartISO,
		}
	default:
		summaries := make([]map[string]any, len(events))
		for i, ev := range events {
			summaries[i] = map[string]any{
				"event_id": ev.ID,
				"name":     ev.Name,
				"date_iso": ev.StartISO,
			}
		}
		return types.ToolResult{"status": "multiple", "events": summaries}
	}
}

// HandleEdit executes an edit_calendar_event call.
func (s *Service) HandleEdit(ctx context.Context, args map[string]any) types.ToolResult {
	eventID := stringArg(args, "event_id")
	newStart := stringArg(args, "new_start_time_iso")
	newEnd := stringArg(args, "new_end_time_iso")

	if _, err := time.Parse(time.RFC3339, newStart); err != nil {
		return types.ToolResult{"status": "error", "error": "nueva fecha inválida: " + newStart}
	}

	err := s.client.EditEvent(ctx, eventID, newStart, newEnd,
		stringArg(args, "new_name"), stringArg(args, "new_reason"),
		stringArg(args, "new_phone_for_description"))
	if err != nil {
		s.log.Error("calendar edit failed", "err", err, "event_id", eventID)
		return types.ToolResult{"status": "error", "error": "no_se_pudo_modificar"}
	}
	return types.ToolResult{"status": "success", "event_id": eventID, "date_iso": newStart}
}

// HandleDelete executes a delete_calendar_event call.
func (s *Service) HandleDelete(ctx context.Context, args map[string]any) types.ToolResult {
	eventID := stringArg(args, "event_id")
	err := s.client.DeleteEvent(ctx, eventID, stringArg(args, "original_start_time_iso"))
	if err != nil {
		s.log.Error("calendar delete failed", "err", err, "event_id", eventID)
		return types.ToolResult{"status": "error", "error": "no_se_pudo_cancelar"}
	}
	return types.ToolResult{"status": "success", "event_id": eventID}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
