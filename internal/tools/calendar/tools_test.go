package calendar

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
)

func TestHandleProcessAppointmentArgMapping(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	cache := newTestCache(t, &fakeFetcher{})
	s := NewService(cache, nil, log)

	res := s.HandleProcessAppointment(context.Background(), map[string]any{
		"user_query_for_date_time":       "el viernes por la tarde",
		"fixed_weekday_param":            "viernes",
		"explicit_time_preference_param": "tarde",
	})
	if res["status"] != "SLOT_LIST" || res["date_iso"] != "2026-08-28" {
		t.Errorf("result = %v", res)
	}
}

func TestHandleCreateValidation(t *testing.T) {
	cache := newTestCache(t, &fakeFetcher{})
	s := NewService(cache, nil, slog.New(slog.DiscardHandler))

	res := s.HandleCreate(context.Background(), map[string]any{
		"name": "Ana", "phone": "9985322821", "reason": "consulta",
		"start_time": "el martes", "end_time": "2026-08-25T10:15:00-05:00",
	})
	if res["status"] != "validation_error" {
		t.Errorf("result = %v", res)
	}

	// Booking into the past is rejected before the webhook is called.
	res = s.HandleCreate(context.Background(), map[string]any{
		"name": "Ana", "phone": "9985322821", "reason": "consulta",
		"start_time": "2020-01-01T09:30:00-05:00", "end_time": "2020-01-01T10:15:00-05:00",
	})
	if res["status"] != "validation_error" {
		t.Errorf("result = %v", res)
	}
}

func TestHandleCreateSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "evt-9"})
	})
	cache := newTestCache(t, &fakeFetcher{})
	s := NewService(cache, client, slog.New(slog.DiscardHandler))

	res := s.HandleCreate(context.Background(), map[string]any{
		"name": "Ana", "phone": "9985322821", "reason": "consulta",
		"start_time": "2026-08-25T09:30:00-05:00", "end_time": "2026-08-25T10:15:00-05:00",
	})
	if res["status"] != "success" || res["event_id"] != "evt-9" {
		t.Errorf("result = %v", res)
	}
}

func TestHandleSearchStatuses(t *testing.T) {
	tests := []struct {
		name    string
		results []map[string]string
		want    string
	}{
		{name: "none", results: nil, want: "not_found"},
		{name: "one", results: []map[string]string{
			{"id": "evt-1", "name": "Ana", "start_time_iso": "2026-08-25T09:30:00-05:00"},
		}, want: "found"},
		{name: "several", results: []map[string]string{
			{"id": "evt-1"}, {"id": "evt-2"},
		}, want: "multiple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"search_results": tt.results})
			})
			s := NewService(newTestCache(t, &fakeFetcher{}), client, slog.New(slog.DiscardHandler))

			res := s.HandleSearch(context.Background(), map[string]any{"phone": "9985322821"})
			if res["status"] != tt.want {
				t.Errorf("status = %v, want %v", res["status"], tt.want)
			}
			if tt.want == "found" && res["event_id"] != "evt-1" {
				t.Errorf("result = %v", res)
			}
		})
	}
}

func TestHandleEditAndDelete(t *testing.T) {
	var lastPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lastPath = r.URL.Path
		w.Write([]byte("{}"))
	})
	s := NewService(newTestCache(t, &fakeFetcher{}), client, slog.New(slog.DiscardHandler))

	res := s.HandleEdit(context.Background(), map[string]any{
		"event_id":           "evt-1",
		"new_start_time_iso": "2026-08-26T09:30:00-05:00",
		"new_end_time_iso":   "2026-08-26T10:15:00-05:00",
	})
	if res["status"] != "success" || lastPath != "/edit-calendar-event" {
		t.Errorf("result = %v, path = %q", res, lastPath)
	}

	res = s.HandleDelete(context.Background(), map[string]any{
		"event_id":                "evt-1",
		"original_start_time_iso": "2026-08-25T09:30:00-05:00",
	})
	if res["status"] != "success" || lastPath != "/delete-calendar-event" {
		t.Errorf("result = %v, path = %q", res, lastPath)
	}
}

func TestHandleEditRejectsBadDate(t *testing.T) {
	s := NewService(newTestCache(t, &fakeFetcher{}), nil, slog.New(slog.DiscardHandler))

	res := s.HandleEdit(context.Background(), map[string]any{
		"event_id":           "evt-1",
		"new_start_time_iso": "el jueves",
		"new_end_time_iso":   "",
	})
	if res["status"] != "error" {
		t.Errorf("result = %v", res)
	}
}

func TestDefinitionsCoverAllTools(t *testing.T) {
	s := NewService(nil, nil, slog.New(slog.DiscardHandler))
	defs := s.Definitions()
	want := []string{
		"process_appointment_request", "create_calendar_event",
		"search_calendar_event_by_phone", "edit_calendar_event",
		"delete_calendar_event",
	}
	if len(defs) != len(want) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}
