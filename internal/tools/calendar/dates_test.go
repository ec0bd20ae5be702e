package calendar

import (
	"testing"
	"time"
)

// Monday, 24 August 2026.
var testToday = time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)

func TestParseRelativeDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"hoy", testToday},
		{"hoy mismo", testToday},
		{"mañana", testToday.AddDate(0, 0, 1)},
		{"para mañana", testToday.AddDate(0, 0, 1)},
		{"pasado mañana", testToday.AddDate(0, 0, 2)},
		{"para esta semana", testToday},
		{"de hoy en ocho", testToday.AddDate(0, 0, 7)},
		{"de mañana en ocho", testToday.AddDate(0, 0, 8)},
		{"de hoy en quince", testToday.AddDate(0, 0, 15)},
		{"en 3 días", testToday.AddDate(0, 0, 3)},
		{"en dos semanas", testToday.AddDate(0, 0, 14)},
		{"en un mes", time.Time{}},
		{"en 2 meses", testToday.AddDate(0, 2, 0)},
		{"la semana que viene", testToday.AddDate(0, 0, 7)},
		{"fin de semana", testToday.AddDate(0, 0, 5)},
		{"cuando se pueda", time.Time{}},
	}
	for _, tt := range tests {
		got := parseRelativeDate(tt.in, testToday)
		if !got.Equal(tt.want) {
			t.Errorf("parseRelativeDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"por la mañana", "mañana"},
		{"tempranito si se puede", "mañana"},
		{"en la tarde", "tarde"},
		{"tardecita", "tarde"},
		{"a la hora de la comida", "mediodia"},
		{"al mediodía", "mediodia"},
		{"por la noche", "fuera_horario"},
		{"de madrugada", "fuera_horario"},
		{"el martes", ""},
	}
	for _, tt := range tests {
		if got := parseTimeOfDay(tt.in); got != tt.want {
			t.Errorf("parseTimeOfDay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDaysUntilNext(t *testing.T) {
	// testToday is a Monday; the next Monday is a week out, never today.
	if got := daysUntilNext(testToday, time.Monday); got != 7 {
		t.Errorf("daysUntilNext(Monday) = %d, want 7", got)
	}
	if got := daysUntilNext(testToday, time.Saturday); got != 5 {
		t.Errorf("daysUntilNext(Saturday) = %d, want 5", got)
	}
}
