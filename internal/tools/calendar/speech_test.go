package calendar

import "testing"

func TestHourToWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09:30", "las nueve y media de la mañana"},
		{"10:15", "las diez quince de la mañana"},
		{"11:00", "las once en punto de la mañana"},
		{"11:45", "las once cuarenta y cinco de la mañana"},
		{"12:30", "las doce treinta del mediodía"},
		{"13:15", "las una quince de la tarde"},
		{"14:00", "las dos en punto de la tarde"},
		{"19:00", "las siete en punto de la noche"},
		{"00:15", "las doce quince de la madrugada"},
	}
	for _, tt := range tests {
		if got := HourToWords(tt.in); got != tt.want {
			t.Errorf("HourToWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHourToWordsMalformed(t *testing.T) {
	for _, in := range []string{"", "930", "25:00", "09:61", "ab:cd"} {
		if got := HourToWords(in); got != in {
			t.Errorf("HourToWords(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestTextTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09:30", "9:30am"},
		{"12:30", "12:30pm"},
		{"14:00", "2:00pm"},
		{"00:05", "12:05am"},
	}
	for _, tt := range tests {
		if got := TextTime(tt.in); got != tt.want {
			t.Errorf("TextTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
