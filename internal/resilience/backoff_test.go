package resilience

import (
	"testing"
	"time"
)

func TestBackoffDoubles(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffCap(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Max: 5 * time.Second}

	if got := b.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want cap 5s", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		got := b.Delay(1)
		if got < 1600*time.Millisecond || got > 2400*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within ±20%% of 2s", got)
		}
	}
}

func TestBackoffDefaultFactor(t *testing.T) {
	b := Backoff{Base: time.Second}

	if got := b.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s with the default factor", got)
	}
}
