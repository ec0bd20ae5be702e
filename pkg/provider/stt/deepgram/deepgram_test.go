package deepgram

import (
	"net/url"
	"strings"
	"testing"

	"github.com/atelic-ai/voceria/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(stt.StreamConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	q := u.Query()

	if got := q.Get("model"); got != "nova-2" {
		t.Errorf("model = %q, want nova-2", got)
	}
	if got := q.Get("language"); got != "es" {
		t.Errorf("language = %q, want es", got)
	}
	if got := q.Get("encoding"); got != "mulaw" {
		t.Errorf("encoding = %q, want mulaw", got)
	}
	if got := q.Get("sample_rate"); got != "8000" {
		t.Errorf("sample_rate = %q, want 8000", got)
	}
	if got := q.Get("interim_results"); got != "true" {
		t.Errorf("interim_results = %q, want true", got)
	}
	if got := q.Get("punctuate"); got != "true" {
		t.Errorf("punctuate = %q, want true", got)
	}
}

func TestBuildURL_ConfigOverrides(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(stt.StreamConfig{
		SampleRate: 16000,
		Encoding:   "linear16",
		Channels:   1,
		Language:   "en-US",
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()

	if got := q.Get("model"); got != "base" {
		t.Errorf("model = %q, want base", got)
	}
	if got := q.Get("language"); got != "en-US" {
		t.Errorf("language = %q, want en-US (config wins over option)", got)
	}
	if got := q.Get("sample_rate"); got != "16000" {
		t.Errorf("sample_rate = %q, want 16000", got)
	}
	if got := q.Get("encoding"); got != "linear16" {
		t.Errorf("encoding = %q, want linear16", got)
	}
	if got := q.Get("channels"); got != "1" {
		t.Errorf("channels = %q, want 1", got)
	}
	if !strings.HasPrefix(raw, "wss://api.deepgram.com/v1/listen?") {
		t.Errorf("unexpected endpoint prefix: %q", raw)
	}
}

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantText string
		wantFin  bool
	}{
		{
			name:     "final result",
			raw:      `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hola, ¿qué ofrecen?","confidence":0.98}]}}`,
			wantOK:   true,
			wantText: "hola, ¿qué ofrecen?",
			wantFin:  true,
		},
		{
			name:     "interim result",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hola","confidence":0.71}]}}`,
			wantOK:   true,
			wantText: "hola",
			wantFin:  false,
		},
		{
			name:   "metadata event is ignored",
			raw:    `{"type":"Metadata","duration":1.2}`,
			wantOK: false,
		},
		{
			name:   "no alternatives",
			raw:    `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
			wantOK: false,
		},
		{
			name:   "invalid json",
			raw:    `{not json`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.Text != tt.wantText {
				t.Errorf("text = %q, want %q", tr.Text, tt.wantText)
			}
			if tr.IsFinal != tt.wantFin {
				t.Errorf("isFinal = %v, want %v", tr.IsFinal, tt.wantFin)
			}
		})
	}
}
