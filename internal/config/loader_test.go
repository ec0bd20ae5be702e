package config

import (
	"strings"
	"testing"
)

const minimalYAML = `
providers:
  stt:
    api_key: dg-key
  tts:
    api_key: el-key
    voice_id: v-123
  llm:
    api_key: gq-key
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Agent.Greeting != DefaultGreeting || cfg.Agent.Farewell != DefaultFarewell {
		t.Error("default phrases not applied")
	}
	if cfg.Agent.Timezone != "America/Cancun" {
		t.Errorf("timezone = %q", cfg.Agent.Timezone)
	}
	if cfg.Limits.MaxCallSeconds != 600 || cfg.Limits.SilenceSeconds != 30 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.Providers.STT.Language != "es-419" {
		t.Errorf("stt language = %q", cfg.Providers.STT.Language)
	}
	if cfg.Weather.CacheMinutes != 30 {
		t.Errorf("weather cache = %d", cfg.Weather.CacheMinutes)
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("VOCERIA_TEST_KEY", "expanded-key")

	yaml := strings.Replace(minimalYAML, "dg-key", "${VOCERIA_TEST_KEY}", 1)
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.APIKey != "expanded-key" {
		t.Errorf("api_key = %q", cfg.Providers.STT.APIKey)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := minimalYAML + "\nmystery_section:\n  foo: bar\n"
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown top-level field accepted")
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	yaml := `
server:
  log_level: loud
providers:
  stt:
    api_key: dg-key
  tts:
    api_key: el-key
    voice_id: v-123
  llm:
    api_key: gq-key
telephony:
  account_sid: AC123
agent:
  timezone: Mars/Olympus
limits:
  max_call_seconds: -1
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "auth_token", "timezone", "max_call_seconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRequiresProviderKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_addr: ':9000'\n"))
	if err == nil {
		t.Fatal("config without provider keys accepted")
	}
	for _, want := range []string{"stt.api_key", "tts.api_key", "tts.voice_id", "llm.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
