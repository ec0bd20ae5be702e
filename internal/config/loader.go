package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, expands ${ENV} references,
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${ENV} references,
// applies defaults, and validates the result. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Providers.STT.APIKey == "" {
		errs = append(errs, errors.New("providers.stt.api_key is required"))
	}
	if cfg.Providers.TTS.APIKey == "" {
		errs = append(errs, errors.New("providers.tts.api_key is required"))
	}
	if cfg.Providers.TTS.VoiceID == "" {
		errs = append(errs, errors.New("providers.tts.voice_id is required"))
	}
	if cfg.Providers.LLM.APIKey == "" {
		errs = append(errs, errors.New("providers.llm.api_key is required"))
	}

	if (cfg.Telephony.AccountSID == "") != (cfg.Telephony.AuthToken == "") {
		errs = append(errs, errors.New("telephony.account_sid and telephony.auth_token must be set together"))
	}

	if cfg.Limits.MaxCallSeconds <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_call_seconds %d must be positive", cfg.Limits.MaxCallSeconds))
	}
	if cfg.Limits.SilenceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("limits.silence_seconds %d must be positive", cfg.Limits.SilenceSeconds))
	}

	if _, err := time.LoadLocation(cfg.Agent.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("agent.timezone %q is not a valid IANA zone", cfg.Agent.Timezone))
	}

	return errors.Join(errs...)
}
