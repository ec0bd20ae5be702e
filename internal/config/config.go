// Package config provides the configuration schema and loader for the
// Voceria gateway.
package config

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default phrases, spoken verbatim. Overridable per deployment.
const (
	DefaultGreeting = "Hola, gracias por comunicarte con I-A Factory Cancún. ¿En qué puedo ayudarte hoy?"
	DefaultFarewell = "Fue un placer atenderle. Que tenga un excelente día. ¡Hasta luego!"
	DefaultApology  = "Disculpe, tuve un problema técnico. ¿Podría repetir?"
)

// DefaultPersona is the system-prompt identity used when the deployment does
// not configure its own.
const DefaultPersona = "Eres Alex, recepcionista telefónica de I-A Factory en Cancún. " +
	"Hablas únicamente en español, con frases cortas y naturales para voz. " +
	"Atiendes dudas sobre los servicios de automatización con inteligencia artificial, " +
	"agendas citas y capturas datos de contacto de posibles clientes."

const (
	defaultListenAddr      = ":8080"
	defaultMaxCallSeconds  = 600
	defaultSilenceSeconds  = 30
	defaultSTTModel        = "nova-2"
	defaultSTTLanguage     = "es-419"
	defaultLLMModel        = "llama-3.3-70b-versatile"
	defaultTTSModel        = "eleven_multilingual_v2"
	defaultCancunTimezone  = "America/Cancun"
	defaultWeatherCacheMin = 30
)

// Config is the root configuration, loaded from YAML with [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Limits    LimitsConfig    `yaml:"limits"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Weather   WeatherConfig   `yaml:"weather"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// PublicHost is the externally reachable host used in the media-stream
	// URL handed to the telephony provider (e.g. "voceria.example.com").
	PublicHost string `yaml:"public_host"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TelephonyConfig holds the provider control-channel credentials and call
// assets.
type TelephonyConfig struct {
	// AccountSID and AuthToken authenticate the REST control channel used
	// for the farewell hang-up. Empty disables out-of-band hang-ups.
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`

	// HoldTonePath points at a μ-law WAV looped while the call warms up.
	HoldTonePath string `yaml:"hold_tone_path"`
}

// ProvidersConfig declares credentials and models for each pipeline stage.
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	TTS TTSConfig `yaml:"tts"`
	LLM LLMConfig `yaml:"llm"`
}

// STTConfig configures the speech-recognition stream.
type STTConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	Model   string `yaml:"model"`
}

// LLMConfig configures the decision model.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AgentConfig holds the persona and the fixed call phrases.
type AgentConfig struct {
	// Persona is the system-prompt identity block.
	Persona string `yaml:"persona"`

	Greeting string `yaml:"greeting"`
	Farewell string `yaml:"farewell"`

	// Apology is spoken on recoverable flow errors.
	Apology string `yaml:"apology"`

	// Timezone is the IANA zone the agent reasons about dates in.
	Timezone string `yaml:"timezone"`
}

// LimitsConfig bounds call volume and duration.
type LimitsConfig struct {
	// DailyCallCap rejects inbound calls past this many per day. Zero or
	// negative means unlimited.
	DailyCallCap int `yaml:"daily_call_cap"`

	MaxCallSeconds int `yaml:"max_call_seconds"`
	SilenceSeconds int `yaml:"silence_seconds"`
}

// CalendarConfig points at the calendar webhook service.
type CalendarConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	AuthToken  string `yaml:"auth_token"`
}

// PostgresConfig holds the lead-store connection string. Empty disables lead
// persistence.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// WeatherConfig points at the weather report endpoint. Empty disables the
// ambient snippet.
type WeatherConfig struct {
	URL string `yaml:"url"`

	// CacheMinutes overrides how long a report is reused.
	CacheMinutes int `yaml:"cache_minutes"`
}

// applyDefaults fills zero values with the deployment defaults.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Providers.STT.Model == "" {
		c.Providers.STT.Model = defaultSTTModel
	}
	if c.Providers.STT.Language == "" {
		c.Providers.STT.Language = defaultSTTLanguage
	}
	if c.Providers.TTS.Model == "" {
		c.Providers.TTS.Model = defaultTTSModel
	}
	if c.Providers.LLM.Model == "" {
		c.Providers.LLM.Model = defaultLLMModel
	}
	if c.Agent.Persona == "" {
		c.Agent.Persona = DefaultPersona
	}
	if c.Agent.Greeting == "" {
		c.Agent.Greeting = DefaultGreeting
	}
	if c.Agent.Farewell == "" {
		c.Agent.Farewell = DefaultFarewell
	}
	if c.Agent.Apology == "" {
		c.Agent.Apology = DefaultApology
	}
	if c.Agent.Timezone == "" {
		c.Agent.Timezone = defaultCancunTimezone
	}
	if c.Limits.MaxCallSeconds == 0 {
		c.Limits.MaxCallSeconds = defaultMaxCallSeconds
	}
	if c.Limits.SilenceSeconds == 0 {
		c.Limits.SilenceSeconds = defaultSilenceSeconds
	}
	if c.Weather.CacheMinutes == 0 {
		c.Weather.CacheMinutes = defaultWeatherCacheMin
	}
}
