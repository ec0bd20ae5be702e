// Package types defines the shared types used across all Voceria packages.
//
// These types form the lingua franca between providers, the decision engine,
// the tool registry, and the call controller. They are intentionally minimal —
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// Message represents a single message in the conversation history of a call.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolName is set when Role is "tool", naming the tool that produced Content.
	ToolName string
}

// ToolCall represents a tool invocation extracted from LLM output.
type ToolCall struct {
	// Name is the tool's unique identifier.
	Name string

	// Arguments holds the parsed argument values keyed by parameter name.
	Arguments map[string]any
}

// ToolResult is the structured outcome of a tool execution. It is always
// JSON-serialisable; executors signal failure through the "error" key rather
// than by returning Go errors across the registry boundary.
type ToolResult map[string]any

// TerminateKey is the reserved result key meaning "close the call after the
// current utterance".
const TerminateKey = "__terminate__"

// Terminates reports whether the result carries the terminate flag.
func (r ToolResult) Terminates() bool {
	v, ok := r[TerminateKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// IsError reports whether the result carries an "error" key.
func (r ToolResult) IsError() bool {
	_, ok := r["error"]
	return ok
}

// ToolDefinition describes a tool that can be offered to the LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// ConversationMode nudges prompt assembly towards the workflow the assistant
// is currently driving.
type ConversationMode string

const (
	ModeNone        ConversationMode = ""
	ModeCaptureLead ConversationMode = "capture_lead"
	ModeCreateAppt  ConversationMode = "create_appt"
	ModeEditAppt    ConversationMode = "edit_appt"
	ModeDeleteAppt  ConversationMode = "delete_appt"
)

// IsValid reports whether m is a recognised conversation mode.
func (m ConversationMode) IsValid() bool {
	switch m {
	case ModeNone, ModeCaptureLead, ModeCreateAppt, ModeEditAppt, ModeDeleteAppt:
		return true
	}
	return false
}
