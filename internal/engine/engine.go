// Package engine runs the decision turn: prompt assembly, streaming model
// decode, tool-call parsing and dispatch, and the final spoken reply.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/pkg/provider/llm"
	"github.com/atelic-ai/voceria/pkg/types"
)

// apologyText is spoken verbatim when the model transport fails. It is never
// written to history; the turn can be retried by the caller speaking again.
const apologyText = "Lo siento, hay un problema con la conexión al asistente. Por favor, intente de nuevo."

// defaultTemperature keeps replies conversational without drifting off the
// persona instructions.
const defaultTemperature = 0.7

// Conversation is the engine's narrow view of the call: read the history and
// mode, append messages. The controller owns the underlying state; the engine
// never holds a reference back to it.
type Conversation interface {
	History() []types.Message
	Append(m types.Message)
	Mode() types.ConversationMode
}

// ToolRunner executes parsed tool calls. Execution failures surface inside
// the returned result, never as a Go error.
type ToolRunner interface {
	Definitions() []types.ToolDefinition
	Execute(ctx context.Context, call types.ToolCall) types.ToolResult
}

// WeatherFunc supplies the ambient weather snippet for the system prompt, or
// "" when unavailable.
type WeatherFunc func(ctx context.Context) string

// TurnResult is the outcome of one decision turn.
type TurnResult struct {
	// Reply is the text to speak. Empty only when EndCall is set.
	Reply string

	// EndCall is set when a tool requested call termination; the caller
	// moves to the farewell flow instead of speaking Reply.
	EndCall bool

	// EndReason is the termination reason reported by the tool.
	EndReason string

	// TimeToFirstToken measures model latency for diagnostics.
	TimeToFirstToken time.Duration
}

// Engine orchestrates decision turns. At most one turn per call runs at a
// time; the controller serialises calls into Turn.
type Engine struct {
	model       llm.Provider
	tools       ToolRunner
	prompts     *PromptBuilder
	parser      *Parser
	weather     WeatherFunc
	temperature float64
	metrics     *observe.Metrics
	log         *slog.Logger
}

// Option is a functional option for [Engine].
type Option func(*Engine)

// WithMetrics records turn latency on the given instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine. weather may be nil.
func New(model llm.Provider, tools ToolRunner, prompts *PromptBuilder, weather WeatherFunc, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		model:       model,
		tools:       tools,
		prompts:     prompts,
		parser:      NewParser(tools.Definitions()),
		weather:     weather,
		temperature: defaultTemperature,
		log:         log,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Turn runs one decision turn against conv. The returned Reply is ready to
// speak; history has been updated with tool and assistant messages.
//
// Transport failures fail soft: the fixed apology is returned and history
// gains nothing beyond the user message already present.
func (e *Engine) Turn(ctx context.Context, conv Conversation) TurnResult {
	start := time.Now()
	res := e.turn(ctx, conv)
	if e.metrics != nil {
		e.metrics.RecordTurn(ctx, time.Since(start), res.TimeToFirstToken)
	}
	return res
}

func (e *Engine) turn(ctx context.Context, conv Conversation) TurnResult {
	var weather string
	if e.weather != nil {
		weather = e.weather(ctx)
	}
	prompt := e.prompts.Build(conv.History(), conv.Mode(), weather)

	raw, ttft, ok := e.decode(ctx, prompt)
	if !ok {
		return TurnResult{Reply: apologyText, TimeToFirstToken: ttft}
	}

	userFacing := StripToolCalls(raw)
	calls := e.parser.Parse(raw)

	if len(calls) == 0 {
		// A whitespace-only completion has nothing to speak and nothing worth
		// remembering; an empty assistant entry would skew later prompts.
		if strings.TrimSpace(userFacing) == "" {
			e.log.Warn("model produced no user-facing text")
			return TurnResult{TimeToFirstToken: ttft}
		}
		conv.Append(types.Message{Role: "assistant", Content: userFacing})
		return TurnResult{Reply: userFacing, TimeToFirstToken: ttft}
	}

	results := e.dispatch(ctx, calls)

	// Tool messages precede the assistant message for the same turn.
	for i, call := range calls {
		content, err := json.Marshal(results[i])
		if err != nil {
			content = []byte(`{"error":"unserializable result"}`)
		}
		conv.Append(types.Message{Role: "tool", ToolName: call.Name, Content: string(content)})
	}

	for i, result := range results {
		if result.Terminates() {
			conv.Append(types.Message{Role: "assistant", Content: raw})
			reason, _ := result["reason"].(string)
			e.log.Info("tool requested call termination",
				"tool", calls[i].Name, "reason", reason)
			return TurnResult{EndCall: true, EndReason: reason, TimeToFirstToken: ttft}
		}
	}

	if userFacing == "" {
		userFacing = SyntheticResponse(calls[0].Name, results[0])
		if userFacing == "" {
			userFacing = syntheticProcessed
		}
	}
	conv.Append(types.Message{Role: "assistant", Content: userFacing})
	return TurnResult{Reply: userFacing, TimeToFirstToken: ttft}
}

// decode streams the completion into a single string. ok is false on
// transport failure, before or during the stream.
func (e *Engine) decode(ctx context.Context, prompt string) (raw string, ttft time.Duration, ok bool) {
	start := time.Now()
	stream, err := e.model.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: e.temperature,
	})
	if err != nil {
		e.log.Error("completion failed to start", "err", err)
		return "", 0, false
	}

	first := true
	for chunk := range stream {
		if chunk.FinishReason == "error" {
			e.log.Error("completion stream failed", "detail", chunk.Text)
			return "", ttft, false
		}
		if first && chunk.Text != "" {
			ttft = time.Since(start)
			first = false
			e.log.Debug("time to first token", "ttft", ttft)
		}
		raw += chunk.Text
	}
	return raw, ttft, true
}

// dispatch executes the calls concurrently, preserving result order.
func (e *Engine) dispatch(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			results[i] = e.tools.Execute(gctx, call)
			e.log.Info("tool executed",
				"tool", call.Name, "elapsed", time.Since(start))
			return nil
		})
	}
	g.Wait()
	return results
}
