// Package tools implements the registry the decision engine dispatches tool
// calls into. The registry coerces arguments against each tool's declared
// schema, bounds concurrent executions with a weighted semaphore, and applies
// a per-call timeout. Failures are reported inside the result map, never as
// Go errors, so the model can react to them in-conversation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/pkg/types"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPoolSize = 8
)

// Handler executes one tool call. Arguments have already been coerced against
// the tool's schema. Handlers report failure through the "error" result key.
type Handler func(ctx context.Context, args map[string]any) types.ToolResult

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

type entry struct {
	def     types.ToolDefinition
	handler Handler
}

// Registry holds the tool set offered to the model and executes calls
// against it. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string

	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout overrides the per-call execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithPoolSize overrides the number of tool executions allowed in flight.
func WithPoolSize(n int) Option {
	return func(r *Registry) { r.sem = semaphore.NewWeighted(int64(n)) }
}

// WithMetrics records tool invocations on the given instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		sem:     semaphore.NewWeighted(defaultPoolSize),
		timeout: defaultTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(def types.ToolDefinition, h Handler) error {
	if def.Name == "" {
		return errors.New("tools: tool name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("tools: nil handler for %s", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns the registered tool definitions in registration order.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Execute runs one tool call. Unknown tools, argument mismatches, pool
// overflow and timeouts all come back as error results.
func (r *Registry) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	res := r.execute(ctx, call)
	if r.metrics != nil {
		status := "ok"
		if _, failed := res["error"]; failed {
			status = "error"
		}
		r.metrics.RecordToolCall(ctx, call.Name, status, time.Since(start))
	}
	return res
}

func (r *Registry) execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return types.ToolResult{"error": "unknown tool: " + call.Name}
	}

	args, err := coerceArguments(e.def.Parameters, call.Arguments)
	if err != nil {
		return types.ToolResult{"error": err.Error()}
	}

	if !r.sem.TryAcquire(1) {
		r.log.Warn("tool pool exhausted", "tool", call.Name)
		return types.ToolResult{"error": "busy"}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan types.ToolResult, 1)
	go func() {
		// The slot is held until the handler actually returns, even when
		// the caller has already given up on it.
		defer r.sem.Release(1)
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("tool panicked", "tool", call.Name, "panic", p)
				done <- types.ToolResult{"error": fmt.Sprintf("tool %s panicked", call.Name)}
			}
		}()
		done <- e.handler(cctx, args)
	}()

	select {
	case res := <-done:
		if res == nil {
			res = types.ToolResult{}
		}
		return res
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			r.log.Warn("tool timed out", "tool", call.Name, "timeout", r.timeout)
			return types.ToolResult{"error": "timeout_exceeded"}
		}
		return types.ToolResult{"error": "cancelled"}
	}
}

// ─── Argument coercion ──────────────────────────────────────────────────────

// coerceArguments shapes raw arguments to the JSON-schema parameter types.
// Keys absent from the schema are dropped; missing required parameters are an
// error. A tool without a schema passes its arguments through untouched.
func coerceArguments(schema map[string]any, raw map[string]any) (map[string]any, error) {
	props, _ := schema["properties"].(map[string]any)

	var out map[string]any
	if props == nil {
		out = raw
		if out == nil {
			out = map[string]any{}
		}
	} else {
		out = make(map[string]any, len(raw))
		for name, spec := range props {
			v, present := raw[name]
			if !present {
				continue
			}
			specMap, _ := spec.(map[string]any)
			typ, _ := specMap["type"].(string)
			cv, err := coerceValueTo(v, typ)
			if err != nil {
				return nil, fmt.Errorf("tools: parameter %s: %v", name, err)
			}
			out[name] = cv
		}
	}

	for _, req := range requiredNames(schema) {
		if v, present := out[req]; !present || v == nil {
			return nil, fmt.Errorf("tools: missing required parameter %q", req)
		}
	}
	return out, nil
}

func requiredNames(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		names := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

// coerceValueTo converts v to the declared schema type where a lossless
// conversion exists. nil stays nil for optional parameters.
func coerceValueTo(v any, typ string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case "integer":
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int(n), nil
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			return i, nil
		}
	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return f, nil
		}
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return parsed, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("unexpected %T value", v)
}
