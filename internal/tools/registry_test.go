package tools

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func echoTool() (types.ToolDefinition, Handler) {
	def := types.ToolDefinition{
		Name: "echo",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer"},
				"loud":  map[string]any{"type": "boolean"},
				"ratio": map[string]any{"type": "number"},
			},
			"required": []any{"text"},
		},
	}
	h := func(_ context.Context, args map[string]any) types.ToolResult {
		res := types.ToolResult{"status": "success"}
		for k, v := range args {
			res[k] = v
		}
		return res
	}
	return def, h
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(testLogger())
	def, h := echoTool()
	if err := r.Register(def, h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := r.Execute(context.Background(), types.ToolCall{
		Name:      "echo",
		Arguments: map[string]any{"text": "hola", "count": 2},
	})
	if res.IsError() {
		t.Fatalf("result = %v", res)
	}
	if res["text"] != "hola" || res["count"] != 2 {
		t.Errorf("result = %v", res)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	res := r.Execute(context.Background(), types.ToolCall{Name: "nope"})
	if res["error"] != "unknown tool: nope" {
		t.Errorf("result = %v", res)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry(testLogger())
	def, h := echoTool()
	if err := r.Register(def, h); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(def, h); err == nil {
		t.Error("second Register succeeded, want ErrDuplicateTool")
	}
}

func TestRegistryArgumentCoercion(t *testing.T) {
	r := NewRegistry(testLogger())
	def, h := echoTool()
	if err := r.Register(def, h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// JSON-decoded numbers arrive as float64 and string forms come straight
	// from the bracket syntax; both must land as the declared types.
	res := r.Execute(context.Background(), types.ToolCall{
		Name: "echo",
		Arguments: map[string]any{
			"text":  42,
			"count": float64(3),
			"loud":  "true",
			"ratio": "0.5",
			"junk":  "dropped",
		},
	})
	if res.IsError() {
		t.Fatalf("result = %v", res)
	}
	if res["text"] != "42" {
		t.Errorf("text = %v (%T), want \"42\"", res["text"], res["text"])
	}
	if res["count"] != 3 {
		t.Errorf("count = %v (%T), want 3", res["count"], res["count"])
	}
	if res["loud"] != true {
		t.Errorf("loud = %v, want true", res["loud"])
	}
	if res["ratio"] != 0.5 {
		t.Errorf("ratio = %v, want 0.5", res["ratio"])
	}
	if _, ok := res["junk"]; ok {
		t.Error("undeclared argument survived coercion")
	}
}

func TestRegistryMissingRequired(t *testing.T) {
	r := NewRegistry(testLogger())
	def, h := echoTool()
	if err := r.Register(def, h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := r.Execute(context.Background(), types.ToolCall{
		Name:      "echo",
		Arguments: map[string]any{"count": 1},
	})
	if !res.IsError() {
		t.Fatalf("result = %v, want missing-parameter error", res)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry(testLogger(), WithTimeout(30*time.Millisecond))
	err := r.Register(types.ToolDefinition{Name: "slow"}, func(ctx context.Context, _ map[string]any) types.ToolResult {
		<-ctx.Done()
		return types.ToolResult{"status": "late"}
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := r.Execute(context.Background(), types.ToolCall{Name: "slow"})
	if res["error"] != "timeout_exceeded" {
		t.Errorf("result = %v, want timeout_exceeded", res)
	}
}

func TestRegistryPoolOverflow(t *testing.T) {
	r := NewRegistry(testLogger(), WithPoolSize(1))
	release := make(chan struct{})
	started := make(chan struct{})
	err := r.Register(types.ToolDefinition{Name: "hold"}, func(context.Context, map[string]any) types.ToolResult {
		close(started)
		<-release
		return types.ToolResult{"status": "success"}
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Execute(context.Background(), types.ToolCall{Name: "hold"})
	}()
	<-started

	res := r.Execute(context.Background(), types.ToolCall{Name: "hold"})
	if res["error"] != "busy" {
		t.Errorf("overflow result = %v, want busy", res)
	}

	close(release)
	wg.Wait()
}

func TestRegistryPanicRecovery(t *testing.T) {
	r := NewRegistry(testLogger())
	err := r.Register(types.ToolDefinition{Name: "boom"}, func(context.Context, map[string]any) types.ToolResult {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := r.Execute(context.Background(), types.ToolCall{Name: "boom"})
	if !res.IsError() {
		t.Errorf("result = %v, want error result", res)
	}
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	noop := func(context.Context, map[string]any) types.ToolResult { return nil }
	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(types.ToolDefinition{Name: name}, noop); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	defs := r.Definitions()
	if len(defs) != 3 || defs[0].Name != "c" || defs[1].Name != "a" || defs[2].Name != "b" {
		t.Errorf("Definitions = %+v, want registration order", defs)
	}
}

func TestRegistryRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := NewRegistry(testLogger(), WithMetrics(metrics))
	def, h := echoTool()
	if err := r.Register(def, h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	r.Execute(ctx, types.ToolCall{Name: "echo", Arguments: map[string]any{"text": "hola"}})
	r.Execute(ctx, types.ToolCall{Name: "nope"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voceria.tool.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("tool.calls data = %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	if counts["ok"] != 1 || counts["error"] != 1 {
		t.Errorf("tool call counts by status = %v, want one ok and one error", counts)
	}
}
