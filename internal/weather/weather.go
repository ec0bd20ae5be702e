// Package weather provides the ambient Cancún weather snippet for prompt
// assembly and the get_cancun_weather tool. Reports are cached; a fetch
// failure simply leaves the snippet out of the prompt.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

const defaultTTL = 30 * time.Minute

// Report is one weather observation.
type Report struct {
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Service fetches and caches weather reports. Safe for concurrent use.
type Service struct {
	url  string
	http *http.Client
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger

	mu      sync.Mutex
	cached  Report
	fetched time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides how long a report is served from cache.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *Service) { s.http = h }
}

// New creates a Service over the given report endpoint. An empty URL
// disables fetching; Snippet then always returns "".
func New(url string, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
		ttl:  defaultTTL,
		now:  time.Now,
		log:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the cached report, fetching when stale.
func (s *Service) Current(ctx context.Context) (Report, error) {
	if s.url == "" {
		return Report{}, fmt.Errorf("weather: no endpoint configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fetched.IsZero() && s.now().Sub(s.fetched) < s.ttl {
		return s.cached, nil
	}

	report, err := s.fetch(ctx)
	if err != nil {
		if !s.fetched.IsZero() {
			// Stale beats nothing mid-call.
			return s.cached, nil
		}
		return Report{}, err
	}
	s.cached = report
	s.fetched = s.now()
	return report, nil
}

// Snippet returns the one-line prompt addition, or "" when no report is
// available.
func (s *Service) Snippet(ctx context.Context) string {
	report, err := s.Current(ctx)
	if err != nil {
		s.log.Debug("weather unavailable", "err", err)
		return ""
	}
	return fmt.Sprintf("%s, %.0f grados.", capitalize(report.Description), report.Temperature)
}

// ─── Tool surface ───────────────────────────────────────────────────────────

// Definition describes the get_cancun_weather tool.
func (s *Service) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "get_cancun_weather",
		Description: "Consulta el clima actual en Cancún.",
	}
}

// Handle executes a get_cancun_weather call.
func (s *Service) Handle(ctx context.Context, _ map[string]any) types.ToolResult {
	report, err := s.Current(ctx)
	if err != nil {
		return types.ToolResult{"error": "clima_no_disponible"}
	}
	return types.ToolResult{
		"description": report.Description,
		"temperature": fmt.Sprintf("%.0f", report.Temperature),
		"humidity":    fmt.Sprintf("%.0f", report.Humidity),
	}
}

func (s *Service) fetch(ctx context.Context) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("weather: build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("weather: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 256))
		return Report{}, fmt.Errorf("weather: fetch: status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("weather: decode report: %w", err)
	}
	return report, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
