// Package health serves the gateway's liveness and readiness probes.
//
//   - /healthz — liveness; a process that answers HTTP is alive.
//   - /readyz  — readiness; passes only when every registered [Checker]
//     reports its dependency healthy.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// "checks" map naming each probe result.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil when the dependency
// can serve a call right now.
type Checker struct {
	// Name keys the probe result in the JSON response, e.g. "postgres".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is the subset of a pgx pool used by [Postgres]. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Postgres returns a checker that pings the lead-store database.
func Postgres(pool Pinger) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// Endpoint returns a checker that issues a HEAD request against url and
// accepts any response below 500. The calendar webhook answers 405 to HEAD,
// which still proves reachability.
func Endpoint(name, url string, client *http.Client) Checker {
	if client == nil {
		client = &http.Client{Timeout: checkTimeout}
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
	log      *slog.Logger
}

// New creates a [Handler] that runs the given checkers, in order, on each
// /readyz request.
func New(log *slog.Logger, checkers ...Checker) *Handler {
	if log == nil {
		log = slog.Default()
	}
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, log: log}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every checker passes. Each probe gets a
// [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
			h.log.Warn("readiness check failed", "check", c.Name, "error", err)
			continue
		}
		checks[c.Name] = "ok"
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
