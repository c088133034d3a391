// Package health provides HTTP liveness and readiness probes for Voxgate.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness probe; returns 200 with process uptime as long as
//     the HTTP server can respond.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail"),
// and for /readyz a "checks" map with each named checker's result.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// its context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check must return nil when the probed
// dependency is healthy and must respect context cancellation.
type Checker struct {
	// Name is a short label for this check (e.g. "stream_capacity"). It
	// appears as a key in the /readyz JSON response.
	Name string

	// Check probes the dependency.
	Check func(ctx context.Context) error
}

// CapacityCheck returns a [Checker] that fails once active() reaches max.
// A max of zero disables the check (it always passes).
func CapacityCheck(name string, active func() int, max int) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if max <= 0 {
				return nil
			}
			if n := active(); n >= max {
				return fmt.Errorf("at capacity: %d/%d", n, max)
			}
			return nil
		},
	}
}

// result is the JSON response body for both probe endpoints.
type result struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. It is safe for
// concurrent use; the checker list is fixed at construction time.
type Handler struct {
	version  string
	started  time.Time
	checkers []Checker
}

// New creates a [Handler] reporting the given version string. Checkers are
// evaluated sequentially on each /readyz request, in the order provided.
func New(version string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{version: version, started: time.Now(), checkers: c}
}

// Healthz is the liveness probe. A running process that can serve HTTP is
// considered alive, so it always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status:  "ok",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Version: h.version,
	})
}

// Readyz is the readiness probe. It returns 200 only when every registered
// [Checker] passes; otherwise 503 with per-check failure details.
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
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
