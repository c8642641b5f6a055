// Package health implements the liveness and readiness probes of the
// transcription server.
//
//   - GET /healthz reports liveness and always answers 200; a process that
//     can serve HTTP is alive.
//   - GET /readyz runs every registered [Checker] and answers 200 only when
//     all of them pass, 503 otherwise.
//
// Response bodies are JSON objects with a "status" field ("ok" or "fail")
// and, for readiness, a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency of the server.
type Checker struct {
	// Name labels the check in the readiness response, e.g. "database".
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx
	// cancellation.
	Check func(ctx context.Context) error
}

// report is the JSON body of both probe responses.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz routes. Safe for concurrent use;
// the checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] that evaluates the given checkers on each
// readiness request. Checks run concurrently; a slow database probe does not
// delay the others.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker, each under its own [checkTimeout], and answers
// 200 when all pass or 503 when any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	details := make([]string, len(h.checkers))

	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			if err := c.Check(ctx); err != nil {
				details[i] = "fail: " + err.Error()
			} else {
				details[i] = "ok"
			}
			return nil
		})
	}
	// Checkers report through details and never return an error.
	_ = g.Wait()

	res := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		res.Checks[c.Name] = details[i]
		if details[i] != "ok" {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
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
