// Package server exposes the transcription pipeline over HTTP.
//
// Endpoints:
//
//   - POST /v1/transcriptions — multipart WAV upload, batch transcription.
//   - GET  /v1/runs           — recent persisted runs, newest first.
//   - GET  /v1/runs/{id}      — one persisted run with its segments.
//   - GET  /v1/stream         — WebSocket; one binary WAV in, segments out
//     as they are corrected.
//   - GET  /healthz, /readyz  — probes.
//   - GET  /metrics           — Prometheus scrape endpoint.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawtlabs/tahrir/internal/health"
	"github.com/sawtlabs/tahrir/internal/observe"
	"github.com/sawtlabs/tahrir/internal/pipeline"
	"github.com/sawtlabs/tahrir/internal/store"
	"github.com/sawtlabs/tahrir/pkg/audio"
)

// maxUploadBytes caps the audio payload read into memory. An hour of 16-bit
// stereo audio at 48 kHz is well under this.
const maxUploadBytes = 512 << 20

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithStore enables run persistence. Without it, results are returned to the
// caller but not stored, and the run endpoints respond 404.
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithHealthCheckers registers additional readiness checkers.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(srv *Server) { srv.checkers = append(srv.checkers, checkers...) }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// Server routes HTTP requests into the pipeline and the run store.
type Server struct {
	pipe     *pipeline.Pipeline
	store    store.Store
	metrics  *observe.Metrics
	checkers []health.Checker
}

// New creates a Server around pipe.
func New(pipe *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{pipe: pipe}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/transcriptions", s.handleTranscribe)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	health.New(s.checkers...).Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// transcribeResponse is the POST /v1/transcriptions body. RunID is omitted
// when no store is configured.
type transcribeResponse struct {
	RunID string `json:"run_id,omitempty"`
	*pipeline.Output
}

// handleTranscribe accepts a WAV file and runs the batch pipeline. The audio
// arrives either as a multipart form field named "file" or as the raw request
// body with Content-Type audio/wav.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, sourceName, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	samples, channels, rate, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := s.pipe.Process(r.Context(), samples, channels, rate)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, audio.ErrBadFormat) || errors.Is(err, audio.ErrEmptyAudio) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	resp := transcribeResponse{Output: out}
	if s.store != nil {
		run := store.NewRun(sourceName, out)
		if err := s.store.SaveRun(r.Context(), run); err != nil {
			// The transcript is already computed; losing persistence should
			// not lose the response.
			observe.Logger(r.Context()).Error("failed to persist run", "error", err)
		} else {
			resp.RunID = run.ID.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRuns returns recent runs without segments. The "limit" query
// parameter caps the count.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("run persistence is not configured"))
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns one run with its segments.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("run persistence is not configured"))
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("run id must be a UUID"))
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// readUpload extracts the WAV payload from the request. Multipart forms use
// the "file" field; anything else is treated as a raw body upload.
func readUpload(r *http.Request) (data []byte, sourceName string, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	ct := r.Header.Get("Content-Type")
	if ct != "" && len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", errors.New("invalid multipart form")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New(`multipart form must carry a "file" field`)
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return data, hdr.Filename, nil
	}

	data, err = io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty request body")
	}
	return data, "", nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
