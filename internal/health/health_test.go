package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decodeReport(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	pass := func(_ context.Context) error { return nil }
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "database", Check: pass},
				{Name: "speech-model", Check: pass},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"database": "ok", "speech-model": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "database", Check: func(_ context.Context) error {
					return errors.New("connection refused")
				}},
				{Name: "speech-model", Check: pass},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{
				"database":     "fail: connection refused",
				"speech-model": "ok",
			},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "database", Check: func(_ context.Context) error {
					return errors.New("timeout")
				}},
				{Name: "speech-model", Check: func(_ context.Context) error {
					return errors.New("model not loaded")
				}},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{
				"database":     "fail: timeout",
				"speech-model": "fail: model not loaded",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := New(tc.checkers...)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decodeReport(t, rec)
			if body.Status != tc.wantBody {
				t.Errorf("status = %q, want %q", body.Status, tc.wantBody)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 2)
	proceed := make(chan struct{})
	blocking := func(_ context.Context) error {
		arrived <- struct{}{}
		<-proceed
		return nil
	}
	h := New(
		Checker{Name: "a", Check: blocking},
		Checker{Name: "b", Check: blocking},
	)

	done := make(chan struct{})
	rec := httptest.NewRecorder()
	go func() {
		h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
		close(done)
	}()

	// Both checkers must be in flight before either is released; a sequential
	// runner would never produce the second arrival.
	<-arrived
	<-arrived
	close(proceed)
	<-done

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyz_RespectsRequestCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "database", Check: func(_ context.Context) error { return nil }}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
