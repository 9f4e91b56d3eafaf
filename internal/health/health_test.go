package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res response
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("status field = %q, want ok", res.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checks: []Check{
				{Name: "gateway", Probe: func(context.Context) error { return nil }},
				{Name: "llm", Probe: func(context.Context) error { return nil }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"gateway": "ok", "llm": "ok"},
		},
		{
			name: "one fails",
			checks: []Check{
				{Name: "gateway", Probe: func(context.Context) error { return nil }},
				{Name: "llm", Probe: func(context.Context) error { return errors.New("timeout") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"gateway": "ok", "llm": "fail: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mux := http.NewServeMux()
			New(tt.checks...).Register(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var res response
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", res.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := res.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ProbeGetsDeadline(t *testing.T) {
	t.Parallel()
	var hadDeadline bool
	mux := http.NewServeMux()
	New(Check{Name: "gateway", Probe: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if !hadDeadline {
		t.Error("probe context had no deadline")
	}
}
