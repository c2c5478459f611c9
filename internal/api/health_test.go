package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.err
}

func readiness(t *testing.T, hh *HealthHandler) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	hh.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding readiness body: %v", err)
	}
	return rr.Code, body
}

func TestHealthHandler_Liveness(t *testing.T) {
	hh := NewHealthHandler(zap.NewNop())
	rr := httptest.NewRecorder()
	hh.Liveness(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name       string
		required   map[string]error
		optional   map[string]error
		wantCode   int
		wantStatus string
	}{
		{"no checks", nil, nil, http.StatusOK, "healthy"},
		{"all healthy", map[string]error{"mirror": nil}, map[string]error{"redis": nil}, http.StatusOK, "healthy"},
		{"required down", map[string]error{"mirror": down}, nil, http.StatusServiceUnavailable, "unavailable"},
		{"optional down", map[string]error{"mirror": nil}, map[string]error{"clickhouse": down}, http.StatusOK, "degraded"},
		{"both down", map[string]error{"mirror": down}, map[string]error{"clickhouse": down}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hh := NewHealthHandler(zap.NewNop())
			for name, err := range tt.required {
				hh.Register(name, &mockHealthChecker{err: err})
			}
			for name, err := range tt.optional {
				hh.RegisterOptional(name, &mockHealthChecker{err: err})
			}

			code, body := readiness(t, hh)
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %q, got %v", tt.wantStatus, body["status"])
			}
			if _, ok := body["timestamp"]; !ok {
				t.Error("expected timestamp")
			}
		})
	}
}

func TestHealthHandler_UnhealthyComponentHasError(t *testing.T) {
	hh := NewHealthHandler(zap.NewNop())
	hh.Register("mirror", &mockHealthChecker{err: errors.New("disk full")})

	_, body := readiness(t, hh)
	components := body["components"].(map[string]any)
	mirror := components["mirror"].(map[string]any)
	if mirror["error"] != "disk full" {
		t.Errorf("expected error message, got %v", mirror["error"])
	}
	if mirror["latency"] == "" {
		t.Error("expected latency")
	}
}
