package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type registeredCheck struct {
	checker  HealthChecker
	optional bool
}

// HealthHandler serves liveness and readiness. A failing required component
// makes the service unready; a failing optional one only degrades it.
type HealthHandler struct {
	mu     sync.RWMutex
	checks map[string]registeredCheck
	logger *zap.Logger
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]registeredCheck),
		logger: logger,
	}
}

func (h *HealthHandler) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{checker: checker}
}

func (h *HealthHandler) RegisterOptional(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{checker: checker, optional: true}
}

type componentHealth struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make(map[string]registeredCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	results := make(map[string]componentHealth, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.checker.HealthCheck(ctx)
			ch := componentHealth{
				Status:   "healthy",
				Optional: c.optional,
				Latency:  time.Since(start).String(),
			}
			if err != nil {
				ch.Status = "unhealthy"
				ch.Error = err.Error()
			}
			mu.Lock()
			results[name] = ch
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	overall := "healthy"
	for name, ch := range results {
		if ch.Status != "unhealthy" {
			continue
		}
		h.logger.Warn("component unhealthy", zap.String("component", name), zap.String("error", ch.Error))
		if !ch.Optional {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
			break
		}
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     overall,
		"components": results,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
