package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) Health(ctx context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

func TestHealthHandlersHealthz(t *testing.T) {
	now := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	handler := NewHealthHandlers(nil, WithHealthClock(func() time.Time { return now }))

	rr := httptest.NewRecorder()
	handler.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", resp["status"])
	}
}

func TestHealthHandlersReadyzHealthy(t *testing.T) {
	report := services.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
		},
		Version:     "1.4.0",
		Environment: "production",
		Uptime:      90 * time.Second,
		GeneratedAt: time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC),
	}
	handler := NewHealthHandlers(&stubSystemService{report: report})

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %v", resp["status"])
	}
	if resp["version"] != "1.4.0" {
		t.Fatalf("expected version, got %v", resp["version"])
	}
	checks, ok := resp["checks"].(map[string]any)
	if !ok || checks["firestore"] == nil {
		t.Fatalf("expected firestore check, got %v", resp["checks"])
	}
}

func TestHealthHandlersReadyzDegradedStillReady(t *testing.T) {
	report := services.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.SystemHealthCheck{
			"pubsub": {Status: domain.HealthStatusDegraded, Detail: "slow publish"},
		},
	}
	handler := NewHealthHandlers(&stubSystemService{report: report})

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected degraded to stay ready, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzErrorStatus(t *testing.T) {
	report := services.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Error: "rpc error"},
		},
	}
	handler := NewHealthHandlers(&stubSystemService{report: report})

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzCollectError(t *testing.T) {
	handler := NewHealthHandlers(&stubSystemService{err: errors.New("health collection failed")})

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers(nil)

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
