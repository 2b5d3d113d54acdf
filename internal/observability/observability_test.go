package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status.Status)
	}
	if status.Service != serviceName {
		t.Errorf("Expected service '%s', got '%s'", serviceName, status.Service)
	}
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"history": func(ctx context.Context) (bool, error) { return true, nil },
		"backend": func(ctx context.Context) (bool, error) { return true, nil },
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var status HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Status != "ready" {
		t.Errorf("Expected status 'ready', got '%s'", status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
	}
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"history": func(ctx context.Context) (bool, error) { return false, errors.New("database is locked") },
		"backend": func(ctx context.Context) (bool, error) { return true, nil },
		"skipped": nil,
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got '%s'", ct)
	}
	var status HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Status != "not_ready" {
		t.Errorf("Expected status 'not_ready', got '%s'", status.Status)
	}
	dep := status.Dependencies["history"]
	if dep.Status != "unhealthy" || dep.Message != "database is locked" {
		t.Errorf("Unexpected history dependency status: %+v", dep)
	}
	if _, ok := status.Dependencies["skipped"]; ok {
		t.Error("Expected nil check to be skipped")
	}
}

func TestGRPCHealth_Refresh(t *testing.T) {
	healthy := true
	g := NewGRPCHealth(map[string]HealthCheckFunc{
		"history": func(ctx context.Context) (bool, error) { return healthy, nil },
	})

	ctx := context.Background()
	g.Refresh(ctx)
	resp, err := g.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.Status)
	}

	healthy = false
	g.Refresh(ctx)
	resp, err = g.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: "history"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING, got %v", resp.Status)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", false)

	logger.Info().Msg("hidden")
	logger.Warn().Str("session_id", "abc").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered at warn level")
	}
	if !strings.Contains(out, `"session_id":"abc"`) {
		t.Errorf("Expected structured field in output, got %s", out)
	}
}

func TestWithCorrelationID_GeneratesID(t *testing.T) {
	if NewCorrelationID() == NewCorrelationID() {
		t.Error("Expected distinct correlation IDs")
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Expected no-op shutdown, got %v", err)
	}

	_, span := StartSpan(context.Background(), "test")
	EndSpan(span, errors.New("boom"))
}

func TestSessionMetrics_EndIsIdempotent(t *testing.T) {
	m := NewSessionMetrics("s1")
	m.RecordSessionEnd()
	m.RecordSessionStart()
	m.RecordSessionEnd()
	m.RecordSessionEnd()
	if m.open {
		t.Error("Expected session to be closed")
	}
}
