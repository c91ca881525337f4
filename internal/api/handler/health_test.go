package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler_Liveness(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	if err := NewHealthHandler(nil).Liveness(e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	e := newTestEcho()
	h := NewHealthHandler(map[string]CheckFunc{
		"redis":   func(context.Context) error { return nil },
		"mongodb": func(context.Context) error { return errors.New("no reachable servers") },
	})

	rec := httptest.NewRecorder()
	if err := h.Readiness(e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	resp := decode(t, rec)
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", resp["status"])
	}
	deps := resp["dependencies"].(map[string]any)
	if deps["redis"].(map[string]any)["status"] != "ok" {
		t.Fatalf("redis should be ok: %+v", deps)
	}
	if deps["mongodb"].(map[string]any)["error"] != "no reachable servers" {
		t.Fatalf("mongodb error missing: %+v", deps)
	}
}

func TestHealthHandler_Readiness_NoDependencies(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	if err := NewHealthHandler(nil).Readiness(e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
