package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthReportsComponents(t *testing.T) {
	h := newTestHandler(&fakeCollection{}, &fakeThumbnailer{})
	h.HealthProbes = []HealthProbe{
		{Component: "index", Ping: func(context.Context) error { return nil }},
		{Component: "users", Ping: func(context.Context) error { return nil }},
		{Component: "skipped"},
	}
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || len(body.Components) != 2 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestHealthDegradedWhenProbeFails(t *testing.T) {
	h := newTestHandler(&fakeCollection{}, &fakeThumbnailer{})
	h.HealthProbes = []HealthProbe{
		{Component: "index", Ping: func(context.Context) error { return nil }},
		{Component: "users", Ping: func(context.Context) error { return errors.New("connection refused") }},
	}
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Components[1].Error != "connection refused" {
		t.Fatalf("unexpected health %+v", body)
	}
}
