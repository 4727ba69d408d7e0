package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sqlward/sqlward/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Service.Name = "sqlward-test"
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Logger: testLogger()})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["service"] != "sqlward-test" {
		t.Fatalf("service = %v", payload["service"])
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Logger: testLogger(),
		Readiness: func(context.Context) error {
			return errors.New("catalog unreachable")
		},
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestReadyEndpointOK(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Logger:    testLogger(),
		Readiness: CombineReadinessChecks(nil, func(context.Context) error { return nil }),
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Logger: testLogger()})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestReadinessChecks(t *testing.T) {
	cfg := testConfig()
	if err := CheckCatalogDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing DSN error")
	}
	cfg.Catalog.DSN = "postgres://localhost/sqlward"
	if err := CheckCatalogDSN(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckCatalogDSN() error = %v", err)
	}
	if err := CheckCompletionConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing completion base URL error")
	}
}
