package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, Dependencies{}), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantCheck  string
	}{
		{name: "database up", wantCode: http.StatusOK, wantStatus: "ready", wantCheck: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready", wantCheck: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{
				pingFn: func(context.Context) error {
					return tt.pingErr
				},
			}
			server := NewHTTPServer(newTestService(fs, Dependencies{}), "*")

			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			var response map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if status := response["status"]; status != tt.wantStatus {
				t.Errorf("expected status=%s, got %v", tt.wantStatus, status)
			}
			checks, _ := response["checks"].(map[string]any)
			dbCheck, _ := checks["database"].(map[string]any)
			if dbCheck["status"] != tt.wantCheck {
				t.Errorf("expected database status=%s, got %v", tt.wantCheck, dbCheck["status"])
			}
			if tt.pingErr != nil && dbCheck["error"] != tt.pingErr.Error() {
				t.Errorf("expected database error %q, got %v", tt.pingErr.Error(), dbCheck["error"])
			}
		})
	}
}

func TestOptionsAndCORSHeaders(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, Dependencies{}), "https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/app/approve", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://app.example.com" {
		t.Errorf("unexpected CORS origin %q", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("expected a generated request id, got %q", id)
	}
}
