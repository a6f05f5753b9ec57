package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eleva-care-api/internal/handler"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		deps map[string]handler.Pinger
		code int
	}{
		{"all up", map[string]handler.Pinger{"db": pinger{}, "redis": pinger{}}, http.StatusOK},
		{"redis down", map[string]handler.Pinger{"db": pinger{}, "redis": pinger{errors.New("refused")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Health(tt.deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.code {
				t.Fatalf("status %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["db"] != "ok" {
				t.Errorf("body: %v", body)
			}
		})
	}
}
