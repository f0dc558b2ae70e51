package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/storage/memory"
)

func TestHealthHandler_Health(t *testing.T) {
	store := memory.NewMemoryStorage()
	handler := NewHealthHandler(store, "test")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health() status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	store := memory.NewMemoryStorage()
	handler := NewHealthHandler(store, "test")

	// An empty store is still ready; a not-found probe proves the
	// backend answers queries.
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Ready() status = %v, want %v", w.Code, http.StatusOK)
	}

	if err := store.SaveUser(context.Background(), fact.NewUser("u-1")); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	w = httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Ready() with data status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_Status(t *testing.T) {
	store := memory.NewMemoryStorage()
	handler := NewHealthHandler(store, "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status() status = %v, want %v", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode status body: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", body["version"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("missing uptime field")
	}
}
