package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"sshgateway/internal/gateway"
)

// TestHealthHandlerShape enforces spec §6's literal /health JSON contract:
// {status, connections, uptime, memory, queuedCommands, runningCommands}.
// uptime and memory were previously omitted entirely.
func TestHealthHandlerShape(t *testing.T) {
	core := gateway.New(gateway.Options{QueueMaxConcurrent: 1, QueueMaxPending: 1}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthHandler(core)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}

	for _, field := range []string{"status", "connections", "uptime", "memory", "queuedCommands", "runningCommands"} {
		if _, ok := body[field]; !ok {
			t.Errorf("health response missing field %q: %s", field, rec.Body.String())
		}
	}

	var mem map[string]json.RawMessage
	if err := json.Unmarshal(body["memory"], &mem); err != nil {
		t.Fatalf("memory field is not an object: %v", err)
	}
	if _, ok := mem["heapAlloc"]; !ok {
		t.Errorf("memory object missing heapAlloc: %s", body["memory"])
	}
}
