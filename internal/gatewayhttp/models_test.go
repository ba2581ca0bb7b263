package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scottopell/phoenix-ide/internal/models"
)

func TestHandleModels(t *testing.T) {
	catalog := models.NewCatalog()
	catalog.Register(&models.Model{
		ID:            "claude-test",
		Provider:      models.ProviderAnthropic,
		Description:   "test model",
		ContextWindow: 200000,
	})
	h := &Handler{catalog: catalog}

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	h.handleModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Models []modelSummary `json:"models"`
		Default string        `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Models) != 1 {
		t.Fatalf("len(models) = %d, want 1", len(resp.Models))
	}
	if resp.Models[0].ID != "claude-test" {
		t.Errorf("models[0].ID = %q, want claude-test", resp.Models[0].ID)
	}
	if resp.Default != "claude-test" {
		t.Errorf("default = %q, want claude-test", resp.Default)
	}
}

func TestHandleModelsEmptyCatalog(t *testing.T) {
	h := &Handler{catalog: models.NewCatalog()}

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	h.handleModels(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["default"] != "" {
		t.Errorf("default = %v, want empty string", resp["default"])
	}
}
