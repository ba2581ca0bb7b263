package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleMkdir(t *testing.T) {
	t.Run("creates directory under workspace", func(t *testing.T) {
		root := t.TempDir()
		h := &Handler{workspace: root}

		body := strings.NewReader(`{"path":"convo-1/workdir"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/mkdir", body)
		rec := httptest.NewRecorder()

		h.handleMkdir(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if _, err := os.Stat(resp["cwd"]); err != nil {
			t.Fatalf("expected directory to exist: %v", err)
		}
	})

	t.Run("rejects path escaping workspace root", func(t *testing.T) {
		root := t.TempDir()
		h := &Handler{workspace: root}

		body := strings.NewReader(`{"path":"../../etc"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/mkdir", body)
		rec := httptest.NewRecorder()

		h.handleMkdir(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		h := &Handler{workspace: t.TempDir()}

		body := strings.NewReader(`{"path":""}`)
		req := httptest.NewRequest(http.MethodPost, "/api/mkdir", body)
		rec := httptest.NewRecorder()

		h.handleMkdir(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		h := &Handler{workspace: t.TempDir()}

		req := httptest.NewRequest(http.MethodPost, "/api/mkdir", strings.NewReader("{"))
		rec := httptest.NewRecorder()

		h.handleMkdir(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("defaults empty workspace to current directory", func(t *testing.T) {
		h := &Handler{workspace: ""}
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Getwd: %v", err)
		}
		dirName := "phoenix-mkdir-test-dir"
		t.Cleanup(func() { os.RemoveAll(filepath.Join(cwd, dirName)) })

		body := strings.NewReader(`{"path":"` + dirName + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/mkdir", body)
		rec := httptest.NewRecorder()

		h.handleMkdir(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})
}
