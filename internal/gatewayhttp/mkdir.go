package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

type mkdirRequest struct {
	Path string `json:"path"`
}

// handleMkdir implements POST /api/mkdir (spec.md §6.1): creates the
// working directory a new conversation's cwd will point at. Path is
// resolved relative to the configured workspace root and rejected if it
// would escape it, the same containment rule internal/tools/files.Resolver
// applies to tool calls.
func (h *Handler) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	root := h.workspace
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	joined := filepath.Join(root, req.Path)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		writeError(w, http.StatusBadRequest, "path escapes workspace root")
		return
	}
	if err := os.MkdirAll(joined, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cwd": joined})
}
