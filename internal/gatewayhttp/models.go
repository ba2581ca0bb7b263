package gatewayhttp

import "net/http"

// modelSummary is the wire shape spec.md §6.1 specifies for GET /api/models:
// {id, provider, description, context_window}.
type modelSummary struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Description   string `json:"description"`
	ContextWindow int    `json:"context_window"`
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.List(nil)
	out := make([]modelSummary, 0, len(all))
	for _, m := range all {
		out = append(out, modelSummary{
			ID:            m.ID,
			Provider:      string(m.Provider),
			Description:   m.Description,
			ContextWindow: m.ContextWindow,
		})
	}
	var defaultID string
	if len(all) > 0 {
		defaultID = all[0].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  out,
		"default": defaultID,
	})
}
