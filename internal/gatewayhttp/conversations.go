package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/steering"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// conversationSummary is the list-view projection for
// GET /api/conversations and /api/conversations/archived.
type conversationSummary struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Model        string          `json:"model"`
	State        json.RawMessage `json:"state"`
	Archived     bool            `json:"archived"`
	LastActiveAt string          `json:"last_active_at"`
}

func toSummary(rec storage.ConversationRecord) conversationSummary {
	encoded, _ := convcore.EncodeState(rec.State)
	return conversationSummary{
		ID:           rec.ID,
		Slug:         rec.Slug,
		Title:        rec.Title,
		Model:        rec.Model,
		State:        encoded,
		Archived:     rec.Archived,
		LastActiveAt: rec.LastActiveAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListActive(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]conversationSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSummary(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListArchived(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListArchived(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]conversationSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSummary(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

type createConversationRequest struct {
	CWD     string   `json:"cwd"`
	Message string   `json:"message"`
	LocalID string   `json:"local_id"`
	Model   string   `json:"model"`
	Images  []string `json:"images,omitempty"`
}

// handleCreateConversation implements POST /api/conversations/new
// (spec.md §6.1): rejects a model not in the registry with 400, otherwise
// creates the row, starts the executor actor, and seeds it with the
// opening message before responding.
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CWD) == "" {
		writeError(w, http.StatusBadRequest, "cwd is required")
		return
	}

	modelID := req.Model
	if modelID == "" {
		modelID = h.catalog.List(nil)[0].ID
	}
	model, ok := h.catalog.Get(modelID)
	if !ok {
		writeError(w, http.StatusBadRequest, "model "+modelID+" is not registered")
		return
	}

	id := uuid.NewString()
	info, slug, err := h.store.CreateConversation(r.Context(), id,
		statemachine.ModelInfo{ID: model.ID, ContextWindow: int64(model.ContextWindow)},
		req.CWD, req.Message)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	h.ex.Start(info, convcore.Idle{})
	if h.steering != nil && h.steeringSettings.MaxItems > 0 {
		h.steering.SetSettings(id, h.steeringSettings)
	}
	if strings.TrimSpace(req.Message) != "" {
		if err := h.ex.Dispatch(r.Context(), id, convcore.UserMessage{
			LocalID: req.LocalID,
			Text:    req.Message,
		}); err != nil {
			writeDispatchError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "slug": slug})
}

func (h *Handler) conversationDetail(w http.ResponseWriter, r *http.Request, rec storage.ConversationRecord) {
	messages, err := h.store.ListMessages(r.Context(), rec.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	encodedMessages := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		encoded, err := convcore.EncodeMessageJSON(msg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		encodedMessages = append(encodedMessages, encoded)
	}
	state, err := convcore.EncodeState(rec.State)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                   rec.ID,
		"slug":                 rec.Slug,
		"title":                rec.Title,
		"model":                rec.Model,
		"model_context_window": rec.ModelContextWindow,
		"cwd":                  rec.CWD,
		"archived":             rec.Archived,
		"state":                json.RawMessage(state),
		"usage":                rec.Usage,
		"messages":             encodedMessages,
	})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	rec, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.conversationDetail(w, r, rec)
}

func (h *Handler) handleGetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := trimmedPathID(r, "slug")
	rec, err := h.store.GetConversationBySlug(r.Context(), slug)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.conversationDetail(w, r, rec)
}

type chatRequest struct {
	Text      string   `json:"text"`
	Images    []string `json:"images,omitempty"`
	LocalID   string   `json:"local_id"`
	UserAgent string   `json:"user_agent,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.ex.Dispatch(r.Context(), id, convcore.UserMessage{
		LocalID:   req.LocalID,
		Text:      req.Text,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	if err := h.ex.Dispatch(r.Context(), id, convcore.UserCancel{}); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleContinuation(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	if err := h.ex.Dispatch(r.Context(), id, convcore.UserTriggerContinuation{}); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type steerRequest struct {
	Text      string `json:"text"`
	LocalID   string `json:"local_id"`
	UserAgent string `json:"user_agent,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// handleSteer implements SPEC_FULL.md §7.4's additive follow-up endpoint:
// text queued here is delivered as an ordinary UserMessage the next time
// the conversation reaches Idle (internal/executor's drainSteeringIfIdle),
// rather than being rejected with AgentBusy like a direct /chat would be.
func (h *Handler) handleSteer(w http.ResponseWriter, r *http.Request) {
	if h.steering == nil {
		writeError(w, http.StatusNotImplemented, "steering queue not configured")
		return
	}
	id := trimmedPathID(r, "id")
	var req steerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := steering.ModeFollowup
	if req.Mode == string(steering.ModeSteer) {
		mode = steering.ModeSteer
	}
	h.steering.Enqueue(id, steering.Item{
		Text:      req.Text,
		LocalID:   req.LocalID,
		UserAgent: req.UserAgent,
		Mode:      mode,
		EnqueuedAt: nowUTC(),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	if err := h.store.Archive(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleUnarchive(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	if err := h.store.Unarchive(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if h.steering != nil {
		h.steering.Clear(id)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type renameRequest struct {
	Title string `json:"title"`
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.Rename(r.Context(), id, req.Title); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type failoverRequest struct {
	ModelID string `json:"model_id,omitempty"`
}

// handleFailover implements POST /api/conversations/:id/failover
// (SPEC_FULL.md §7.3): an explicit, user-triggered model switch. The
// executor never substitutes a model on its own (spec.md §6.4 forbids
// silent substitution); this is the opt-in surface that does it instead.
// With no model_id in the body, it advances to the next entry in the
// configured fallback chain after the conversation's current model.
func (h *Handler) handleFailover(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	var req failoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		rec, err := h.store.GetConversation(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		modelID = h.nextInFallbackChain(rec.Model)
		if modelID == "" {
			writeError(w, http.StatusConflict, "no fallback model configured after "+rec.Model)
			return
		}
	}

	model, ok := h.catalog.Get(modelID)
	if !ok {
		writeError(w, http.StatusBadRequest, "model "+modelID+" is not registered")
		return
	}

	if err := h.store.SetModel(r.Context(), id, model.ID, int64(model.ContextWindow)); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.ex.SetModel(r.Context(), id, statemachine.ModelInfo{ID: model.ID, ContextWindow: int64(model.ContextWindow)}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"model": model.ID})
}

// nextInFallbackChain returns the entry after currentModelID in the
// configured chain, or "" if currentModelID is absent or last.
func (h *Handler) nextInFallbackChain(currentModelID string) string {
	for i, id := range h.fallbackChain {
		if id == currentModelID && i+1 < len(h.fallbackChain) {
			return h.fallbackChain[i+1]
		}
	}
	return ""
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	snap, ok := h.ex.MetricsSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not running")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleStream implements GET /api/conversations/:id/stream?after=N
// (spec.md §6.2): init always fires first, carrying messages_after_N so the
// client can resume a dropped connection without re-fetching the whole
// history, then every subsequent executor notification streams live.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := trimmedPathID(r, "id")
	rec, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an integer")
			return
		}
		after = parsed
	}
	missed, err := h.store.ListMessagesAfter(r.Context(), id, after)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	encodedMissed := make([]json.RawMessage, 0, len(missed))
	for _, msg := range missed {
		encoded, err := convcore.EncodeMessageJSON(msg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		encodedMissed = append(encodedMissed, encoded)
	}
	state, err := convcore.EncodeState(rec.State)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, agentWorking := rec.State.(convcore.Idle)
	agentWorking = !agentWorking

	initPayload, err := json.Marshal(map[string]any{
		"conversation":          rec.ID,
		"messages_after_n":      encodedMissed,
		"agent_working":         agentWorking,
		"model_context_window":  rec.ModelContextWindow,
		"context_window_size":   rec.Usage.ContextWindow,
		"breadcrumbs":           []string{},
		"state":                 json.RawMessage(state),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sub := h.broker.subscribe(id)
	defer h.broker.unsubscribe(id, sub)
	writeSSE(w, r, sub, "init", initPayload)
}
