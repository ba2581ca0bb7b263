// Package gatewayhttp is the REST + SSE surface a single UI client drives
// the conversation core through (spec.md §4.6/§6.1/§6.2). Like the
// teacher's internal/web.Handler, it owns a bare *http.ServeMux with
// hand-parsed path parameters rather than a router library, and exposes
// itself as an http.Handler via Mount so main.go can wrap it with
// whatever net/http.Server it likes.
package gatewayhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/internal/models"
	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/steering"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/internal/telemetry"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// Store is the persistence surface the HTTP layer needs beyond
// executor.Store: conversation lifecycle and listing queries, grounded on
// *storage.SQLStore but declared here as an interface so handlers stay
// testable against a stub, matching the executor package's own convention.
type Store interface {
	CreateConversation(ctx context.Context, id string, model statemachine.ModelInfo, cwd, titleSeed string) (executor.ConversationInfo, string, error)
	GetConversation(ctx context.Context, id string) (storage.ConversationRecord, error)
	GetConversationBySlug(ctx context.Context, slug string) (storage.ConversationRecord, error)
	ListActive(ctx context.Context) ([]storage.ConversationRecord, error)
	ListArchived(ctx context.Context) ([]storage.ConversationRecord, error)
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
	ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error)
	ListMessagesAfter(ctx context.Context, conversationID string, after int64) ([]convcore.Message, error)

	// SetModel persists an explicit failover model switch (SPEC_FULL.md
	// §7.3); see handleFailover.
	SetModel(ctx context.Context, id, modelID string, contextWindow int64) error
}

// Config bundles the handler's collaborators.
type Config struct {
	Store     Store
	Executor  *executor.Executor
	Steering  *steering.Queue
	Catalog   *models.Catalog
	Logger    *slog.Logger
	Workspace string // root directory POST /api/mkdir creates new conversation cwds under

	// SteeringSettings is applied to every conversation's queue the moment
	// it's created, so operators can tune capacity/drop-policy (SPEC_FULL.md
	// §7.4) from config instead of the steering package's built-in default.
	SteeringSettings steering.Settings

	// FallbackChain lists model ids, in order, POST
	// .../failover may switch a conversation onto when no explicit
	// model_id is given in the request body (SPEC_FULL.md §7.3). Mirrors
	// config.LLMConfig.FallbackChain; the executor never consults this
	// list on its own, since silent substitution is forbidden.
	FallbackChain []string

	// Metrics records HTTP request duration per telemetry.Metrics. Nil
	// disables the metrics middleware entirely.
	Metrics *telemetry.Metrics
}

// Handler is the REST+SSE surface. It implements http.Handler via Mount.
type Handler struct {
	store            Store
	ex               *executor.Executor
	steering         *steering.Queue
	steeringSettings steering.Settings
	catalog          *models.Catalog
	log              *slog.Logger
	workspace        string
	fallbackChain    []string
	metrics          *telemetry.Metrics

	mux    *http.ServeMux
	broker *broadcaster
}

// NewHandler builds the handler and registers every route.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = models.DefaultCatalog
	}
	h := &Handler{
		store:            cfg.Store,
		ex:               cfg.Executor,
		steering:         cfg.Steering,
		steeringSettings: cfg.SteeringSettings,
		catalog:          catalog,
		log:              logger,
		workspace:        cfg.Workspace,
		fallbackChain:    cfg.FallbackChain,
		metrics:          cfg.Metrics,
		mux:              http.NewServeMux(),
		broker:           newBroadcaster(logger),
	}
	h.setupRoutes()
	return h
}

// Notifier: the executor publishes SSE-bound events through this handler.
func (h *Handler) Publish(conversationID, eventType string, payload any) {
	h.broker.publish(conversationID, eventType, payload)
}

// SetExecutor binds the executor after construction, breaking the
// construction cycle: the executor needs a Notifier (this Handler) before
// it exists, and this Handler needs the executor for Dispatch/MetricsSnapshot
// calls once it exists. cmd/phoenix builds the Handler first, passes it as
// executor.Config.Notifier, then calls SetExecutor with the result.
func (h *Handler) SetExecutor(ex *executor.Executor) {
	h.ex = ex
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("GET /api/conversations", h.handleListActive)
	h.mux.HandleFunc("GET /api/conversations/archived", h.handleListArchived)
	h.mux.HandleFunc("POST /api/conversations/new", h.handleCreateConversation)
	h.mux.HandleFunc("GET /api/conversations/by-slug/{slug}", h.handleGetBySlug)
	h.mux.HandleFunc("GET /api/conversations/{id}", h.handleGetConversation)
	h.mux.HandleFunc("GET /api/conversations/{id}/stream", h.handleStream)
	h.mux.HandleFunc("GET /api/conversations/{id}/metrics", h.handleMetrics)
	h.mux.HandleFunc("POST /api/conversations/{id}/chat", h.handleChat)
	h.mux.HandleFunc("POST /api/conversations/{id}/cancel", h.handleCancel)
	h.mux.HandleFunc("POST /api/conversations/{id}/continuation", h.handleContinuation)
	h.mux.HandleFunc("POST /api/conversations/{id}/steer", h.handleSteer)
	h.mux.HandleFunc("POST /api/conversations/{id}/archive", h.handleArchive)
	h.mux.HandleFunc("POST /api/conversations/{id}/unarchive", h.handleUnarchive)
	h.mux.HandleFunc("POST /api/conversations/{id}/delete", h.handleDelete)
	h.mux.HandleFunc("POST /api/conversations/{id}/rename", h.handleRename)
	h.mux.HandleFunc("POST /api/conversations/{id}/failover", h.handleFailover)
	h.mux.HandleFunc("GET /api/models", h.handleModels)
	h.mux.HandleFunc("POST /api/mkdir", h.handleMkdir)
}

// ServeHTTP implements http.Handler directly (no base-path stripping is
// needed: unlike the teacher's dashboard, this surface is mounted at root).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount wraps the handler with the CSRF and request-logging middleware,
// matching the teacher's web.Handler.Mount layering order (auth/CSRF first,
// logging outermost).
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	handler = csrfMiddleware(handler)
	handler = metricsMiddleware(h.metrics)(handler)
	handler = loggingMiddleware(h.log)(handler)
	return handler
}

func trimmedPathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

func nowUTC() time.Time { return time.Now().UTC() }
