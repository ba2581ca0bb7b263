package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/scottopell/phoenix-ide/internal/jobs"
	"github.com/scottopell/phoenix-ide/internal/models"
	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/steering"
	"github.com/scottopell/phoenix-ide/internal/telemetry"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// Config bundles the executor's injected collaborators, mirroring the
// teacher's constructor-injection convention (logger passed explicitly,
// never a package global).
type Config struct {
	Store    Store
	Llm      LlmClient
	Tools    ToolRunner
	Notifier Notifier
	Clock    Clock
	Logger   *slog.Logger

	// InboxSize bounds each conversation's event channel. The HTTP layer
	// blocks on Dispatch until a slot frees, providing the backpressure
	// the spec requires rather than dropping events.
	InboxSize int

	// Steering optionally backs the follow-up/steer queue (SPEC_FULL.md
	// §7.4). When nil, conversations never check for queued follow-ups.
	Steering *steering.Queue

	// Jobs backs detached async tool execution (SPEC_FULL.md §7.5). When
	// nil, every tool in AsyncTools still runs, just synchronously like
	// any other tool, since there is nowhere to track its job record.
	Jobs jobs.Store

	// AsyncTools lists tool names that run as a detached job instead of
	// blocking the conversation's tool queue: the actor persists a
	// synthetic "queued" ToolResult immediately and the job's real
	// completion surfaces later as a continuation-style system note
	// (never a second ToolResult for the same tool_use id, per invariant
	// 3.2.4).
	AsyncTools []string

	// RequestsPerSecond bounds each conversation's outbound LLM calls via
	// its own golang.org/x/time/rate.Limiter, independent of whatever
	// rate limiting the provider itself applies. Zero disables limiting.
	RequestsPerSecond float64

	// Metrics records Prometheus counters/histograms for transitions, tool
	// executions, and LLM requests. Nil disables metrics recording.
	Metrics *telemetry.Metrics
}

// Executor is the async driver: one actor goroutine per conversation,
// applying statemachine.Transition's effects strictly in order and owning
// every cancellation token for that conversation's in-flight operations.
type Executor struct {
	store    Store
	llm      LlmClient
	tools    ToolRunner
	notifier Notifier
	clock    Clock
	log      *slog.Logger
	inbox             int
	steering          *steering.Queue
	jobs              jobs.Store
	asyncTools        map[string]bool
	requestsPerSecond float64
	metrics           *telemetry.Metrics

	mu    sync.Mutex
	convs map[string]*conv
}

func New(cfg Config) *Executor {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inbox := cfg.InboxSize
	if inbox <= 0 {
		inbox = 32
	}
	asyncTools := make(map[string]bool, len(cfg.AsyncTools))
	for _, name := range cfg.AsyncTools {
		asyncTools[name] = true
	}
	return &Executor{
		store:             cfg.Store,
		llm:               cfg.Llm,
		tools:             cfg.Tools,
		notifier:          cfg.Notifier,
		clock:             clock,
		log:               logger,
		inbox:             inbox,
		steering:          cfg.Steering,
		jobs:              cfg.Jobs,
		asyncTools:        asyncTools,
		requestsPerSecond: cfg.RequestsPerSecond,
		metrics:           cfg.Metrics,
		convs:             make(map[string]*conv),
	}
}

// Start registers a conversation and launches its actor loop. initialState
// is normally convcore.Idle{} for a brand-new conversation, or whatever
// crash recovery (internal/recovery) resolved it to on resume.
func (ex *Executor) Start(info ConversationInfo, initialState convcore.ConvState) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if _, exists := ex.convs[info.ConversationID]; exists {
		return
	}
	c := &conv{
		ex:              ex,
		info:            info,
		state:           initialState,
		inbox:           make(chan envelope, ex.inbox),
		modelSwitch:     make(chan statemachine.ModelInfo),
		toolCancels:     make(map[string]context.CancelFunc),
		subAgentCancels: make(map[string]context.CancelFunc),
		limiter:         newConvLimiter(ex.requestsPerSecond),
	}
	ex.convs[info.ConversationID] = c
	if ex.metrics != nil {
		ex.metrics.ActiveConversations.Inc()
	}
	go c.run()
}

// SetModel applies an explicit failover model switch (SPEC_FULL.md §7.3) to
// a running conversation's actor. It only updates in-memory routing for the
// conversation's next LLM request; the caller is responsible for persisting
// the switch to storage first. It returns an error when no actor is running
// for conversationID, which includes a conversation that finished between
// dispatch and delivery.
func (ex *Executor) SetModel(ctx context.Context, conversationID string, model statemachine.ModelInfo) error {
	c, ok := ex.get(conversationID)
	if !ok {
		return fmt.Errorf("no running conversation %s", conversationID)
	}
	select {
	case c.modelSwitch <- model:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a conversation has an active actor registered.
func (ex *Executor) Running(conversationID string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	_, ok := ex.convs[conversationID]
	return ok
}

func (ex *Executor) get(conversationID string) (*conv, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	c, ok := ex.convs[conversationID]
	return c, ok
}

// Dispatch posts an event to a conversation's actor and waits for the
// transition's synchronous outcome (nil, or a *statemachine.TransitionError
// such as AgentBusy/CancellationInProgress). It does not wait for the
// effects that transition produced to finish running.
func (ex *Executor) Dispatch(ctx context.Context, conversationID string, event convcore.Event) error {
	c, ok := ex.get(conversationID)
	if !ok {
		return fmt.Errorf("no running conversation %s", conversationID)
	}
	ack := make(chan error, 1)
	select {
	case c.inbox <- envelope{event: event, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchAsync is used by effect handlers posting events from background
// goroutines (LLM completions, tool completions, sub-agent results): it
// never blocks the caller on the ack and logs failures instead of
// propagating them, since there is no synchronous caller left to tell.
func (ex *Executor) dispatchAsync(conversationID string, event convcore.Event) {
	c, ok := ex.get(conversationID)
	if !ok {
		ex.log.Warn("dispatch to unknown conversation", "conversation_id", conversationID, "event", event.Name())
		return
	}
	ack := make(chan error, 1)
	select {
	case c.inbox <- envelope{event: event, ack: ack}:
	default:
		// Inbox full: run this in a goroutine so we never block the
		// caller (usually another conv's actor loop, e.g. sub-agent
		// result routing) on backpressure meant for HTTP submitters.
		go func() {
			c.inbox <- envelope{event: event, ack: ack}
			<-ack
		}()
		return
	}
	go func() {
		if err := <-ack; err != nil {
			ex.log.Warn("async dispatch rejected", "conversation_id", conversationID, "event", event.Name(), "error", err)
		}
	}()
}

func (ex *Executor) buildToolSchemas() []ToolSchema {
	if ex.tools == nil {
		return nil
	}
	all := ex.tools.All()
	schemas := make([]ToolSchema, 0, len(all))
	for _, t := range all {
		schemas = append(schemas, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return schemas
}

// spawnSubAgent creates the child conversation row, registers its actor, and
// kicks it off with the task text as its first user message. Run in its own
// goroutine by the SpawnSubAgent effect handler so a slow store call never
// blocks the parent's actor loop.
func (ex *Executor) spawnSubAgent(parentID, childID, task string) {
	info, err := ex.store.CreateSubAgent(context.Background(), parentID, childID)
	if err != nil {
		ex.log.Error("spawn sub-agent failed", "parent_id", parentID, "child_id", childID, "error", err)
		ex.dispatchAsync(parentID, convcore.SubAgentResult{
			ID: childID,
			Outcome: convcore.SubAgentOutcome{
				ConversationID: childID,
				Success:        false,
				ErrorMessage:   err.Error(),
			},
		})
		return
	}
	info.IsSubAgent = true
	info.ParentID = parentID
	ex.Start(info, convcore.Idle{})
	if err := ex.Dispatch(context.Background(), childID, convcore.UserMessage{Text: task}); err != nil {
		ex.log.Error("seed sub-agent task failed", "child_id", childID, "error", err)
	}
}

// llmContinuation adapts the LlmClient's Continuation method into the plain
// function shape compaction.ConvSummarizer needs, so internal/compaction can
// drive it once per chunk (SummarizeWithFallback/SummarizeInStages) without
// internal/compaction importing internal/executor back.
func (ex *Executor) llmContinuation(ctx context.Context, conversationID, modelID string, contextWindow int64, history []convcore.Message) (string, error) {
	req := LlmRequest{
		ConversationID: conversationID,
		Model:          statemachine.ModelInfo{ID: modelID, ContextWindow: contextWindow},
		History:        history,
	}
	return ex.llm.Continuation(ctx, req)
}

// providerForModel labels a metric by the model's registered provider, or
// "unknown" for a model id not in the default catalog (e.g. a test double).
func providerForModel(modelID string) string {
	if model, ok := models.DefaultCatalog.Get(modelID); ok {
		return string(model.Provider)
	}
	return "unknown"
}

func newID() string { return uuid.NewString() }

func encodeOrNil(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
