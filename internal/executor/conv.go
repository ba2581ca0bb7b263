package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/scottopell/phoenix-ide/internal/compaction"
	"github.com/scottopell/phoenix-ide/internal/jobs"
	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/tools/subagent"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// spawnAgentsToolName must match subagent.Tool.Name(); the executor needs to
// recognize this one tool's completion specially because its result carries
// a manifest of child conversations to create, not plain text for the LLM.
const spawnAgentsToolName = "spawn_agents"

type envelope struct {
	event convcore.Event
	ack   chan error
}

// conv is the actor for a single conversation: one goroutine draining
// inbox, applying Transition and its effects in strict order. All mutable
// fields below are only ever touched from that one goroutine except where
// a mutex is explicit, matching the teacher's single-writer-per-resource
// convention for its session runtimes.
type conv struct {
	ex   *Executor
	info ConversationInfo

	state convcore.ConvState
	inbox chan envelope

	// modelSwitch carries an explicit failover model change (SPEC_FULL.md
	// §7.3) into the actor goroutine, so c.info.Model is only ever written
	// by the same goroutine that reads it in convContext.
	modelSwitch chan statemachine.ModelInfo

	mu              sync.Mutex
	llmCancel       context.CancelFunc
	toolCancels     map[string]context.CancelFunc
	subAgentCancels map[string]context.CancelFunc

	// limiter throttles this conversation's outbound LLM requests
	// independent of c.inbox (config.ExecutorConfig.RequestsPerSecond).
	// nil when limiting is disabled.
	limiter *rate.Limiter

	metrics convMetrics
}

// newConvLimiter builds a conversation's rate limiter, or nil if limiting
// is disabled (requestsPerSecond <= 0). Burst is fixed at 1 so a
// conversation can never front-load a batch of requests beyond its steady
// rate — each LLM call already waits for the tool/continuation turn ahead
// of it, so bursting has no legitimate use here.
func newConvLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

func (c *conv) run() {
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				return
			}
			err := c.handle(env.event)
			env.ack <- err
		case model := <-c.modelSwitch:
			c.info.Model = model
		}
	}
}

func (c *conv) convContext() statemachine.ConvContext {
	return statemachine.ConvContext{
		ConversationID: c.info.ConversationID,
		Model:          c.info.Model,
		IsSubAgent:     c.info.IsSubAgent,
		Now:            c.ex.clock.Now(),
		NextMessageID:  newID,
	}
}

func (c *conv) handle(event convcore.Event) error {
	next, effects, err := statemachine.Transition(c.state, event, c.convContext())
	if err != nil {
		if c.ex.metrics != nil {
			c.ex.metrics.TransitionErrors.WithLabelValues(transitionErrorReason(err)).Inc()
		}
		return err
	}
	c.state = next
	if c.ex.metrics != nil {
		c.ex.metrics.TransitionCounter.WithLabelValues(next.Name(), event.Name()).Inc()
	}
	c.applyEffects(effects)
	c.routeTerminalOutcome()
	c.drainSteeringIfIdle()
	return nil
}

// transitionErrorReason extracts a low-cardinality label from a
// *statemachine.TransitionError for the TransitionErrors counter, falling
// back to the bare error string for anything else.
func transitionErrorReason(err error) string {
	var te *statemachine.TransitionError
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return err.Error()
}

// drainSteeringIfIdle delivers the next queued follow-up/steer message
// (SPEC_FULL.md §7.4) the instant a conversation returns to Idle. Only one
// item is dequeued per Idle arrival: delivering it as a UserMessage event
// moves the conversation straight back to LlmRequesting, and the rest of
// the queue waits for the next Idle arrival rather than being flooded in at
// once.
func (c *conv) drainSteeringIfIdle() {
	if c.ex.steering == nil {
		return
	}
	if _, idle := c.state.(convcore.Idle); !idle {
		return
	}
	item, ok := c.ex.steering.Dequeue(c.info.ConversationID)
	if !ok {
		return
	}
	c.ex.dispatchAsync(c.info.ConversationID, convcore.UserMessage{
		LocalID:   item.LocalID,
		Text:      item.Text,
		UserAgent: item.UserAgent,
	})
}

// applyEffects runs each effect in the order Transition returned them.
// Persistence effects are awaited synchronously; Request*/Execute*/Spawn*
// effects start background work that reports back into this conversation's
// inbox via dispatchAsync once it completes.
func (c *conv) applyEffects(effects []convcore.Effect) {
	ctx := context.Background()
	for _, eff := range effects {
		switch e := eff.(type) {
		case convcore.PersistUserMessage:
			if err := c.ex.store.PersistUserMessage(ctx, e.Message); err != nil {
				c.onPersistenceFailure(err)
				return
			}
		case convcore.PersistAgentMessage:
			if err := c.ex.store.PersistAgentMessage(ctx, e.Message); err != nil {
				c.onPersistenceFailure(err)
				return
			}
		case convcore.PersistToolResult:
			if err := c.ex.store.PersistToolResult(ctx, e.ConversationID, e.Result); err != nil {
				c.onPersistenceFailure(err)
				return
			}
		case convcore.PersistContinuationMessage:
			if err := c.ex.store.PersistContinuationMessage(ctx, e.ConversationID, e.Summary); err != nil {
				c.onPersistenceFailure(err)
				return
			}
		case convcore.PersistState:
			if err := c.ex.store.PersistState(ctx, e.ConversationID, e.State); err != nil {
				c.onPersistenceFailure(err)
				return
			}

		case convcore.RequestLlm:
			c.startLlmRequest(e.Attempt)
		case convcore.RequestContinuation:
			c.startContinuationRequest()
		case convcore.ExecuteTool:
			c.startTool(e.ToolUse)
		case convcore.SpawnSubAgent:
			go c.ex.spawnSubAgent(e.ConversationID, e.AgentID, e.Task)
		case convcore.CancelSubAgents:
			for _, id := range e.ConversationIDs {
				c.ex.dispatchAsync(id, convcore.UserCancel{})
			}

		case convcore.AbortLlm:
			c.mu.Lock()
			if c.llmCancel != nil {
				c.llmCancel()
			}
			c.mu.Unlock()
		case convcore.AbortTool:
			c.mu.Lock()
			if cancel, ok := c.toolCancels[e.ToolUseID]; ok {
				cancel()
			}
			c.mu.Unlock()

		case convcore.NotifyStateChange:
			encoded, err := convcore.EncodeState(e.State)
			if err != nil {
				c.ex.log.Error("encode state for notify", "conversation_id", e.ConversationID, "error", err)
				continue
			}
			c.ex.notifier.Publish(e.ConversationID, "state_change", json.RawMessage(encoded))
		case convcore.NotifyMessage:
			encoded, err := convcore.EncodeMessageJSON(e.Message)
			if err != nil {
				c.ex.log.Error("encode message for notify", "conversation_id", e.ConversationID, "error", err)
				continue
			}
			c.ex.notifier.Publish(e.ConversationID, "message", json.RawMessage(encoded))
		case convcore.NotifyAgentDone:
			encoded, err := convcore.EncodeState(e.FinalState)
			if err != nil {
				c.ex.log.Error("encode final state for agent_done", "conversation_id", e.ConversationID, "error", err)
				continue
			}
			c.ex.notifier.Publish(e.ConversationID, "agent_done", json.RawMessage(encoded))
		case convcore.NotifyContextExhausted:
			c.ex.notifier.Publish(e.ConversationID, "context_exhausted", map[string]any{"summary": e.Summary})

		case convcore.Backoff:
			attempt := e.Attempt
			go func() {
				c.ex.clock.Sleep(e.Duration)
				c.startLlmRequest(attempt)
			}()

		default:
			c.ex.log.Warn("unhandled effect", "conversation_id", c.info.ConversationID, "effect", eff.Name())
		}
	}
}

func (c *conv) onPersistenceFailure(err error) {
	c.ex.log.Error("persistence effect failed", "conversation_id", c.info.ConversationID, "error", err)
	failState := convcore.Error{Kind: convcore.ErrorKindPersistenceFailure, Message: err.Error(), Attempt: 1}
	c.state = failState
	// Best-effort: if the store is unavailable the state update may also
	// fail, but we still flip the in-memory state so the actor rejects
	// further events rather than silently continuing on corrupt history.
	_ = c.ex.store.PersistState(context.Background(), c.info.ConversationID, failState)
	if encoded, encErr := convcore.EncodeState(failState); encErr == nil {
		c.ex.notifier.Publish(c.info.ConversationID, "state_change", json.RawMessage(encoded))
		c.ex.notifier.Publish(c.info.ConversationID, "agent_done", json.RawMessage(encoded))
	}
}

func (c *conv) startLlmRequest(attempt int) {
	c.metrics.executions.Add(1)
	if attempt > 1 {
		c.metrics.retries.Add(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.llmCancel = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.llmCancel = nil
			c.mu.Unlock()
		}()

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmAborted{})
				return
			}
		}

		history, err := c.ex.store.ListMessages(ctx, c.info.ConversationID)
		if err != nil {
			c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmError{Kind: convcore.ErrorKindUnknown, Message: err.Error()})
			return
		}
		req := LlmRequest{
			ConversationID: c.info.ConversationID,
			Model:          c.info.Model,
			History:        history,
			Tools:          c.ex.buildToolSchemas(),
		}
		llmStart := time.Now()
		result, err := c.ex.llm.Complete(ctx, req)
		if c.ex.metrics != nil {
			c.ex.metrics.LLMRequestDuration.WithLabelValues(providerForModel(c.info.Model.ID), c.info.Model.ID).Observe(time.Since(llmStart).Seconds())
		}
		if err != nil {
			if ctx.Err() == context.Canceled {
				c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmAborted{})
				return
			}
			kind, msg := classifyLlmError(err)
			c.metrics.failures.Add(1)
			if kind == convcore.ErrorKindTimedOut {
				c.metrics.timeouts.Add(1)
			}
			if c.ex.metrics != nil {
				c.ex.metrics.LLMRequestCounter.WithLabelValues(providerForModel(c.info.Model.ID), c.info.Model.ID, "error").Inc()
			}
			c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmError{Kind: kind, Message: msg})
			return
		}
		if c.ex.metrics != nil {
			c.ex.metrics.LLMRequestCounter.WithLabelValues(providerForModel(c.info.Model.ID), c.info.Model.ID, "success").Inc()
			c.ex.metrics.LLMTokensUsed.WithLabelValues(providerForModel(c.info.Model.ID), c.info.Model.ID, "input").Add(float64(result.Usage.InputTokens))
			c.ex.metrics.LLMTokensUsed.WithLabelValues(providerForModel(c.info.Model.ID), c.info.Model.ID, "output").Add(float64(result.Usage.OutputTokens))
		}
		if len(result.Blocks) == 0 {
			c.metrics.failures.Add(1)
			c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmError{Kind: convcore.ErrorKindUnknown, Message: "empty provider response"})
			return
		}
		c.ex.dispatchAsync(c.info.ConversationID, convcore.LlmResponse{Blocks: result.Blocks, Usage: result.Usage})
	}()
}

func (c *conv) startContinuationRequest() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.llmCancel = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.llmCancel = nil
			c.mu.Unlock()
		}()

		history, err := c.ex.store.ListMessages(ctx, c.info.ConversationID)
		if err != nil {
			c.ex.dispatchAsync(c.info.ConversationID, convcore.ContinuationFailed{Message: err.Error()})
			return
		}

		config := compaction.DefaultSummarizationConfig()
		config.ContextWindow = compaction.ResolveContextWindowTokens(int(c.info.Model.ContextWindow), compaction.DefaultContextWindow)
		config.Model = c.info.Model.ID
		summarizer := compaction.ConvSummarizer{
			ConversationID: c.info.ConversationID,
			ModelID:        c.info.Model.ID,
			ContextWindow:  c.info.Model.ContextWindow,
			Complete:       c.ex.llmContinuation,
		}
		summary, err := compaction.SummarizeWithFallback(ctx, compaction.FromConvMessages(history), summarizer, config)
		if err != nil {
			c.ex.dispatchAsync(c.info.ConversationID, convcore.ContinuationFailed{Message: err.Error()})
			return
		}
		c.ex.dispatchAsync(c.info.ConversationID, convcore.ContinuationResponse{Summary: summary})
	}()
}

func (c *conv) startTool(toolUse convcore.ToolUseBlock) {
	c.metrics.executions.Add(1)
	tool, ok := c.ex.tools.Get(toolUse.Name)
	if !ok {
		result := convcore.ToolResultBlock{ToolUseID: toolUse.ID, Content: fmt.Sprintf("unknown tool %q", toolUse.Name), IsError: true}
		c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
		return
	}

	if c.ex.jobs != nil && c.ex.asyncTools[toolUse.Name] {
		c.startAsyncTool(tool, toolUse)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.toolCancels[toolUse.ID] = cancel
	c.mu.Unlock()

	start := time.Now()
	type outcome struct {
		out ToolOutput
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.metrics.panics.Add(1)
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", toolUse.Name, r)}
			}
		}()
		out, err := tool.Run(ToolRunContext{Context: ctx, WorkingDir: c.info.CWD}, toolUse.Input)
		done <- outcome{out: out, err: err}
	}()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.toolCancels, toolUse.ID)
			c.mu.Unlock()
		}()

		select {
		case res := <-done:
			if c.ex.metrics != nil {
				c.ex.metrics.ToolDuration.WithLabelValues(toolUse.Name).Observe(time.Since(start).Seconds())
			}
			if res.err != nil {
				c.metrics.failures.Add(1)
				if c.ex.metrics != nil {
					c.ex.metrics.ToolExecutions.WithLabelValues(toolUse.Name, "error").Inc()
				}
				result := convcore.ToolResultBlock{ToolUseID: toolUse.ID, Content: res.err.Error(), IsError: true}
				c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
				return
			}
			if res.out.IsError {
				c.metrics.failures.Add(1)
			}
			if c.ex.metrics != nil {
				status := "success"
				if res.out.IsError {
					status = "error"
				}
				c.ex.metrics.ToolExecutions.WithLabelValues(toolUse.Name, status).Inc()
			}
			result := convcore.ToolResultBlock{
				ToolUseID:   toolUse.ID,
				Content:     res.out.Content,
				IsError:     res.out.IsError,
				DisplayData: res.out.DisplayData,
			}
			if toolUse.Name == spawnAgentsToolName && !res.out.IsError {
				idsWithTasks, err := subagent.ParseManifest(res.out.DisplayData)
				if err != nil {
					result.IsError = true
					result.Content = err.Error()
					c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
					return
				}
				// SpawnAgentsComplete must land first: it records
				// PendingSubAgents while CurrentTool still identifies this
				// call, so the ToolComplete that follows routes into
				// AwaitingSubAgents instead of straight back to the LLM.
				c.ex.dispatchAsync(c.info.ConversationID, convcore.SpawnAgentsComplete{IDsWithTasks: idsWithTasks})
				c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
				return
			}
			c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				c.metrics.timeouts.Add(1)
			}
			c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolAborted{ID: toolUse.ID})
		}
	}()
}

// startAsyncTool implements SPEC_FULL.md §7.5: a tool flagged in
// ExecutorConfig.AsyncTools runs detached. The paired ToolResult for
// toolUse.ID is the synthetic "queued" result dispatched immediately below
// (invariant 3.2.4: exactly one ToolResult per tool_use id); the real
// outcome, once the job finishes, is persisted as a continuation-style
// system note instead of a second ToolResult.
func (c *conv) startAsyncTool(tool Tool, toolUse convcore.ToolUseBlock) {
	jobID := uuid.NewString()
	job := &jobs.Job{
		ID:             jobID,
		ConversationID: c.info.ConversationID,
		ToolName:       toolUse.Name,
		ToolUseID:      toolUse.ID,
		Status:         jobs.StatusQueued,
		CreatedAt:      time.Now().UTC(),
	}
	createCtx, createCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.ex.jobs.Create(createCtx, job); err != nil {
		createCancel()
		result := convcore.ToolResultBlock{ToolUseID: toolUse.ID, Content: fmt.Sprintf("queue job: %s", err), IsError: true}
		c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: result})
		return
	}
	createCancel()

	queued := convcore.ToolResultBlock{ToolUseID: toolUse.ID, Content: fmt.Sprintf("queued as job %s", jobID), IsError: false}
	c.ex.dispatchAsync(c.info.ConversationID, convcore.ToolComplete{ID: toolUse.ID, Result: queued})

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.toolCancels[toolUse.ID] = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.toolCancels, toolUse.ID)
			c.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				c.metrics.panics.Add(1)
				c.finishAsyncJob(job, "", fmt.Errorf("tool %s panicked: %v", toolUse.Name, r))
			}
		}()

		started := *job
		started.Status = jobs.StatusRunning
		started.StartedAt = time.Now().UTC()
		updateCtx, updateCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.ex.jobs.Update(updateCtx, &started)
		updateCancel()

		out, err := tool.Run(ToolRunContext{Context: ctx, WorkingDir: c.info.CWD}, toolUse.Input)
		if err != nil {
			c.finishAsyncJob(job, "", err)
			return
		}
		c.finishAsyncJob(job, out.Content, nil)
	}()
}

// finishAsyncJob records a background job's outcome and surfaces it as a
// continuation-style system note (never a second ToolResult for the job's
// tool_use id, per invariant 3.2.4).
func (c *conv) finishAsyncJob(job *jobs.Job, content string, runErr error) {
	final := *job
	final.FinishedAt = time.Now().UTC()
	summary := fmt.Sprintf("job %s (%s) finished: %s", job.ID, job.ToolName, content)
	if runErr != nil {
		final.Status = jobs.StatusFailed
		final.Error = runErr.Error()
		summary = fmt.Sprintf("job %s (%s) failed: %s", job.ID, job.ToolName, runErr)
	} else {
		final.Status = jobs.StatusSucceeded
		final.Result = &convcore.ToolResultBlock{ToolUseID: job.ToolUseID, Content: content}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ex.jobs.Update(ctx, &final); err != nil {
		c.ex.log.Error("update async job", "job_id", job.ID, "error", err)
	}
	if err := c.ex.store.PersistContinuationMessage(ctx, job.ConversationID, summary); err != nil {
		c.ex.log.Error("persist async job note", "job_id", job.ID, "error", err)
		return
	}
	c.ex.notifier.Publish(job.ConversationID, "job_complete", map[string]any{"job_id": job.ID, "tool_name": job.ToolName, "status": string(final.Status)})
}

// routeTerminalOutcome posts this conversation's result to its parent the
// moment it reaches a terminal state, if it is a sub-agent. Parents learn
// about child completion exclusively through this path, never by polling.
func (c *conv) routeTerminalOutcome() {
	if !c.info.IsSubAgent {
		return
	}
	outcome, done := terminalOutcome(c.info.ConversationID, c.state)
	if !done {
		return
	}
	c.ex.dispatchAsync(c.info.ParentID, convcore.SubAgentResult{ID: c.info.ConversationID, Outcome: outcome})
}

func terminalOutcome(conversationID string, state convcore.ConvState) (convcore.SubAgentOutcome, bool) {
	switch s := state.(type) {
	case convcore.Completed:
		return convcore.SubAgentOutcome{ConversationID: conversationID, Success: true, Summary: "sub-agent completed"}, true
	case convcore.Failed:
		return convcore.SubAgentOutcome{ConversationID: conversationID, Success: false, ErrorMessage: s.Message}, true
	case convcore.ContextExhausted:
		return convcore.SubAgentOutcome{ConversationID: conversationID, Success: true, Summary: s.Summary}, true
	default:
		return convcore.SubAgentOutcome{}, false
	}
}
