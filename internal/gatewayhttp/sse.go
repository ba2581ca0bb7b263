package gatewayhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

// sseSubscriber is one open /stream connection, grounded on the teacher's
// wsSession: a sequence counter (atomic, per-connection) and a buffered
// send channel the publisher never blocks on — a slow or gone client drops
// its own frames instead of stalling the conversation's actor loop
// (spec.md §5 backpressure).
type sseSubscriber struct {
	id   int64
	send chan sseFrame
	seq  int64
}

type sseFrame struct {
	event   string
	payload []byte
}

func (s *sseSubscriber) enqueue(event string, payload []byte) {
	seq := atomic.AddInt64(&s.seq, 1)
	_ = seq // sequence_id on the envelope itself comes from the message/state payload; this counter exists for parity with the teacher's wsSession and future ordering diagnostics.
	select {
	case s.send <- sseFrame{event: event, payload: payload}:
	default:
		// Buffer full: drop rather than block the publisher. The client's
		// next GET .../stream?after=N resumes from the last sequence_id it
		// actually saw.
	}
}

// broadcaster fans NotifyStateChange/NotifyMessage/NotifyAgentDone events
// out to every open subscriber for a conversation. It implements
// executor.Notifier via Handler.Publish.
type broadcaster struct {
	log *slog.Logger

	mu          sync.Mutex
	subscribers map[string]map[int64]*sseSubscriber
	nextID      int64
}

func newBroadcaster(log *slog.Logger) *broadcaster {
	return &broadcaster{
		log:         log,
		subscribers: make(map[string]map[int64]*sseSubscriber),
	}
}

func (b *broadcaster) subscribe(conversationID string) *sseSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &sseSubscriber{id: b.nextID, send: make(chan sseFrame, 64)}
	if b.subscribers[conversationID] == nil {
		b.subscribers[conversationID] = make(map[int64]*sseSubscriber)
	}
	b.subscribers[conversationID][sub.id] = sub
	return sub
}

func (b *broadcaster) unsubscribe(conversationID string, sub *sseSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[conversationID]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}
	close(sub.send)
}

// publish implements executor.Notifier.Publish. payload is already either a
// json.RawMessage (pre-encoded via convcore.EncodeState/EncodeMessageJSON)
// or a plain value to be marshaled as-is (e.g. the context_exhausted
// summary map).
func (b *broadcaster) publish(conversationID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("sse publish: marshal payload", "conversation_id", conversationID, "event", event, "error", err)
		return
	}
	b.mu.Lock()
	subs := make([]*sseSubscriber, 0, len(b.subscribers[conversationID]))
	for _, sub := range b.subscribers[conversationID] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	for _, sub := range subs {
		sub.enqueue(event, data)
	}
}

// writeSSE streams init, then every subsequent frame, over
// text/event-stream until the client disconnects or the request context is
// canceled. init always fires first (spec.md §6.2).
func writeSSE(w http.ResponseWriter, r *http.Request, sub *sseSubscriber, initEvent string, initPayload []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeFrame(w, initEvent, initPayload)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.send:
			if !ok {
				writeFrame(w, "disconnected", []byte(`{}`))
				flusher.Flush()
				return
			}
			writeFrame(w, frame.event, frame.payload)
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, event string, payload []byte) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
