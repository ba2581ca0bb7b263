package gatewayhttp

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBroadcasterPublishDeliversToSubscriber(t *testing.T) {
	b := newBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := b.subscribe("conv-1")
	defer b.unsubscribe("conv-1", sub)

	b.publish("conv-1", "message.created", map[string]string{"id": "m1"})

	select {
	case frame := <-sub.send:
		if frame.event != "message.created" {
			t.Errorf("event = %q, want message.created", frame.event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published frame")
	}
}

func TestBroadcasterPublishIgnoresOtherConversations(t *testing.T) {
	b := newBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := b.subscribe("conv-1")
	defer b.unsubscribe("conv-1", sub)

	b.publish("conv-2", "message.created", map[string]string{"id": "m1"})

	select {
	case frame := <-sub.send:
		t.Fatalf("unexpected frame delivered: %+v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := b.subscribe("conv-1")
	b.unsubscribe("conv-1", sub)

	_, ok := <-sub.send
	if ok {
		t.Fatal("expected send channel to be closed after unsubscribe")
	}
}

func TestSSESubscriberEnqueueDropsWhenBufferFull(t *testing.T) {
	sub := &sseSubscriber{send: make(chan sseFrame, 1)}
	sub.enqueue("a", []byte("1"))
	sub.enqueue("b", []byte("2")) // buffer full, should drop silently rather than block

	frame := <-sub.send
	if frame.event != "a" {
		t.Errorf("event = %q, want a (first frame kept)", frame.event)
	}
	select {
	case extra := <-sub.send:
		t.Fatalf("unexpected second frame: %+v", extra)
	default:
	}
}

func TestWriteFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	writeFrame(rec, "state.changed", []byte(`{"state":"idle"}`))

	want := "event: state.changed\ndata: {\"state\":\"idle\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}
