package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "user-1",
		EventType: RealtimeEventNotification,
		Payload:   []string{"New signal from Norway! 📡"},
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventNotification {
			t.Fatalf("expected event type %s, got %s", RealtimeEventNotification, received.EventType)
		}
		if received.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be stamped on publish")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{UserID: "user-3", EventType: RealtimeEventFeed})

	select {
	case <-userStream:
		t.Fatal("did not expect message for other user")
	case <-otherStream:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message for user-3")
	}
}

func TestRealtimeDispatcherKeepsNewestWhenFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()

	total := defaultRealtimeBuffer + 5
	for i := 0; i < total; i++ {
		dispatcher.Publish(RealtimeMessage{UserID: "user-4", EventType: RealtimeEventFeed, Payload: i})
	}

	var last any
	for i := 0; i < defaultRealtimeBuffer; i++ {
		last = (<-stream).Payload
	}
	if last != total-1 {
		t.Fatalf("expected newest message retained, got %v", last)
	}
	select {
	case extra := <-stream:
		t.Fatalf("expected buffer drained, got %v", extra)
	default:
	}
}

func TestRealtimeDispatcherUnsubscribesOnContextCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-5")
	defer cleanup()
	if dispatcher.SubscriberCount("user-5") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("user-5") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	closed, noop := dispatcher.Subscribe(context.Background(), "")
	noop()
	if _, open := <-closed; open {
		t.Fatal("expected closed stream for anonymous subscriber")
	}
}
