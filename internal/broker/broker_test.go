package broker_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/domain"
)

func event(msg string) domain.BroadcastEvent {
	return domain.BroadcastEvent{Recipient: "u1", Title: "t", Message: msg}
}

func receive(t *testing.T, sub *broker.Subscription) domain.BroadcastEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.BroadcastEvent{}
}

func TestBroker_FanOutToAllCurrentSubscribers(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()

	sub1 := b.Subscribe("notifications")
	sub2 := b.Subscribe("notifications")
	other := b.Subscribe("other-topic")

	if err := b.Publish("notifications", event("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []*broker.Subscription{sub1, sub2} {
		got := receive(t, sub)
		if got.Message != "hello" {
			t.Fatalf("expected hello, got %q", got.Message)
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("subscriber on another topic received %+v", ev)
	default:
	}
}

func TestBroker_NoReplayForLateSubscriber(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()

	early := b.Subscribe("notifications")
	if err := b.Publish("notifications", event("before")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	late := b.Subscribe("notifications")

	select {
	case ev := <-late.Events():
		t.Fatalf("late subscriber replayed %+v", ev)
	default:
	}

	// The early subscriber still has its message.
	if got := receive(t, early); got.Message != "before" {
		t.Fatalf("expected before, got %q", got.Message)
	}
}

func TestBroker_PerSubscriberOrderFollowsPublishOrder(t *testing.T) {
	b := broker.New(32, broker.Hooks{})
	defer b.Close()

	sub := b.Subscribe("notifications")
	for i := 0; i < 10; i++ {
		if err := b.Publish("notifications", event(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		if got := receive(t, sub); got.Message != fmt.Sprintf("m%d", i) {
			t.Fatalf("out of order at %d: got %q", i, got.Message)
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	var dropped int
	b := broker.New(2, broker.Hooks{
		OnDropped: func(string) { dropped++ },
	})
	defer b.Close()

	stalled := b.Subscribe("notifications")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The stalled subscriber never reads; its buffer (2) fills and the
		// rest must be dropped without ever blocking this loop.
		for i := 0; i < 5; i++ {
			_ = b.Publish("notifications", event(fmt.Sprintf("m%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	if dropped != 3 {
		t.Fatalf("expected 3 drops for the stalled subscriber, got %d", dropped)
	}

	// The buffered prefix survives; only the overflow was discarded.
	for i := 0; i < 2; i++ {
		if got := receive(t, stalled); got.Message != fmt.Sprintf("m%d", i) {
			t.Fatalf("expected buffered m%d, got %q", i, got.Message)
		}
	}
}

func TestBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()

	sub := b.Subscribe("notifications")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second release must be a no-op
	b.Unsubscribe(nil)

	if n := b.Subscribers("notifications"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}

	// Publishing after release must neither block nor panic.
	if err := b.Publish("notifications", event("after")); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed event sequence after unsubscribe")
	}
}

func TestBroker_Close(t *testing.T) {
	b := broker.New(0, broker.Hooks{})

	sub := b.Subscribe("notifications")
	b.Close()
	b.Close() // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected subscription channel closed by broker Close")
	}

	if err := b.Publish("notifications", event("x")); !errors.Is(err, broker.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	// Subscribing during shutdown yields an already-finished sequence.
	late := b.Subscribe("notifications")
	if _, ok := <-late.Events(); ok {
		t.Fatal("expected closed sequence for post-Close subscriber")
	}
}

func TestBroker_ConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	b := broker.New(4, broker.Hooks{})
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe("notifications")
			_ = b.Publish("notifications", event("x"))
			b.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	if n := b.Subscribers("notifications"); n != 0 {
		t.Fatalf("expected no leaked subscribers, got %d", n)
	}
}
