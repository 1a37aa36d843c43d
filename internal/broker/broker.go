package broker

import (
	"errors"
	"sync"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

// TopicNotifications is the topic the worker publishes processed
// notifications on and the streaming gateway subscribes to.
const TopicNotifications = "notifications"

// ErrClosed is returned by Publish after Close. Publishers treat it as a
// best-effort delivery failure: log and move on, never fail the job.
var ErrClosed = errors.New("broker is closed")

// defaultBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events rather than blocking publishers.
const defaultBuffer = 16

// Subscription is the live binding between one consumer and a topic.
// Events() yields messages published from the moment of subscription onward;
// the channel is closed on Unsubscribe or broker Close.
type Subscription struct {
	topic string
	ch    chan domain.BroadcastEvent
}

// Events returns the subscription's message sequence. Range over it until
// it closes, or select against a cancellation signal.
func (s *Subscription) Events() <-chan domain.BroadcastEvent {
	return s.ch
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Hooks carries optional metric callbacks, injected by main.
type Hooks struct {
	OnPublished func(topic string)
	OnDropped   func(topic string)
}

// Broker is a process-wide, ephemeral pub/sub fan-out. No persistence, no
// replay: an event published while nobody listens is gone.
//
// Each subscriber owns a buffered channel; Publish hands the event to every
// current subscriber without ever blocking on any of them, so one stalled
// reader cannot delay the rest or the publisher.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	hooks  Hooks
}

func New(buffer int, hooks Hooks) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if hooks.OnPublished == nil {
		hooks.OnPublished = func(string) {}
	}
	if hooks.OnDropped == nil {
		hooks.OnDropped = func(string) {}
	}
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		hooks:  hooks,
	}
}

// Subscribe registers a new subscription on topic. The caller must release
// it with Unsubscribe; the streaming gateway does so via defer so teardown
// is synchronous with connection close.
func (b *Broker) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan domain.BroadcastEvent, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Late subscriber during shutdown: hand back an already-closed
		// sequence so the caller's receive loop exits immediately.
		close(sub.ch)
		return sub
	}

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe releases the subscription and closes its event sequence.
// Idempotent: unsubscribing twice, or after Close, is a no-op.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.ch)
}

// Publish delivers ev to every subscription currently on topic. Delivery is
// per-subscriber isolated: a full buffer means that subscriber drops the
// event, counted via the OnDropped hook. Returns ErrClosed after Close.
func (b *Broker) Publish(topic string, ev domain.BroadcastEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.topics[topic] {
		select {
		case sub.ch <- ev:
		default:
			b.hooks.OnDropped(topic)
		}
	}
	b.hooks.OnPublished(topic)
	return nil
}

// Subscribers reports the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close drains the registry: every outstanding subscription's sequence is
// closed, which cascades teardown through the streaming gateway's receive
// loops. Subsequent Publish calls return ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}
}
