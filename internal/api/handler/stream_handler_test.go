package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/api/handler"
	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/domain"
)

func newStreamServer(t *testing.T, b *broker.Broker, hooks handler.StreamHooks) *httptest.Server {
	t.Helper()
	sh := handler.NewStreamHandler(b, time.Hour, zap.NewNop(), hooks)
	srv := httptest.NewServer(http.HandlerFunc(sh.Stream))
	t.Cleanup(srv.Close)
	return srv
}

// openStream connects to the SSE endpoint and returns a reader over the
// response body plus a cancel func that drops the connection.
func openStream(t *testing.T, url string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	return bufio.NewReader(resp.Body), cancel
}

// readDataFrame reads lines until the next "data:" frame and decodes it.
func readDataFrame(t *testing.T, r *bufio.Reader) domain.BroadcastEvent {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue // heartbeat comments, blank separators
		}
		var ev domain.BroadcastEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data: "))), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		return ev
	}
}

// waitForSubscribers polls until the topic has n subscribers.
func waitForSubscribers(t *testing.T, b *broker.Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b.Subscribers(broker.TopicNotifications) == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", n, b.Subscribers(broker.TopicNotifications))
}

func TestStream_DeliversPublishedEvents(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()
	srv := newStreamServer(t, b, handler.StreamHooks{})

	r, _ := openStream(t, srv.URL)
	waitForSubscribers(t, b, 1)

	want := domain.BroadcastEvent{Recipient: "u1", Title: "Donation Successful", Message: "₹500 donated"}
	if err := b.Publish(broker.TopicNotifications, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := readDataFrame(t, r); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStream_DisconnectReleasesSubscription(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()

	var connects, disconnects int
	done := make(chan struct{}, 8)
	srv := newStreamServer(t, b, handler.StreamHooks{
		OnConnect: func() { connects++ },
		OnDisconnect: func() {
			disconnects++
			done <- struct{}{}
		},
	})

	_, cancel := openStream(t, srv.URL)
	waitForSubscribers(t, b, 1)

	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never observed the disconnect")
	}
	waitForSubscribers(t, b, 0)

	if connects != 1 || disconnects != 1 {
		t.Fatalf("expected 1 connect / 1 disconnect, got %d/%d", connects, disconnects)
	}
}

func TestStream_RepeatedConnectionsDoNotLeak(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	defer b.Close()
	srv := newStreamServer(t, b, handler.StreamHooks{})

	for i := 0; i < 5; i++ {
		_, cancel := openStream(t, srv.URL)
		waitForSubscribers(t, b, 1)
		cancel()
		waitForSubscribers(t, b, 0)
	}
}

func TestStream_BrokerCloseEndsStream(t *testing.T) {
	b := broker.New(0, broker.Hooks{})
	srv := newStreamServer(t, b, handler.StreamHooks{})

	r, _ := openStream(t, srv.URL)
	waitForSubscribers(t, b, 1)

	b.Close()

	// The handler returns, the body reaches EOF.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
	}
	t.Fatal("stream stayed open after broker shutdown")
}
