package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/broker"
)

// StreamHooks carries the connect/disconnect metric callbacks injected by main.
type StreamHooks struct {
	OnConnect    func()
	OnDisconnect func()
}

// StreamHandler is the streaming gateway: it terminates one long-lived
// Server-Sent Events connection per client, binds it to a broker
// subscription for its lifetime, and tears the subscription down
// synchronously when the client goes away or the broker shuts down.
type StreamHandler struct {
	broker    *broker.Broker
	heartbeat time.Duration
	logger    *zap.Logger
	hooks     StreamHooks
}

func NewStreamHandler(b *broker.Broker, heartbeat time.Duration, logger *zap.Logger, hooks StreamHooks) *StreamHandler {
	if hooks.OnConnect == nil {
		hooks.OnConnect = func() {}
	}
	if hooks.OnDisconnect == nil {
		hooks.OnDisconnect = func() {}
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{broker: b, heartbeat: heartbeat, logger: logger, hooks: hooks}
}

// Stream handles GET /api/v1/notifications/stream
//
// One select loop drives the whole connection: client cancellation, broker
// shutdown (closed subscription channel), events, and heartbeats all arrive
// at the same place, and the deferred Unsubscribe releases the subscription
// on every exit path. No callback registration, nothing to leak.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.broker.Subscribe(broker.TopicNotifications)
	defer h.broker.Unsubscribe(sub)

	h.hooks.OnConnect()
	defer h.hooks.OnDisconnect()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("stream client connected", zap.String("remote_addr", r.RemoteAddr))

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream client disconnected", zap.String("remote_addr", r.RemoteAddr))
			return

		case ev, open := <-sub.Events():
			if !open {
				// Broker closed: server is shutting down.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal broadcast event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				// Transport failure: tear down, never propagate upstream.
				return
			}
			// Flush eagerly — this channel exists for latency, not batching.
			flusher.Flush()

		case <-heartbeat.C:
			// Comment frame keeps intermediaries from idling the connection
			// out and lets us notice a dead client between events.
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
