package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/api"
	"github.com/donorhub/notify-pipeline/internal/api/handler"
	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/domain"
	"github.com/donorhub/notify-pipeline/internal/queue"
	"github.com/donorhub/notify-pipeline/internal/repository"
	"github.com/donorhub/notify-pipeline/internal/service"
)

type fixture struct {
	srv  *httptest.Server
	q    *queue.MemoryQueue
	repo *repository.MockNotificationRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q := queue.NewMemoryQueue(queue.Options{PollInterval: time.Millisecond})
	repo := repository.NewMockNotificationRepository()
	svc := service.NewNotificationService(repo, q, zap.NewNop())
	b := broker.New(0, broker.Hooks{})
	t.Cleanup(b.Close)

	router := api.NewRouter(svc, b, time.Hour, prometheus.NewRegistry(), zap.NewNop(), handler.StreamHooks{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, q: q, repo: repo}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRouter_EnqueueJob(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/jobs", map[string]any{
		"type":    domain.JobTypeDonationSuccess,
		"payload": map[string]any{"userId": "u1", "amount": 500},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["id"] == "" {
		t.Fatal("expected job id in response")
	}

	job, ok := f.q.Snapshot(body["id"])
	if !ok || job.State != domain.JobStateWaiting {
		t.Fatalf("job not durably accepted: %+v", job)
	}
}

func TestRouter_EnqueueRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	// Missing type.
	resp := f.postJSON(t, "/api/v1/jobs", map[string]any{"payload": map[string]any{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing type, got %d", resp.StatusCode)
	}

	// Malformed JSON.
	raw, err := http.Post(f.srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", raw.StatusCode)
	}
}

func TestRouter_GetNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := &domain.Notification{ID: "n1", Recipient: "u1", Subject: "s", Category: domain.CategoryInfo}
	if err := f.repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := f.get(t, "/api/v1/notifications/n1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var n domain.Notification
	decodeBody(t, resp, &n)
	if n.Recipient != "u1" {
		t.Fatalf("unexpected record: %+v", n)
	}

	missing := f.get(t, "/api/v1/notifications/nope")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestRouter_ListNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, n := range []*domain.Notification{
		{ID: "n1", Recipient: "u1", Category: domain.CategoryDonationSuccess},
		{ID: "n2", Recipient: "u2", Category: domain.CategoryInfo},
	} {
		if err := f.repo.Create(ctx, n); err != nil {
			t.Fatalf("seed %s: %v", n.ID, err)
		}
	}

	resp := f.get(t, "/api/v1/notifications?recipient=u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Data  []domain.Notification `json:"data"`
		Total int                   `json:"total"`
	}
	decodeBody(t, resp, &body)
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].ID != "n1" {
		t.Fatalf("unexpected list result: %+v", body)
	}
}

func TestRouter_DeadLetterViewEmpty(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/v1/jobs/dead")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Data  []domain.Job `json:"data"`
		Total int          `json:"total"`
	}
	decodeBody(t, resp, &body)
	if body.Total != 0 || body.Data == nil {
		t.Fatalf("expected empty array, got %+v", body)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	health := f.get(t, "/health")
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", health.StatusCode)
	}

	scrape := f.get(t, "/metrics")
	scrape.Body.Close()
	if scrape.StatusCode != http.StatusOK {
		t.Fatalf("prometheus scrape: expected 200, got %d", scrape.StatusCode)
	}

	snap := f.get(t, "/api/v1/metrics")
	if snap.StatusCode != http.StatusOK {
		t.Fatalf("json metrics: expected 200, got %d", snap.StatusCode)
	}
	var body map[string]queue.Stats
	decodeBody(t, snap, &body)
	if _, ok := body["queue_depth"]; !ok {
		t.Fatalf("expected queue_depth key, got %+v", body)
	}
}
