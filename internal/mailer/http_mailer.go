package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPMailer delivers email by POSTing to a transactional-mail HTTP API.
// The base URL is injected from config so tests can point to a local mock.
//
// Sends are throttled by a token bucket so a burst of completed jobs cannot
// trip the mail provider's rate limits. Burst equals the per-second rate, so
// no extra burst capacity accumulates beyond the configured maximum.
type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewHTTPMailer(baseURL string, timeout time.Duration, ratePerSec int) *HTTPMailer {
	return &HTTPMailer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Send waits for a rate-limit token, then posts the email and expects a
// 202 Accepted response.
func (m *HTTPMailer) Send(ctx context.Context, email Email) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected mailer status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that HTTPMailer implements Mailer
var _ Mailer = (*HTTPMailer)(nil)
