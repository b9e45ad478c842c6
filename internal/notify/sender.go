package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "StatusGarden"
	defaultRate     = 5 // requests per second
)

// SenderConfig holds webhook sender configuration.
type SenderConfig struct {
	WebhookURL string
	Username   string        // display name, default "StatusGarden"
	Timeout    time.Duration // request timeout
	RateLimit  float64       // requests per second towards the webhook
}

// Sender posts rendered events to an incoming-webhook endpoint.
type Sender struct {
	config     SenderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a webhook sender.
func NewSender(config SenderConfig) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRate
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// Send posts one message to the webhook. The rate limiter smooths
// bursts after a busy commit window.
func (s *Sender) Send(ctx context.Context, subject, body string) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("webhook URL is empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload := webhookPayload{
		Username: s.config.Username,
		Text:     fmt.Sprintf("### %s\n\n%s", subject, body),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
