package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karoba/wellness/internal/domain"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	maxErrorBodySize      = 4096
)

// ErrWebhookUnauthorized indicates the receiver rejected the webhook token.
var ErrWebhookUnauthorized = errors.New("account webhook unauthorized")

// ErrWebhookRejected indicates the receiver refused the payload.
var ErrWebhookRejected = errors.New("account webhook rejected")

// Webhook POSTs account events as JSON to an HTTP endpoint, such as a
// messaging gateway that sends welcome messages.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhook targets endpoint, sending token in X-Karoba-Token when set.
func NewWebhook(endpoint, token string, client *http.Client) (*Webhook, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("account webhook url required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultWebhookTimeout
	}
	return &Webhook{
		url:    trimmed,
		token:  strings.TrimSpace(token),
		client: client,
	}, nil
}

// Notify delivers the event.
func (w *Webhook) Notify(ctx context.Context, event domain.AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Karoba-Event", string(event.Type))
	if w.token != "" {
		req.Header.Set("X-Karoba-Token", w.token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrWebhookUnauthorized, summary)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrWebhookRejected, summary)
	default:
		return fmt.Errorf("account webhook failed: %s", summary)
	}
}
