package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/escaped-rooms/roomctl/pkg/engine"
)

// DefaultWebhookTimeout bounds each webhook attempt. No action may block the
// dispatcher indefinitely: a stuck endpoint would starve every subsequent
// trigger for the room.
const DefaultWebhookTimeout = 5 * time.Second

// Webhook delivers an HTTP callback to an external system. Transient
// failures (timeout, network error, 5xx) are retried exactly once; any
// remaining failure is reported as an execution error and the trigger's
// later actions still run.
type Webhook struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhook creates the webhook executor. client may be nil for the default.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{client: client, timeout: DefaultWebhookTimeout}
}

// WebhookConfig is the send_webhook action config.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload any               `json:"payload,omitempty"`
}

func (*Webhook) Type() string { return "send_webhook" }

func (*Webhook) Validate(cfg json.RawMessage) (any, error) {
	var c WebhookConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", c.URL)
	}
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	switch c.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method %q", c.Method)
	}
	return c, nil
}

func (w *Webhook) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(WebhookConfig)

	body, err := json.Marshal(map[string]any{
		"roomId":       ec.RoomID,
		"triggerId":    ec.Trigger.ID,
		"triggerName":  ec.Trigger.Name,
		"variableName": ec.Event.Name,
		"oldValue":     ec.Event.OldValue,
		"newValue":     ec.Event.NewValue,
		"payload":      c.Payload,
	})
	if err != nil {
		return fmt.Errorf("encoding webhook body: %w", err)
	}

	status, err := w.attempt(ctx, c, body)
	if retryable(status, err) && ctx.Err() == nil {
		status, err = w.attempt(ctx, c, body)
	}
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", c.Method, c.URL, err)
	}
	if status >= 400 {
		return fmt.Errorf("webhook %s %s: status %d", c.Method, c.URL, status)
	}
	return nil
}

// attempt performs one delivery, bounded by the per-attempt timeout and the
// engine's lifetime context so room teardown cancels in-flight calls.
func (w *Webhook) attempt(ctx context.Context, c WebhookConfig, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var reqBody io.Reader
	if c.Method != http.MethodGet {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, c.URL, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// retryable reports whether a delivery outcome is transient: a network
// error or timeout (err != nil) or a 5xx response. 4xx responses are
// permanent and not retried.
func retryable(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= 500
}
