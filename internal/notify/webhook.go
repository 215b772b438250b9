package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookSender posts reports as JSON {"text": ...} bodies, which keeps
// it compatible with Slack-style incoming webhooks.
type WebhookSender struct {
	url     string
	method  string
	render  *Renderer
	client  *http.Client
	headers map[string]string
}

func NewWebhookSender(url, method string, render *Renderer, headers map[string]string) (*WebhookSender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  render,
		client:  &http.Client{Timeout: 8 * time.Second},
		headers: headers,
	}, nil
}

func (s *WebhookSender) Send(ctx context.Context, report Report) error {
	body, err := s.render.Render(report)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": body,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http status %d", resp.StatusCode)
	}
	return nil
}
