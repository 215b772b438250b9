package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts reports through the Bot API. Messages go out as
// Markdown; when an animation URL is configured the rendered text rides
// along as the caption. Sends retry a bounded number of times, honoring
// Retry-After on 429 responses.
type TelegramSender struct {
	api         string
	botToken    string
	chatID      string
	animation   string
	render      *Renderer
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

func NewTelegramSender(botToken, chatID, animationURL string, render *Renderer) *TelegramSender {
	return &TelegramSender{
		api:         telegramAPI,
		botToken:    botToken,
		chatID:      chatID,
		animation:   animationURL,
		render:      render,
		client:      &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		retryDelay:  2 * time.Second,
	}
}

func (s *TelegramSender) Send(ctx context.Context, report Report) error {
	body, err := s.render.Render(report)
	if err != nil {
		return err
	}

	method := "sendMessage"
	payload := map[string]any{
		"chat_id":                  s.chatID,
		"text":                     body,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	if s.animation != "" {
		method = "sendAnimation"
		payload = map[string]any{
			"chat_id":    s.chatID,
			"animation":  s.animation,
			"caption":    body,
			"parse_mode": "Markdown",
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", s.api, s.botToken, method)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.post(ctx, url, raw)
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := s.retryDelay
		var limited *rateLimitedError
		if errors.As(lastErr, &limited) {
			wait = limited.retryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("telegram %s after %d attempts: %w", method, s.maxAttempts, lastErr)
}

func (s *TelegramSender) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitedError{retryAfter: retryAfterOf(resp, s.retryDelay)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http status %d", resp.StatusCode)
	}
	return nil
}

type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// retryAfterOf extracts the wait from a 429, preferring the Retry-After
// header and falling back to the Bot API's parameters.retry_after field.
func retryAfterOf(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	var apiErr struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(raw, &apiErr) == nil && apiErr.Parameters.RetryAfter > 0 {
		return time.Duration(apiErr.Parameters.RetryAfter) * time.Second
	}
	return fallback
}
