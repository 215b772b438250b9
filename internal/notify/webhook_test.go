package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookSenderRendersTemplate(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	render, err := NewRenderer("hook", "{{.Kind}} {{short_addr .TxHash}}", "")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	sender, err := NewWebhookSender(server.URL, http.MethodPost, render, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = sender.Send(context.Background(), Report{
		Kind:   "cex_deposit",
		TxHash: "0x1234567890abcdef",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !strings.HasPrefix(got["text"], "cex_deposit 0x1234") {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	render, err := NewRenderer("hook", "msg", "")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	sender, err := NewWebhookSender(server.URL, http.MethodPost, render, nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), Report{Kind: "transfer"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestWebhookRequiresURL(t *testing.T) {
	render, err := NewRenderer("hook", "msg", "")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if _, err := NewWebhookSender("", http.MethodPost, render, nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
