// Package notify renders and delivers token activity reports to the
// configured sinks: console, Telegram, and generic webhooks.
package notify

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethspider/eth-spider/internal/config"
)

// Token identifies the watched asset inside a report.
type Token struct {
	Address  string
	Name     string
	Symbol   string
	Decimals int
}

// Report is one unit of delivery: a classified on-chain event (or a
// system notice, which carries no transaction) ready for rendering.
type Report struct {
	Kind     string
	Title    string
	Token    Token
	Amount   float64
	RawValue string
	From     string
	To       string
	Tier     string
	Pool     string
	TxHash   string
	Block    uint64
	LogIndex uint
	Time     time.Time
	GasGwei  float64
	Detail   string
}

// EventKey is the stable identity used for dedupe and delivery rows.
// Chain events key on (tx hash, log index); system notices on their kind.
func (r Report) EventKey() string {
	if r.TxHash == "" {
		return r.Kind
	}
	return fmt.Sprintf("%s:%d", r.TxHash, r.LogIndex)
}

type Sender interface {
	Send(ctx context.Context, report Report) error
}

// Route pairs a sink with its identity and optional rate limit.
type Route struct {
	ID     string
	Sender Sender
	Limit  *TokenBucket
}

// Allow reports whether the route's rate limit admits a send now.
// Routes without a limit always admit.
func (r *Route) Allow(now time.Time) bool {
	if r.Limit == nil {
		return true
	}
	return r.Limit.Allow(now)
}

// FromConfig builds one route per configured sink. Console sinks write
// to stdout; explorerBase feeds the tx_link/addr_link template helpers.
func FromConfig(sinks []config.Sink, explorerBase string) ([]*Route, error) {
	routes := make([]*Route, 0, len(sinks))
	for _, sc := range sinks {
		render, err := NewRenderer(sc.ID, sc.Template, explorerBase)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", sc.ID, err)
		}

		var sender Sender
		switch sc.Type {
		case "console":
			sender = NewConsoleSender(os.Stdout, render)
		case "telegram":
			sender = NewTelegramSender(sc.BotToken, sc.ChatID, sc.AnimationURL, render)
		case "webhook":
			sender, err = NewWebhookSender(sc.URL, sc.Method, render, map[string]string{
				"Content-Type": "application/json",
			})
			if err != nil {
				return nil, fmt.Errorf("sink %s: %w", sc.ID, err)
			}
		default:
			return nil, fmt.Errorf("sink %s: unsupported type %q", sc.ID, sc.Type)
		}

		var limit *TokenBucket
		if sc.MaxPerMinute > 0 {
			limit = NewPerMinute(sc.MaxPerMinute)
		}
		routes = append(routes, &Route{ID: sc.ID, Sender: sender, Limit: limit})
	}
	return routes, nil
}
