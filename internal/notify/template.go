package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"text/template"

	"github.com/ethspider/eth-spider/internal/erc20"
)

// DefaultTemplate is used when a sink does not configure its own body.
const DefaultTemplate = "{{.Title}}" +
	"{{if .TxHash}} | {{short_amount .Amount}} {{.Token.Symbol}}" +
	" | {{short_addr .From}} -> {{short_addr .To}} | {{tx_link .TxHash}}{{end}}" +
	"{{if .Detail}} | {{.Detail}}{{end}}"

// Renderer turns a Report into message text via text/template.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the sink template (DefaultTemplate when body is
// empty). explorerBase is the block-explorer root for the link helpers.
func NewRenderer(name, body, explorerBase string) (*Renderer, error) {
	if body == "" {
		body = DefaultTemplate
	}
	explorerBase = strings.TrimRight(explorerBase, "/")

	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
		"humanize": func(v float64) string {
			return erc20.Format(big.NewFloat(v))
		},
		"short_amount": func(v float64) string {
			return erc20.Short(big.NewFloat(v))
		},
		"tx_link": func(hash string) string {
			if hash == "" || explorerBase == "" {
				return hash
			}
			return explorerBase + "/tx/" + hash
		},
		"addr_link": func(addr string) string {
			if addr == "" || explorerBase == "" {
				return addr
			}
			return explorerBase + "/address/" + addr
		},
	}

	t, err := template.New(name).Funcs(funcs).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

func (r *Renderer) Render(report Report) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
