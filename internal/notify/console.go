package notify

import (
	"context"
	"fmt"
	"io"
)

// ConsoleSender prints rendered reports one per line.
type ConsoleSender struct {
	out    io.Writer
	render *Renderer
}

func NewConsoleSender(out io.Writer, render *Renderer) *ConsoleSender {
	return &ConsoleSender{out: out, render: render}
}

func (s *ConsoleSender) Send(_ context.Context, report Report) error {
	body, err := s.render.Render(report)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(s.out, body); err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	return nil
}
