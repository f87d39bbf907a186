package worker

import (
	"context"
	"time"
	"unicode/utf8"
)

// WorkSimulator stands in for downstream work whose cost grows with the
// length of the log.
type WorkSimulator interface {
	Simulate(ctx context.Context, text string) error
}

// NoopSimulator does nothing.
type NoopSimulator struct{}

func (NoopSimulator) Simulate(context.Context, string) error { return nil }

// PerCharSimulator waits PerChar for every character of the text, returning
// early with the context error on cancellation.
type PerCharSimulator struct {
	PerChar time.Duration
}

func (s PerCharSimulator) Simulate(ctx context.Context, text string) error {
	d := s.PerChar * time.Duration(utf8.RuneCountInString(text))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewSimulator returns a NoopSimulator for a zero delay.
func NewSimulator(perChar time.Duration) WorkSimulator {
	if perChar <= 0 {
		return NoopSimulator{}
	}
	return PerCharSimulator{PerChar: perChar}
}
