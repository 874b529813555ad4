package util

import (
	"context"

	"github.com/charmbracelet/huh/spinner"
)

// Spinner shows progress for a long running CLI task.
type Spinner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	spinner *spinner.Spinner
}

func NewSpinner(c context.Context, msg string) *Spinner {
	ctx, cancel := context.WithCancel(c)
	s := &Spinner{
		ctx:    ctx,
		cancel: cancel,
	}
	s.spinner = spinner.New().Context(ctx).Title(msg)
	go s.spinner.Run()
	return s
}

func (s *Spinner) Stop() {
	s.cancel()
}

// RunWithSpinner runs task while a spinner is shown unless quiet is set, returning the task error.
func RunWithSpinner(ctx context.Context, msg string, quiet bool, task func(ctx context.Context) error) error {
	if quiet {
		return task(ctx)
	}
	s := NewSpinner(ctx, msg)
	defer s.Stop()
	return task(ctx)
}
