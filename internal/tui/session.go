package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// SessionOptions configures the interactive demo.
type SessionOptions struct {
	AltScreen bool
	Input     io.Reader
	Output    io.Writer
}

// Session runs the demo program as a supervised primary loop. Each call to
// Loop starts a fresh bubbletea program from the previous run's model, so
// the event log and counters survive a restart.
type Session struct {
	model Model
	opts  SessionOptions
	run   func(m tea.Model, opts ...tea.ProgramOption) (tea.Model, error)
}

// NewSession creates a session driving ctrl and reading events from bridge.
func NewSession(ctrl Controller, bridge *Bridge, opts SessionOptions) *Session {
	return &Session{
		model: NewModel(ctrl, bridge),
		opts:  opts,
		run:   runProgram,
	}
}

func runProgram(m tea.Model, opts ...tea.ProgramOption) (tea.Model, error) {
	return tea.NewProgram(m, opts...).Run()
}

// Loop runs one program until it exits. A loop fault is raised as a panic on
// the calling goroutine after the terminal has been restored; a recovered
// callback panic is returned as its *diagnostics.PanicError.
func (s *Session) Loop(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if s.opts.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if s.opts.Input != nil {
		opts = append(opts, tea.WithInput(s.opts.Input))
	}
	if s.opts.Output != nil {
		opts = append(opts, tea.WithOutput(s.opts.Output))
	}

	final, err := s.run(s.model.restart(), opts...)
	if m, ok := final.(Model); ok {
		s.model = m
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("running demo program: %w", err)
	}

	switch {
	case s.model.crash:
		panic(loopFaultMessage(s.model.triggered))
	case s.model.fault != nil:
		return s.model.fault
	default:
		return nil
	}
}

// Model returns the model of the last finished program.
func (s *Session) Model() Model {
	return s.model
}
