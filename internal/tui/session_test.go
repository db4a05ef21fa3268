package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// scripted replaces the bubbletea program with a fixed list of messages.
func scripted(msgs ...tea.Msg) func(tea.Model, ...tea.ProgramOption) (tea.Model, error) {
	return func(m tea.Model, _ ...tea.ProgramOption) (tea.Model, error) {
		for _, msg := range msgs {
			var cmd tea.Cmd
			m, cmd = m.Update(msg)
			if isQuit(cmd) {
				break
			}
		}
		return m, nil
	}
}

func TestSession_QuitReturnsNil(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{})
	s.run = scripted(key('q'))

	if err := s.Loop(context.Background()); err != nil {
		t.Errorf("Loop() error = %v, want nil", err)
	}
}

func TestSession_WrappedPanicReturnsPanicError(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{})
	s.run = scripted(key('e'))

	err := s.Loop(context.Background())

	var pe *diagnostics.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Loop() error = %v, want *PanicError", err)
	}
}

func TestSession_LoopPanicRaisedAfterProgram(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{})
	s.run = scripted(key('p'))

	defer func() {
		r := recover()
		msg, _ := r.(string)
		if !strings.Contains(msg, "main loop") {
			t.Errorf("recovered %v, want loop fault", r)
		}
		if s.Model().triggered != 1 {
			t.Errorf("model not kept after fault")
		}
	}()
	_ = s.Loop(context.Background())
	t.Fatal("Loop should have panicked")
}

func TestSession_RestartKeepsHistory(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{})

	s.run = scripted(key('e'))
	_ = s.Loop(context.Background())

	s.run = scripted(key('q'))
	if err := s.Loop(context.Background()); err != nil {
		t.Fatalf("second Loop() error = %v", err)
	}
	if s.Model().triggered != 1 {
		t.Errorf("triggered = %d, want 1 carried over", s.Model().triggered)
	}
}

func TestSession_ProgramError(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{})
	boom := errors.New("tty lost")
	s.run = func(m tea.Model, _ ...tea.ProgramOption) (tea.Model, error) { return m, boom }

	if err := s.Loop(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Loop() error = %v, want %v", err, boom)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Loop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Loop() on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestSession_ProgramOptions(t *testing.T) {
	s := NewSession(&fakeController{}, NewBridge(4), SessionOptions{
		AltScreen: true,
		Input:     strings.NewReader(""),
		Output:    &strings.Builder{},
	})
	var got int
	s.run = func(m tea.Model, opts ...tea.ProgramOption) (tea.Model, error) {
		got = len(opts)
		return m, nil
	}

	_ = s.Loop(context.Background())

	if got != 4 {
		t.Errorf("program options = %d, want context, alt screen, input and output", got)
	}
}
