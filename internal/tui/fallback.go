package tui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// PlainOutput prints demo events as plain text lines for non-interactive use.
type PlainOutput struct {
	writer   io.Writer
	useColor bool
	mu       sync.Mutex
}

// NewPlainOutput creates a plain text renderer.
func NewPlainOutput(w io.Writer, useColor bool) *PlainOutput {
	return &PlainOutput{writer: w, useColor: useColor}
}

// Render prints one message.
func (o *PlainOutput) Render(msg tea.Msg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch msg := msg.(type) {
	case NotifyMsg:
		o.printf("%s [NOTIFY %s] %s\n", o.icon("warn"), msg.Duration, msg.Text)
	case TransitionMsg:
		o.printf("%s [LOOP] %s -> %s\n", o.icon("info"), msg.From, msg.To)
	case DumpMsg:
		if msg.Err != nil {
			o.printf("%s [DUMP FAILED] %s: %v\n", o.icon("error"), msg.Thread, msg.Err)
			return
		}
		o.printf("%s [DUMP] %s -> %s\n", o.icon("ok"), msg.Thread, msg.Path)
	case LogMsg:
		o.printf("  %s\n", msg.Line)
	}
}

// Action announces a triggered fault.
func (o *PlainOutput) Action(a Action, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printf("%s [TRIGGER] fault #%d (%s)\n", o.icon("info"), n, a)
}

// Flush renders everything queued on bridge.
func (o *PlainOutput) Flush(b *Bridge) {
	for _, msg := range b.Drain() {
		o.Render(msg)
	}
}

func (o *PlainOutput) icon(kind string) string {
	plain := map[string]string{"ok": "+", "warn": "!", "error": "x", "info": "*"}[kind]
	if !o.useColor {
		return plain
	}
	switch kind {
	case "ok":
		return OKLineStyle.Render(plain)
	case "warn":
		return WarnLineStyle.Render(plain)
	case "error":
		return ErrorLineStyle.Render(plain)
	default:
		return InfoLineStyle.Render(plain)
	}
}

func (o *PlainOutput) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Script is the non-interactive demo loop: it triggers a fixed list of faults
// one per interval. The position survives restarts so a loop fault moves on
// to the next action.
type Script struct {
	ctrl     Controller
	bridge   *Bridge
	out      *PlainOutput
	actions  []Action
	interval time.Duration
	pos      int
}

// NewScript creates a scripted demo loop.
func NewScript(ctrl Controller, bridge *Bridge, out *PlainOutput, actions []Action, interval time.Duration) *Script {
	return &Script{
		ctrl:     ctrl,
		bridge:   bridge,
		out:      out,
		actions:  actions,
		interval: interval,
	}
}

// Loop runs the remaining actions.
func (s *Script) Loop(ctx context.Context) error {
	for s.pos < len(s.actions) {
		if err := sleepContext(ctx, s.interval); err != nil {
			return err
		}
		s.out.Flush(s.bridge)

		action := s.actions[s.pos]
		s.pos++
		s.out.Action(action, s.pos)

		switch action {
		case ActionLoopPanic:
			panic(loopFaultMessage(s.pos))
		case ActionWrappedPanic:
			return explodeCallback(s.pos)
		case ActionGoroutinePanic:
			s.ctrl.Go("worker", workerFault(s.pos))
		}
	}
	s.out.Flush(s.bridge)
	return nil
}

// Done reports whether every action has been triggered.
func (s *Script) Done() bool {
	return s.pos >= len(s.actions)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
