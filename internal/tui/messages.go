package tui

import (
	"time"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
)

// NotifyMsg is a user notification raised by the fault handler.
type NotifyMsg struct {
	Time     time.Time
	Text     string
	Duration notify.Duration
}

// TransitionMsg reports a primary loop state change.
type TransitionMsg struct {
	Time time.Time
	From diagnostics.LoopState
	To   diagnostics.LoopState
}

// DumpMsg reports the outcome of a dump write.
type DumpMsg struct {
	Time    time.Time
	FaultID string
	Thread  string
	Message string
	Path    string
	Err     error
}

// LogMsg carries one log line.
type LogMsg struct {
	Time time.Time
	Line string
}
