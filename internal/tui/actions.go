package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// Action is a fault the demo can trigger.
type Action int

const (
	ActionNone Action = iota
	// ActionLoopPanic panics on the primary loop goroutine.
	ActionLoopPanic
	// ActionGoroutinePanic panics on a background goroutine started with Go.
	ActionGoroutinePanic
	// ActionWrappedPanic panics inside a callback whose panic is recovered
	// and returned as an error.
	ActionWrappedPanic
)

var actionNames = map[Action]string{
	ActionNone:           "none",
	ActionLoopPanic:      "loop",
	ActionGoroutinePanic: "go",
	ActionWrappedPanic:   "error",
}

// String returns the action name used on the command line.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseActions parses a comma separated list such as "loop,go,error".
func ParseActions(s string) ([]Action, error) {
	var actions []Action
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for a, name := range actionNames {
			if a != ActionNone && name == part {
				actions = append(actions, a)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown fault %q (want loop, go or error)", part)
		}
	}
	return actions, nil
}

// Controller is the part of the crash capture service the demo drives.
type Controller interface {
	Go(name string, fn func())
	Stats() diagnostics.Stats
}

// ErrDemoCallback is wrapped by the panic value of ActionWrappedPanic.
var ErrDemoCallback = errors.New("demo callback failed")

func loopFaultMessage(n int) string {
	return fmt.Sprintf("demo fault #%d in the main loop", n)
}

func workerFault(n int) func() {
	return func() {
		panic(fmt.Sprintf("demo fault #%d in a background worker", n))
	}
}

// explodeCallback stands in for a framework callback that recovers its own
// panics and hands them back as an error.
func explodeCallback(n int) (err error) {
	defer diagnostics.RecoverTo("ui", &err)
	panic(fmt.Errorf("demo fault #%d: %w", n, ErrDemoCallback))
}
