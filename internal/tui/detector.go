package tui

import (
	"os"

	"golang.org/x/term"
)

// OutputMode selects how the demo host renders.
type OutputMode int

const (
	// ModeTUI runs the bubbletea program.
	ModeTUI OutputMode = iota

	// ModePlain prints one line per event, for pipes and CI.
	ModePlain
)

// String returns the string representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	default:
		return "unknown"
	}
}

// Detector determines the appropriate output mode.
type Detector struct {
	forceMode *OutputMode
	isTTY     func() bool
}

// NewDetector creates a new output mode detector.
func NewDetector() *Detector {
	return &Detector{isTTY: stdoutIsTTY}
}

// ForceMode forces a specific output mode.
func (d *Detector) ForceMode(mode OutputMode) *Detector {
	d.forceMode = &mode
	return d
}

// Detect determines the appropriate output mode.
func (d *Detector) Detect() OutputMode {
	if d.forceMode != nil {
		return *d.forceMode
	}

	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return ModePlain
	}

	switch os.Getenv("CRASHCAPTURE_OUTPUT") {
	case "plain":
		return ModePlain
	case "tui":
		return ModeTUI
	}

	if os.Getenv("TERM") == "dumb" || !d.isTTY() {
		return ModePlain
	}
	return ModeTUI
}

func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ParseOutputMode parses an output mode from string. Unknown values return
// false so callers can fall back to detection.
func ParseOutputMode(s string) (OutputMode, bool) {
	switch s {
	case "tui":
		return ModeTUI, true
	case "plain":
		return ModePlain, true
	default:
		return ModeTUI, false
	}
}
