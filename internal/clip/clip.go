// Package clip copies crash dump text to the user's clipboard so it can be
// pasted into a bug report.
package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the dump copyable.
//
// MethodFile means no clipboard was reachable and the text was saved to a
// temp file instead.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape sequence
	MethodFile   Method = "file"   // temp file fallback
)

// Result reports how a copy was delivered.
type Result struct {
	Method   Method
	FilePath string // only set when Method == MethodFile
}

// Describe returns a one-line status for the CLI.
func (r Result) Describe() string {
	switch r.Method {
	case MethodNative:
		return "copied to clipboard"
	case MethodOSC52:
		return "copied to terminal clipboard"
	default:
		return "clipboard unavailable, saved to " + r.FilePath
	}
}

// Swapped in tests.
var (
	nativeWriteAll = atotto.WriteAll
	osc52WriteAll  = writeAllOSC52
	tempDir        = os.TempDir
)

// CopyDump copies the text of dump name. It tries the native clipboard, then
// OSC52, then writes a temp file named after the dump.
func CopyDump(name, text string) (Result, error) {
	if err := nativeWriteAll(text); err == nil {
		return Result{Method: MethodNative}, nil
	}

	if err := osc52WriteAll(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := writeTempFile(name, text)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

// Terminals can have strict OSC52 limits.
const osc52LimitBytes = 100_000

func writeAllOSC52(text string) error {
	if text == "" {
		return errors.New("empty clipboard text")
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return errors.New("stderr is not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("dump too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if os.Getenv("STY") != "" {
		seq = seq.Screen()
	}

	// stderr keeps the escape sequence out of piped stdout.
	_, err := seq.WriteTo(os.Stderr)
	return err
}

func writeTempFile(name, text string) (path string, err error) {
	base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(name), ".zst"), ".log")
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "crash"
	}

	f, err := os.CreateTemp(tempDir(), base+"-*.txt")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		_ = f.Close()
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
