package diagnostics

import (
	"bytes"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxFrames bounds the structured frame capture; StackText is never truncated.
const maxFrames = 64

// Frame is one entry of a captured call stack, innermost first.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// String renders the frame the way runtime stack dumps do.
func (f Frame) String() string {
	return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
}

// Panic is a recovered panic value together with the stack of the goroutine
// that raised it. It is the raw input to the fault handler.
type Panic struct {
	Value  any
	Thread string
	Stack  []byte
	Frames []Frame
}

// CapturePanic snapshots the current goroutine's stack for a recovered value.
// It must be called from the deferred function that called recover.
func CapturePanic(thread string, value any) *Panic {
	stack := debug.Stack()
	if thread == "" {
		thread = goroutineLabel(stack)
	}
	return &Panic{
		Value:  value,
		Thread: thread,
		Stack:  stack,
		Frames: callerFrames(3),
	}
}

// PanicError carries a panic recovered below the supervisor, for example in a
// UI framework callback, so a loop can report it as a returned error and the
// supervisor still treats it as a fault.
type PanicError struct {
	Panic *Panic
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic on %s: %v", e.Panic.Thread, e.Panic.Value)
}

// Unwrap exposes an error panic value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Panic.Value.(error); ok {
		return err
	}
	return nil
}

// RecoverTo converts a panic into a *PanicError stored in errp.
// Usage: defer diagnostics.RecoverTo("ui", &err)
func RecoverTo(thread string, errp *error) {
	if r := recover(); r != nil {
		*errp = &PanicError{Panic: CapturePanic(thread, r)}
	}
}

// FaultRecord is the immutable description of one caught fault. It is built
// once when the fault is caught and consumed once by the DumpWriter.
type FaultRecord struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	ThreadName string    `json:"thread_name"`
	Message    string    `json:"message"`
	ValueType  string    `json:"value_type"`
	Frames     []Frame   `json:"frames,omitempty"`
	StackText  string    `json:"stack_text"`
}

// NewFaultRecord builds a record for p observed at the given time.
func NewFaultRecord(at time.Time, p *Panic) FaultRecord {
	frames := make([]Frame, len(p.Frames))
	copy(frames, p.Frames)

	return FaultRecord{
		ID:         uuid.NewString(),
		OccurredAt: at,
		ThreadName: p.Thread,
		Message:    panicMessage(p.Value),
		ValueType:  fmt.Sprintf("%T", p.Value),
		Frames:     frames,
		StackText:  string(p.Stack),
	}
}

// Location returns the innermost frame outside the Go runtime, or "" when unknown.
func (r FaultRecord) Location() string {
	for _, f := range r.Frames {
		if !strings.HasPrefix(f.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", f.File, f.Line)
		}
	}
	return ""
}

func panicMessage(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// callerFrames returns the frames of the panicking code. Frames belonging to
// the deferred recovery path, up to and including runtime.gopanic, are dropped.
func callerFrames(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	iter := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for {
		f, more := iter.Next()
		if f.Function == "runtime.gopanic" {
			frames = frames[:0]
		} else if f.Function != "" {
			frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return frames
}

// goroutineLabel turns the "goroutine N [running]:" header into "goroutine-N".
func goroutineLabel(stack []byte) string {
	line, _, _ := bytes.Cut(stack, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) >= 2 && fields[0] == "goroutine" {
		return "goroutine-" + fields[1]
	}
	return "unknown"
}
