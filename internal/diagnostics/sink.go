package diagnostics

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
)

// PanicSink receives panics that escaped a goroutine. *FaultHandler implements it.
type PanicSink interface {
	HandlePanic(p *Panic)
}

// PanicSinkFunc adapts a function to PanicSink.
type PanicSinkFunc func(p *Panic)

// HandlePanic calls f.
func (f PanicSinkFunc) HandlePanic(p *Panic) { f(p) }

var sinks struct {
	mu      sync.RWMutex
	current *Registration
}

// Registration is an installed process-wide sink. Closing it restores the
// sink that was active before it.
type Registration struct {
	sink   PanicSink
	prev   *Registration
	closed bool
}

// InstallSink makes sink the process-wide destination for panics reported
// through Guard, Go and Report.
func InstallSink(sink PanicSink) *Registration {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()

	r := &Registration{sink: sink, prev: sinks.current}
	sinks.current = r
	return r
}

// Close uninstalls the sink. Closing out of order is allowed: a closed
// registration further down the chain is skipped when it would be restored.
func (r *Registration) Close() {
	if r == nil {
		return
	}
	sinks.mu.Lock()
	defer sinks.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for sinks.current != nil && sinks.current.closed {
		sinks.current = sinks.current.prev
	}
}

// Active reports whether r is the sink currently receiving panics.
func (r *Registration) Active() bool {
	sinks.mu.RLock()
	defer sinks.mu.RUnlock()
	return r != nil && sinks.current == r
}

// CurrentSink returns the installed sink, or nil.
func CurrentSink() PanicSink {
	sinks.mu.RLock()
	defer sinks.mu.RUnlock()
	if sinks.current == nil {
		return nil
	}
	return sinks.current.sink
}

// Report hands p to the installed sink. With no sink installed the panic is
// re-raised, which terminates the process the way an unguarded panic would.
func Report(p *Panic) {
	sink := CurrentSink()
	if sink == nil {
		_, _ = os.Stderr.Write(p.Stack)
		panic(p.Value)
	}
	sink.HandlePanic(p)
}

// Guard recovers a panic on the current goroutine and reports it. It must be
// deferred directly:
//
//	defer diagnostics.Guard("worker")
//
// The goroutine still ends; only the process survives.
func Guard(name string) {
	if r := recover(); r != nil {
		Report(CapturePanic(name, r))
	}
}

// Go runs fn on a new goroutine named name whose panics reach the sink.
func Go(name string, fn func()) {
	go func() {
		defer Guard(name)
		fn()
	}()
}

// SetFatalOutput mirrors unrecoverable runtime failures (fatal errors,
// panics on goroutines without Guard) into the file at path, appending.
func SetFatalOutput(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening fatal output: %w", err)
	}
	// The runtime keeps its own duplicate of the descriptor.
	defer f.Close()

	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		return fmt.Errorf("setting crash output: %w", err)
	}
	return nil
}

// ClearFatalOutput stops mirroring fatal runtime failures.
func ClearFatalOutput() {
	_ = debug.SetCrashOutput(nil, debug.CrashOptions{})
}
