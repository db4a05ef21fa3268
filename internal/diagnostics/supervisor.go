package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
)

// LoopState is the lifecycle state of a supervised loop.
type LoopState int

const (
	StateStopped LoopState = iota
	StateRunning
	StateFaulted
)

// String returns the state name.
func (s LoopState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
}

// LoopFunc is one run of the primary interactive loop. It returns when the
// loop ends; a panic, or a returned *PanicError, is a fault.
type LoopFunc func(ctx context.Context) error

// SupervisorOptions configures a LoopSupervisor.
type SupervisorOptions struct {
	// Name labels faults raised by the loop. Defaults to "main".
	Name string
	// ShouldContinue is asked after each fault; false stops the supervisor.
	// Defaults to always true.
	ShouldContinue func() bool
	// OnTransition observes every state change.
	OnTransition func(from, to LoopState)
	Logger       *logging.Logger
}

// LoopSupervisor keeps the primary loop alive across faults. Every fault is
// handed to the sink synchronously and the loop is re-entered immediately,
// with no backoff or retry cap.
type LoopSupervisor struct {
	loop LoopFunc
	sink PanicSink
	opts SupervisorOptions

	mu       sync.RWMutex
	state    LoopState
	active   atomic.Bool
	restarts atomic.Int64
}

// NewLoopSupervisor supervises loop. A nil sink routes faults through Report.
func NewLoopSupervisor(loop LoopFunc, sink PanicSink, opts SupervisorOptions) *LoopSupervisor {
	if opts.Name == "" {
		opts.Name = "main"
	}
	if opts.ShouldContinue == nil {
		opts.ShouldContinue = func() bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	opts.Logger = opts.Logger.WithComponent("supervisor").WithThread(opts.Name)
	return &LoopSupervisor{loop: loop, sink: sink, opts: opts}
}

// Run drives the loop until it returns normally, the stop condition reports
// false after a fault, or ctx is cancelled after a fault. It returns the
// loop's own error in the first case, nil in the second and ctx.Err() in
// the third.
func (s *LoopSupervisor) Run(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		return ErrSupervisorRunning
	}
	defer s.active.Store(false)

	s.transition(StateRunning)
	for {
		next, err := s.step(ctx)
		s.transition(next)
		if next == StateStopped {
			return err
		}
	}
}

// State returns the current state.
func (s *LoopSupervisor) State() LoopState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Restarts returns how many times the loop was re-entered after a fault.
func (s *LoopSupervisor) Restarts() int64 {
	return s.restarts.Load()
}

// step computes the next state from the current one.
func (s *LoopSupervisor) step(ctx context.Context) (LoopState, error) {
	switch s.State() {
	case StateRunning:
		p, err := s.runOnce(ctx)
		if p == nil {
			return StateStopped, err
		}
		s.report(p)
		return StateFaulted, nil

	case StateFaulted:
		if err := ctx.Err(); err != nil {
			return StateStopped, err
		}
		if !s.opts.ShouldContinue() {
			s.opts.Logger.Info("stop condition reached, not restarting loop")
			return StateStopped, nil
		}
		s.restarts.Add(1)
		s.opts.Logger.Debug("restarting loop", "restarts", s.restarts.Load())
		return StateRunning, nil

	default:
		return StateStopped, nil
	}
}

func (s *LoopSupervisor) runOnce(ctx context.Context) (p *Panic, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = CapturePanic(s.opts.Name, r)
			err = nil
		}
	}()

	err = s.loop(ctx)
	var pe *PanicError
	if errors.As(err, &pe) && pe.Panic != nil {
		return pe.Panic, nil
	}
	return nil, err
}

func (s *LoopSupervisor) report(p *Panic) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("fault sink panicked",
				"error", newDumpError(KindHandlerInternalFailure, "report fault", "", fmt.Errorf("%v", r)))
		}
	}()
	if s.sink == nil {
		Report(p)
		return
	}
	s.sink.HandlePanic(p)
}

func (s *LoopSupervisor) transition(to LoopState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.opts.Logger.Debug("loop state", "from", from.String(), "to", to.String())
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(from, to)
	}
}
