package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
)

// FatalOutputName is the file under the crash directory that receives
// unrecoverable runtime failures.
const FatalOutputName = "fatal.log"

// DefaultDrainTimeout bounds how long Shutdown waits for pending dumps when
// the caller's context has no deadline.
const DefaultDrainTimeout = 5 * time.Second

// ErrServiceShutdown is returned by Run after Shutdown.
var ErrServiceShutdown = errors.New("crash capture service is shut down")

// Options configures a Service.
type Options struct {
	App         AppInfo
	StorageRoot string
	DirName     string
	Debug       bool
	UTC         bool
	SubSecond   bool
	MaxFiles    int
	Redact      bool
	Compress    bool
	// FatalOutput mirrors unrecoverable runtime failures into fatal.log.
	FatalOutput bool
	// Traceback is passed to debug.SetTraceback when non-empty.
	Traceback string

	DispatcherMode string
	MaxConcurrent  int
	QueueSize      int
	DrainTimeout   time.Duration

	Clock func() time.Time
}

// Deps overrides collaborators. Zero values select the production defaults.
type Deps struct {
	Storage     Storage
	Environment EnvironmentProvider
	Dispatcher  Dispatcher
	Notifier    notify.Notifier
	Messages    MessageResolver
	Logger      *logging.Logger
	// OnDump observes every dump outcome.
	OnDump func(record FaultRecord, path string, err error)
	// OnTransition observes primary loop state changes.
	OnTransition func(from, to LoopState)
}

// CaptureState is a read-only view of the service lifecycle.
type CaptureState struct {
	Initialized bool   `json:"initialized"`
	Running     bool   `json:"running"`
	StorageRoot string `json:"storage_root"`
	TimeFormat  string `json:"time_format"`
}

// Stats aggregates handler counters and loop restarts.
type Stats struct {
	HandlerStats
	Restarts  int64     `json:"restarts"`
	LoopState LoopState `json:"loop_state"`
}

// Service wires the fault handler, dump pipeline and loop supervisor
// together. Create one with New at the composition root.
type Service struct {
	opts       Options
	logger     *logging.Logger
	storage    Storage
	writer     *DumpWriter
	dispatcher Dispatcher
	handler    *FaultHandler
	onTransit  func(from, to LoopState)

	initialized atomic.Bool
	running     atomic.Bool
	shutdown    atomic.Bool
	restarts    atomic.Int64
	loopState   atomic.Int32

	mu           sync.Mutex
	registration *Registration
}

// NewWriter builds the dump writer described by opts without the rest of
// the service, for tools that only read or manage dumps. A nil storage means
// the disk under opts.StorageRoot.
func NewWriter(opts Options, storage Storage, logger *logging.Logger) (*DumpWriter, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if storage == nil {
		if opts.StorageRoot == "" {
			return nil, errors.New("storage root is required")
		}
		storage = NewDiskStorage(opts.StorageRoot)
	}

	loc := time.Local
	if opts.UTC {
		loc = time.UTC
	}
	writerOpts := DumpWriterOptions{
		DirName:   opts.DirName,
		Location:  loc,
		SubSecond: opts.SubSecond,
		MaxFiles:  opts.MaxFiles,
		Compress:  opts.Compress,
	}
	if opts.Redact {
		writerOpts.Redactor = logger.Sanitizer()
	}
	return NewDumpWriter(storage, writerOpts, logger), nil
}

// New builds a service. Nothing is installed until Init.
func New(opts Options, deps Deps) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	writer, err := NewWriter(opts, deps.Storage, logger)
	if err != nil {
		return nil, err
	}
	storage := writer.Storage()

	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher, err = NewDispatcher(opts.DispatcherMode, opts.MaxConcurrent, opts.QueueSize, logger)
		if err != nil {
			return nil, err
		}
	}

	env := deps.Environment
	if env == nil {
		env = NewEnvironmentCollector(opts.App)
	}

	handler, err := NewFaultHandler(HandlerDeps{
		Writer:      writer,
		Environment: env,
		Dispatcher:  dispatcher,
		Notifier:    deps.Notifier,
		Messages:    deps.Messages,
		Logger:      logger,
	}, HandlerOptions{
		Debug:  opts.Debug,
		Clock:  opts.Clock,
		OnDump: deps.OnDump,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fault handler: %w", err)
	}

	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	return &Service{
		opts:       opts,
		logger:     logger.WithComponent("crash_capture"),
		storage:    storage,
		writer:     writer,
		dispatcher: dispatcher,
		handler:    handler,
		onTransit:  deps.OnTransition,
	}, nil
}

// Init installs the fault handler as the process-wide sink. Calls after the
// first are no-ops. Installation problems are logged, never returned.
func (s *Service) Init() {
	if !s.initialized.CompareAndSwap(false, true) {
		s.logger.Debug("crash capture already initialized")
		return
	}
	s.running.Store(true)

	s.mu.Lock()
	s.registration = InstallSink(s.handler)
	s.mu.Unlock()

	if s.opts.Traceback != "" {
		debug.SetTraceback(s.opts.Traceback)
	}
	if s.opts.FatalOutput {
		s.enableFatalOutput()
	}

	s.logger.Info("crash capture initialized",
		"root", s.storage.Root(),
		"dir", s.writer.Dir(),
		"debug", s.opts.Debug,
	)
}

func (s *Service) enableFatalOutput() {
	dir := s.writer.Dir()
	if err := s.storage.Available(); err != nil {
		s.logger.Warn("fatal output disabled",
			"error", newDumpError(KindStorageUnavailable, "check storage", s.storage.Root(), err))
		return
	}
	if !s.storage.PathExists(dir) {
		if err := s.storage.Mkdir(dir); err != nil {
			s.logger.Warn("fatal output disabled",
				"error", newDumpError(KindDirectoryCreateFailed, "create directory", dir, err))
			return
		}
	}
	if err := SetFatalOutput(filepath.Join(dir, FatalOutputName)); err != nil {
		s.logger.Error("fatal output disabled", "error", err)
	}
}

// Run supervises loop on the calling goroutine, initializing the service
// first if needed. It returns when the loop ends normally or, after a fault,
// once the service has been shut down or ctx is cancelled.
func (s *Service) Run(ctx context.Context, loop LoopFunc) error {
	if s.shutdown.Load() {
		return ErrServiceShutdown
	}
	s.Init()

	sup := NewLoopSupervisor(loop, s.handler, SupervisorOptions{
		Name:           "main",
		ShouldContinue: s.running.Load,
		OnTransition:   s.transition,
		Logger:         s.logger,
	})
	return sup.Run(ctx)
}

func (s *Service) transition(from, to LoopState) {
	s.loopState.Store(int32(to))
	if from == StateFaulted && to == StateRunning {
		s.restarts.Add(1)
	}
	if s.onTransit != nil {
		s.onTransit(from, to)
	}
}

// Go starts fn on a goroutine whose panics are captured by this service's
// handler, even when another sink is installed process-wide.
func (s *Service) Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.handler.HandlePanic(CapturePanic(name, r))
			}
		}()
		fn()
	}()
}

// Handler returns the fault handler, for hosts that recover panics themselves.
func (s *Service) Handler() *FaultHandler {
	return s.handler
}

// Writer returns the dump writer.
func (s *Service) Writer() *DumpWriter {
	return s.writer
}

// Shutdown stops loop restarts, uninstalls the sink and waits for pending
// dumps. Only the first call has any effect.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	s.running.Store(false)

	s.mu.Lock()
	reg := s.registration
	s.registration = nil
	s.mu.Unlock()
	reg.Close()

	if s.opts.FatalOutput && s.initialized.Load() {
		ClearFatalOutput()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DrainTimeout)
		defer cancel()
	}
	err := s.dispatcher.Close(ctx)

	stats := s.Stats()
	s.logger.Info("crash capture shut down",
		"faults", stats.Faults,
		"dumps_written", stats.DumpsWritten,
		"dumps_failed", stats.DumpsFailed,
		"restarts", stats.Restarts,
	)
	if err != nil {
		return fmt.Errorf("draining dumps: %w", err)
	}
	return nil
}

// State returns the lifecycle view.
func (s *Service) State() CaptureState {
	return CaptureState{
		Initialized: s.initialized.Load(),
		Running:     s.running.Load(),
		StorageRoot: s.storage.Root(),
		TimeFormat:  TimeLayout,
	}
}

// Stats returns fault, dump and restart counters.
func (s *Service) Stats() Stats {
	return Stats{
		HandlerStats: s.handler.Stats(),
		Restarts:     s.restarts.Load(),
		LoopState:    LoopState(s.loopState.Load()),
	}
}
