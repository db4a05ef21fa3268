package diagnostics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/i18n"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
)

// RecordWriter persists one fault. *DumpWriter is the production implementation.
type RecordWriter interface {
	Write(record FaultRecord, env EnvironmentSnapshot) (string, error)
}

// MessageResolver looks up localized user-facing text. *i18n.Catalog implements it.
type MessageResolver interface {
	Resolve(key string) string
}

// HandlerOptions tunes the fault handler.
type HandlerOptions struct {
	// Debug shows the raw fault message instead of the generic localized text.
	Debug bool
	// Clock stamps fault records. Defaults to time.Now.
	Clock func() time.Time
	// OnDump observes the outcome of every scheduled dump.
	OnDump func(record FaultRecord, path string, err error)
}

// HandlerDeps are the collaborators of a FaultHandler.
type HandlerDeps struct {
	Writer      RecordWriter
	Environment EnvironmentProvider
	Dispatcher  Dispatcher
	Notifier    notify.Notifier
	Messages    MessageResolver
	Logger      *logging.Logger
}

// HandlerStats are cumulative counters since the handler was created.
type HandlerStats struct {
	Faults       int64 `json:"faults"`
	DumpsWritten int64 `json:"dumps_written"`
	DumpsFailed  int64 `json:"dumps_failed"`
}

// FaultHandler is the synchronous entry point for a caught fault. It
// notifies the user and hands the dump to the dispatcher; it never does dump
// I/O on the caller and never panics.
type FaultHandler struct {
	writer     RecordWriter
	env        EnvironmentProvider
	dispatcher Dispatcher
	notifier   notify.Notifier
	messages   MessageResolver
	logger     *logging.Logger
	opts       HandlerOptions

	faults       atomic.Int64
	dumpsWritten atomic.Int64
	dumpsFailed  atomic.Int64
}

// NewFaultHandler creates a handler. Writer and Dispatcher are required.
func NewFaultHandler(deps HandlerDeps, opts HandlerOptions) (*FaultHandler, error) {
	if deps.Writer == nil {
		return nil, errors.New("fault handler: writer is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("fault handler: dispatcher is required")
	}
	if deps.Environment == nil {
		deps.Environment = NewEnvironmentCollector(AppInfo{})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Messages == nil {
		deps.Messages = i18n.New("")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &FaultHandler{
		writer:     deps.Writer,
		env:        deps.Environment,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		messages:   deps.Messages,
		logger:     deps.Logger.WithComponent("fault_handler"),
		opts:       opts,
	}, nil
}

// HandlePanic builds a record from a recovered panic and handles it.
func (h *FaultHandler) HandlePanic(p *Panic) {
	defer h.recoverInternal("handle panic")
	if p == nil {
		return
	}

	var record FaultRecord
	if !h.step(h.logger, "build record", func() {
		record = NewFaultRecord(h.opts.Clock(), p)
	}) {
		return
	}
	h.Handle(record)
}

// Handle reports record to the user and schedules its dump. Notification and
// submission are guarded separately so a failure in one does not skip the other.
func (h *FaultHandler) Handle(record FaultRecord) {
	defer h.recoverInternal("handle record")

	h.faults.Add(1)
	logger := h.logger.WithThread(record.ThreadName).WithFault(record.ID)
	logger.Error("uncaught panic",
		"message", record.Message,
		"type", record.ValueType,
		"location", record.Location(),
	)

	h.step(logger, "notify", func() { h.notify(record) })
	h.step(logger, "submit dump", func() { h.submit(logger, record) })
}

// Stats returns a snapshot of the handler counters.
func (h *FaultHandler) Stats() HandlerStats {
	return HandlerStats{
		Faults:       h.faults.Load(),
		DumpsWritten: h.dumpsWritten.Load(),
		DumpsFailed:  h.dumpsFailed.Load(),
	}
}

func (h *FaultHandler) notify(record FaultRecord) {
	if h.opts.Debug {
		h.notifier.Notify(record.Message, notify.Long)
		return
	}
	h.notifier.Notify(h.messages.Resolve(i18n.KeyAppException), notify.Short)
}

func (h *FaultHandler) submit(logger *logging.Logger, record FaultRecord) {
	err := h.dispatcher.Submit(func() {
		env := h.captureEnvironment(logger)
		path, err := h.write(record, env)
		h.finish(logger, record, path, err)
	})
	if err != nil {
		h.finish(logger, record, "", fmt.Errorf("scheduling dump: %w", err))
	}
}

func (h *FaultHandler) captureEnvironment(logger *logging.Logger) (env EnvironmentSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			env = degradedSnapshot(fmt.Sprintf("environment: %v", r))
		}
	}()
	env = h.env.Capture()
	if env.Degraded() {
		logger.Warn("environment partially unavailable",
			"error", newDumpError(KindMetadataLookupFailed, "capture environment", "", errors.New(env.Failures[0])),
			"failures", len(env.Failures),
		)
	}
	return env
}

func (h *FaultHandler) write(record FaultRecord, env EnvironmentSnapshot) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newDumpError(KindHandlerInternalFailure, "write dump", "", fmt.Errorf("%v", r))
		}
	}()
	return h.writer.Write(record, env)
}

func (h *FaultHandler) finish(logger *logging.Logger, record FaultRecord, path string, err error) {
	switch {
	case err == nil:
		h.dumpsWritten.Add(1)
		logger.Info("crash dump written", "path", path)
	case errors.Is(err, ErrStorageUnavailable):
		h.dumpsFailed.Add(1)
		logger.Warn("storage unavailable, dump skipped", "error", err)
	default:
		h.dumpsFailed.Add(1)
		logger.Error("crash dump failed", "error", err)
	}

	if h.opts.OnDump != nil {
		h.step(logger, "dump observer", func() { h.opts.OnDump(record, path, err) })
	}
}

// step runs fn and converts a panic into a logged HandlerInternalFailure.
func (h *FaultHandler) step(logger *logging.Logger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logger.Error("fault handler step failed",
				"step", name,
				"error", newDumpError(KindHandlerInternalFailure, name, "", fmt.Errorf("%v", r)),
			)
		}
	}()
	fn()
	return true
}

func (h *FaultHandler) recoverInternal(op string) {
	if r := recover(); r != nil {
		h.logger.Error("fault handler failed",
			"error", newDumpError(KindHandlerInternalFailure, op, "", fmt.Errorf("%v", r)))
	}
}
