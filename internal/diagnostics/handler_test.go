package diagnostics_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/i18n"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/testutil"
)

type dumpOutcome struct {
	record diagnostics.FaultRecord
	path   string
	err    error
}

type handlerFixture struct {
	handler    *diagnostics.FaultHandler
	writer     *diagnostics.DumpWriter
	storage    *testutil.CountingStorage
	fs         afero.Fs
	dispatcher *testutil.ManualDispatcher
	notes      *notify.Recorder

	mu       sync.Mutex
	outcomes []dumpOutcome
}

type fixtureOption func(*diagnostics.HandlerDeps, *diagnostics.HandlerOptions)

func newHandlerFixture(t *testing.T, opts ...fixtureOption) *handlerFixture {
	t.Helper()

	inner, fs := memStorage(t)
	f := &handlerFixture{
		storage:    testutil.NewCountingStorage(inner),
		fs:         fs,
		dispatcher: &testutil.ManualDispatcher{},
		notes:      &notify.Recorder{},
	}
	f.writer = utcWriter(f.storage, diagnostics.DumpWriterOptions{})

	deps := diagnostics.HandlerDeps{
		Writer:      f.writer,
		Environment: testutil.StaticEnvironment(testutil.NewTestEnvironment()),
		Dispatcher:  f.dispatcher,
		Notifier:    f.notes,
		Messages:    i18n.New("en"),
		Logger:      logging.NewNop(),
	}
	hopts := diagnostics.HandlerOptions{
		Clock: testutil.FixedClock(testutil.FaultTime),
		OnDump: func(r diagnostics.FaultRecord, path string, err error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.outcomes = append(f.outcomes, dumpOutcome{record: r, path: path, err: err})
		},
	}
	for _, opt := range opts {
		opt(&deps, &hopts)
	}

	h, err := diagnostics.NewFaultHandler(deps, hopts)
	require.NoError(t, err)
	f.handler = h
	return f
}

func (f *handlerFixture) Outcomes() []dumpOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dumpOutcome(nil), f.outcomes...)
}

func recovered(t *testing.T, thread string, v any) *diagnostics.Panic {
	t.Helper()
	var err error
	func() {
		defer diagnostics.RecoverTo(thread, &err)
		panic(v)
	}()
	var pe *diagnostics.PanicError
	require.ErrorAs(t, err, &pe)
	return pe.Panic
}

func TestFaultHandler_ReleaseBuildShowsGenericMessage(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.handler.HandlePanic(recovered(t, "main", "boom"))

	msgs := f.notes.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, i18n.New("en").Resolve(i18n.KeyAppException), msgs[0].Text)
	assert.Equal(t, notify.Short, msgs[0].Duration)
}

func TestFaultHandler_DebugBuildShowsRawMessage(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t, func(_ *diagnostics.HandlerDeps, o *diagnostics.HandlerOptions) {
		o.Debug = true
	})
	f.handler.HandlePanic(recovered(t, "main", "index out of range [3] with length 2"))

	msgs := f.notes.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "index out of range [3] with length 2", msgs[0].Text)
	assert.Equal(t, notify.Long, msgs[0].Duration)
}

func TestFaultHandler_DoesNotWriteOnCallerGoroutine(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.handler.HandlePanic(recovered(t, "main", "boom"))

	assert.Equal(t, 1, f.dispatcher.Pending())
	assert.Equal(t, 0, f.storage.Calls("Available"))
	assert.Equal(t, 0, f.storage.Mutations())

	f.dispatcher.RunAll()

	outcomes := f.Outcomes()
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].err)
	assert.Equal(t, "/sdcard/crash/crash-2024-01-02-03-04-05.log", outcomes[0].path)
	assert.Equal(t, "main", outcomes[0].record.ThreadName)

	data, err := afero.ReadFile(f.fs, outcomes[0].path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[main] panic: boom")

	stats := f.handler.Stats()
	assert.Equal(t, int64(1), stats.Faults)
	assert.Equal(t, int64(1), stats.DumpsWritten)
	assert.Equal(t, int64(0), stats.DumpsFailed)
}

func TestFaultHandler_NonBlockingWithSlowDispatcher(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	pool := diagnostics.NewPoolDispatcher(0, nil)
	f := newHandlerFixture(t, func(d *diagnostics.HandlerDeps, _ *diagnostics.HandlerOptions) {
		d.Dispatcher = pool
		d.Environment = diagnostics.EnvironmentFunc(func() diagnostics.EnvironmentSnapshot {
			<-release
			return testutil.NewTestEnvironment()
		})
	})

	p := recovered(t, "main", "boom")
	done := make(chan struct{})
	go func() {
		f.handler.HandlePanic(p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on the dump task")
	}
	assert.Empty(t, f.Outcomes())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Close(ctx))
	require.Len(t, f.Outcomes(), 1)
}

func TestFaultHandler_OneDumpPerFault(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	next := testutil.FaultTime
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at := next
		next = next.Add(time.Second)
		return at
	}
	f := newHandlerFixture(t, func(_ *diagnostics.HandlerDeps, o *diagnostics.HandlerOptions) {
		o.Clock = clock
	})

	const faults = 7
	for i := 0; i < faults; i++ {
		f.handler.HandlePanic(recovered(t, "main", i))
	}
	f.dispatcher.RunAll()

	dumps, err := f.writer.List()
	require.NoError(t, err)
	assert.Len(t, dumps, faults)
	assert.Equal(t, faults, f.storage.Calls("WriteFile"))
}

func TestFaultHandler_StorageUnavailable(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.storage.Unavailable = errors.New("media removed")

	assert.NotPanics(t, func() {
		f.handler.HandlePanic(recovered(t, "main", "boom"))
		f.dispatcher.RunAll()
	})

	outcomes := f.Outcomes()
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].err, diagnostics.ErrStorageUnavailable)
	assert.Equal(t, 0, f.storage.Mutations())
	assert.Equal(t, int64(1), f.handler.Stats().DumpsFailed)
}

type explodingNotifier struct{}

func (explodingNotifier) Notify(string, notify.Duration) { panic("toast exploded") }

type explodingDispatcher struct{}

func (explodingDispatcher) Submit(func()) error { panic("queue exploded") }
func (explodingDispatcher) Close(context.Context) error { return nil }

func TestFaultHandler_CollaboratorFailuresDoNotPropagate(t *testing.T) {
	t.Parallel()

	t.Run("notifier panics", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t, func(d *diagnostics.HandlerDeps, _ *diagnostics.HandlerOptions) {
			d.Notifier = explodingNotifier{}
		})
		assert.NotPanics(t, func() { f.handler.HandlePanic(recovered(t, "main", "boom")) })
		assert.Equal(t, 1, f.dispatcher.Pending(), "dump still scheduled")
	})

	t.Run("dispatcher panics", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t, func(d *diagnostics.HandlerDeps, _ *diagnostics.HandlerOptions) {
			d.Dispatcher = explodingDispatcher{}
		})
		assert.NotPanics(t, func() { f.handler.HandlePanic(recovered(t, "main", "boom")) })
		assert.Len(t, f.notes.Messages(), 1, "user still notified")
	})

	t.Run("dispatcher rejects", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t)
		f.dispatcher.Reject = diagnostics.ErrQueueFull
		f.handler.HandlePanic(recovered(t, "main", "boom"))

		outcomes := f.Outcomes()
		require.Len(t, outcomes, 1)
		assert.ErrorIs(t, outcomes[0].err, diagnostics.ErrQueueFull)
	})

	t.Run("storage panics", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t)
		f.storage.PanicOn = "WriteFile"
		assert.NotPanics(t, func() {
			f.handler.HandlePanic(recovered(t, "main", "boom"))
			f.dispatcher.RunAll()
		})

		outcomes := f.Outcomes()
		require.Len(t, outcomes, 1)
		assert.ErrorIs(t, outcomes[0].err, diagnostics.ErrHandlerInternalFailure)
	})

	t.Run("environment panics", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t, func(d *diagnostics.HandlerDeps, _ *diagnostics.HandlerOptions) {
			d.Environment = diagnostics.EnvironmentFunc(func() diagnostics.EnvironmentSnapshot {
				panic("probe exploded")
			})
		})
		f.handler.HandlePanic(recovered(t, "main", "boom"))
		f.dispatcher.RunAll()

		outcomes := f.Outcomes()
		require.Len(t, outcomes, 1)
		require.NoError(t, outcomes[0].err)
		data, err := afero.ReadFile(f.fs, outcomes[0].path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Metadata Lookup Failed: environment: probe exploded")
	})

	t.Run("observer panics", func(t *testing.T) {
		t.Parallel()
		f := newHandlerFixture(t, func(_ *diagnostics.HandlerDeps, o *diagnostics.HandlerOptions) {
			o.OnDump = func(diagnostics.FaultRecord, string, error) { panic("observer exploded") }
		})
		assert.NotPanics(t, func() {
			f.handler.HandlePanic(recovered(t, "main", "boom"))
			f.dispatcher.RunAll()
		})
		assert.Equal(t, int64(1), f.handler.Stats().DumpsWritten)
	})
}

func TestFaultHandler_NilPanicIgnored(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.handler.HandlePanic(nil)
	assert.Equal(t, int64(0), f.handler.Stats().Faults)
	assert.Empty(t, f.notes.Messages())
}

func TestNewFaultHandler_RequiresWriterAndDispatcher(t *testing.T) {
	t.Parallel()

	_, err := diagnostics.NewFaultHandler(diagnostics.HandlerDeps{Dispatcher: &testutil.ManualDispatcher{}}, diagnostics.HandlerOptions{})
	assert.Error(t, err)

	storage, _ := memStorage(t)
	_, err = diagnostics.NewFaultHandler(diagnostics.HandlerDeps{Writer: utcWriter(storage, diagnostics.DumpWriterOptions{})}, diagnostics.HandlerOptions{})
	assert.Error(t, err)
}

// Any combination of failing collaborators stays inside the handler: the
// faulting goroutine never sees a panic and the user is still notified
// whenever the notifier itself works.
func TestFaultHandler_NoPropagation_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 64

	properties := gopter.NewProperties(parameters)

	properties.Property("collaborator failures never reach the caller", prop.ForAll(
		func(mask uint8) bool {
			f := newHandlerFixture(t, func(d *diagnostics.HandlerDeps, _ *diagnostics.HandlerOptions) {
				if mask&1 != 0 {
					d.Notifier = explodingNotifier{}
				}
				if mask&2 != 0 {
					d.Dispatcher = explodingDispatcher{}
				}
				if mask&4 != 0 {
					d.Environment = diagnostics.EnvironmentFunc(func() diagnostics.EnvironmentSnapshot {
						panic("probe exploded")
					})
				}
			})
			if mask&8 != 0 {
				f.storage.PanicOn = "WriteFile"
			}

			escaped := func() (escaped bool) {
				defer func() { escaped = recover() != nil }()
				f.handler.HandlePanic(recovered(t, "main", "boom"))
				f.dispatcher.RunAll()
				return false
			}()

			notified := mask&1 != 0 || len(f.notes.Messages()) == 1
			return !escaped && notified && f.handler.Stats().Faults == 1
		},
		gen.UInt8Range(0, 15),
	))

	properties.TestingRun(t)
}
