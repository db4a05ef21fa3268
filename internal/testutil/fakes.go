package testutil

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// CountingStorage decorates a diagnostics.Storage, counting calls and
// optionally failing or panicking on selected operations.
type CountingStorage struct {
	diagnostics.Storage

	mu          sync.Mutex
	calls       map[string]int
	Unavailable error
	MkdirErr    error
	WriteErr    error
	PanicOn     string
}

// NewCountingStorage wraps inner.
func NewCountingStorage(inner diagnostics.Storage) *CountingStorage {
	return &CountingStorage{Storage: inner, calls: make(map[string]int)}
}

func (s *CountingStorage) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	panicOn := s.PanicOn
	s.mu.Unlock()
	if panicOn == op {
		panic("storage " + op + " exploded")
	}
}

// Calls returns how many times op was invoked.
func (s *CountingStorage) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Mutations returns the number of Mkdir, WriteFile and Remove calls.
func (s *CountingStorage) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls["Mkdir"] + s.calls["WriteFile"] + s.calls["Remove"]
}

// Available implements diagnostics.Storage.
func (s *CountingStorage) Available() error {
	s.record("Available")
	if s.Unavailable != nil {
		return s.Unavailable
	}
	return s.Storage.Available()
}

// PathExists implements diagnostics.Storage.
func (s *CountingStorage) PathExists(path string) bool {
	s.record("PathExists")
	return s.Storage.PathExists(path)
}

// Mkdir implements diagnostics.Storage.
func (s *CountingStorage) Mkdir(path string) error {
	s.record("Mkdir")
	if s.MkdirErr != nil {
		return s.MkdirErr
	}
	return s.Storage.Mkdir(path)
}

// WriteFile implements diagnostics.Storage.
func (s *CountingStorage) WriteFile(path string, data []byte) error {
	s.record("WriteFile")
	if s.WriteErr != nil {
		return s.WriteErr
	}
	return s.Storage.WriteFile(path, data)
}

// ReadDir implements diagnostics.Storage.
func (s *CountingStorage) ReadDir(path string) ([]os.FileInfo, error) {
	s.record("ReadDir")
	return s.Storage.ReadDir(path)
}

// Remove implements diagnostics.Storage.
func (s *CountingStorage) Remove(path string) error {
	s.record("Remove")
	return s.Storage.Remove(path)
}

// ManualDispatcher queues submitted tasks until RunAll is called.
type ManualDispatcher struct {
	mu     sync.Mutex
	tasks  []func()
	Reject error
}

// Submit queues task, or returns Reject when set.
func (d *ManualDispatcher) Submit(task func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Reject != nil {
		return d.Reject
	}
	d.tasks = append(d.tasks, task)
	return nil
}

// Close is a no-op.
func (d *ManualDispatcher) Close(context.Context) error { return nil }

// Pending returns the number of queued tasks.
func (d *ManualDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// RunAll runs and clears every queued task in submission order.
func (d *ManualDispatcher) RunAll() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
