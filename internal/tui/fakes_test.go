package tui

import (
	"sync"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// fakeController records Go calls without starting goroutines.
type fakeController struct {
	mu      sync.Mutex
	started []string
	fns     []func()
	stats   diagnostics.Stats
}

func (c *fakeController) Go(name string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, name)
	c.fns = append(c.fns, fn)
}

func (c *fakeController) Stats() diagnostics.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *fakeController) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.started...)
}
