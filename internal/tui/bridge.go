package tui

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
)

// DefaultBridgeCapacity bounds the number of undelivered messages.
const DefaultBridgeCapacity = 256

// MaxLogLine bounds unterminated log output; longer runs are split into
// several LogMsg.
const MaxLogLine = 4096

// Bridge turns crash capture callbacks into bubbletea messages. Callbacks
// arrive on any goroutine, including the loop goroutine while no program is
// running, so messages are queued and the model drains them on its own
// schedule. The queue survives loop restarts.
type Bridge struct {
	mu       sync.Mutex
	queue    []tea.Msg
	capacity int
	dropped  atomic.Int64
	now      func() time.Time

	partial []byte // unterminated log output
}

// NewBridge creates a bridge holding at most capacity undelivered messages.
func NewBridge(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultBridgeCapacity
	}
	return &Bridge{capacity: capacity, now: time.Now}
}

// Post queues msg. When the queue is full the message is dropped.
func (b *Bridge) Post(msg tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postLocked(msg)
}

func (b *Bridge) postLocked(msg tea.Msg) {
	if len(b.queue) >= b.capacity {
		b.dropped.Add(1)
		return
	}
	b.queue = append(b.queue, msg)
}

// Drain returns and clears the queued messages in arrival order.
func (b *Bridge) Drain() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.queue
	b.queue = nil
	return msgs
}

// Dropped returns how many messages were discarded on a full queue.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Notify implements notify.Notifier.
func (b *Bridge) Notify(text string, d notify.Duration) {
	b.Post(NotifyMsg{Time: b.now(), Text: text, Duration: d})
}

// OnTransition observes primary loop state changes.
func (b *Bridge) OnTransition(from, to diagnostics.LoopState) {
	b.Post(TransitionMsg{Time: b.now(), From: from, To: to})
}

// OnDump observes dump outcomes.
func (b *Bridge) OnDump(record diagnostics.FaultRecord, path string, err error) {
	b.Post(DumpMsg{
		Time:    b.now(),
		FaultID: record.ID,
		Thread:  record.ThreadName,
		Message: record.Message,
		Path:    path,
		Err:     err,
	})
}

// Write implements io.Writer so a logger can print into the event log while
// the terminal belongs to bubbletea. Each complete line becomes a LogMsg.
func (b *Bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(data[:i], "\r"); len(line) > 0 {
			b.postLocked(LogMsg{Time: b.now(), Line: string(line)})
		}
		data = data[i+1:]
	}
	for len(data) >= MaxLogLine {
		b.postLocked(LogMsg{Time: b.now(), Line: string(data[:MaxLogLine])})
		data = data[MaxLogLine:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}
