// Package notify defines how the crash capture service surfaces a fault to
// the person using the application.
package notify

import (
	"sync"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
)

// Duration hints how long a notification should stay visible.
type Duration int

const (
	// Short is used for the generic message shown in release builds.
	Short Duration = iota
	// Long is used for raw fault messages shown in debug builds.
	Long
)

// String returns the duration hint name.
func (d Duration) String() string {
	if d == Long {
		return "long"
	}
	return "short"
}

// Notifier displays a message to the user.
type Notifier interface {
	Notify(text string, d Duration)
}

// Func adapts a function to the Notifier interface.
type Func func(text string, d Duration)

// Notify calls f.
func (f Func) Notify(text string, d Duration) { f(text, d) }

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, Duration) {}

// LogNotifier writes notifications to the log. Used by headless hosts.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify logs the text at warn level.
func (n *LogNotifier) Notify(text string, d Duration) {
	n.logger.Warn(text, "duration", d.String())
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards to every non-nil notifier.
func (m Multi) Notify(text string, d Duration) {
	for _, n := range m {
		if n != nil {
			n.Notify(text, d)
		}
	}
}

// Message is a delivered notification.
type Message struct {
	Text     string
	Duration Duration
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records the notification.
func (r *Recorder) Notify(text string, d Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: text, Duration: d})
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
