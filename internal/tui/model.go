package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
)

const (
	maxLines       = 200
	shortToastTime = 2 * time.Second
	longToastTime  = 3500 * time.Millisecond
	defaultWidth   = 80
	defaultHeight  = 24
	chromeHeight   = 9 // header, heartbeat, stats, toast, footer and borders
)

type toast struct {
	text     string
	duration notify.Duration
	until    time.Time
}

// Model is the demo program. It survives restarts: the Session carries the
// last model into the next program.
type Model struct {
	ctrl   Controller
	bridge *Bridge
	now    func() time.Time

	spinner  spinner.Model
	viewport viewport.Model
	lines    []string
	width    int
	height   int

	loopState diagnostics.LoopState
	stats     diagnostics.Stats
	ticks     int64
	triggered int
	toast     *toast

	// Exit reasons, read once the program has ended.
	crash bool
	fault error
	quit  bool
}

// NewModel creates the demo model.
func NewModel(ctrl Controller, bridge *Bridge) Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(HeartbeatStyle),
	)
	m := Model{
		ctrl:      ctrl,
		bridge:    bridge,
		now:       time.Now,
		spinner:   s,
		viewport:  viewport.New(defaultWidth-4, defaultHeight-chromeHeight),
		width:     defaultWidth,
		height:    defaultHeight,
		loopState: diagnostics.StateRunning,
	}
	m.appendLine(SubtleStyle.Render("press p, g or e to trigger a fault"))
	return m
}

// restart clears the exit reasons before the model runs in a new program.
func (m Model) restart() Model {
	m.crash = false
	m.fault = nil
	m.quit = false
	return m
}

// Init starts the heartbeat.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.ticks++
		m.pump()
		return m, cmd

	case NotifyMsg, TransitionMsg, DumpMsg, LogMsg:
		m.apply(msg)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quit = true
		return m, tea.Quit

	case "p":
		m.triggered++
		m.crash = true
		return m, tea.Quit

	case "g":
		m.triggered++
		m.ctrl.Go("worker", workerFault(m.triggered))
		m.appendLine(InfoLineStyle.Render(fmt.Sprintf("started worker for fault #%d", m.triggered)))
		return m, nil

	case "e":
		m.triggered++
		m.fault = explodeCallback(m.triggered)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// pump applies everything the bridge collected since the last tick.
func (m *Model) pump() {
	if m.bridge != nil {
		for _, msg := range m.bridge.Drain() {
			m.apply(msg)
		}
	}
	if m.ctrl != nil {
		m.stats = m.ctrl.Stats()
	}
	if m.toast != nil && !m.now().Before(m.toast.until) {
		m.toast = nil
	}
}

func (m *Model) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case NotifyMsg:
		lifetime := shortToastTime
		if msg.Duration == notify.Long {
			lifetime = longToastTime
		}
		at := msg.Time
		if at.IsZero() {
			at = m.now()
		}
		m.toast = &toast{text: msg.Text, duration: msg.Duration, until: at.Add(lifetime)}
		m.appendLine(WarnLineStyle.Render("notify: " + msg.Text))

	case TransitionMsg:
		m.loopState = msg.To
		m.appendLine(fmt.Sprintf("loop %s -> %s", msg.From, msg.To))

	case DumpMsg:
		if msg.Err != nil {
			m.appendLine(ErrorLineStyle.Render(fmt.Sprintf("dump for %s failed: %v", msg.Thread, msg.Err)))
			return
		}
		m.appendLine(OKLineStyle.Render(fmt.Sprintf("dump for %s written to %s", msg.Thread, msg.Path)))

	case LogMsg:
		m.appendLine(SubtleStyle.Render(msg.Line))
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-4, 10)
	m.viewport.Height = max(height-chromeHeight, 3)
	m.viewport.GotoBottom()
}

// View renders the demo.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("crashcapture demo"))
	b.WriteString(" ")
	b.WriteString(stateBadge(m.loopState))
	b.WriteString(SubtleStyle.Render(fmt.Sprintf("  restarts %d", m.stats.Restarts)))
	b.WriteString("\n\n")

	b.WriteString(m.spinner.View())
	b.WriteString(HeartbeatStyle.Render(" main loop alive"))
	b.WriteString(SubtleStyle.Render(fmt.Sprintf("  ticks %d", m.ticks)))
	b.WriteString("\n")

	stats := fmt.Sprintf("faults %d  dumps %d  failed %d",
		m.stats.Faults, m.stats.DumpsWritten, m.stats.DumpsFailed)
	if m.bridge != nil && m.bridge.Dropped() > 0 {
		stats += fmt.Sprintf("  dropped %d", m.bridge.Dropped())
	}
	b.WriteString(SubtleStyle.Render(stats))
	b.WriteString("\n")

	b.WriteString(LogBoxStyle.Width(max(m.width-2, 12)).Render(m.viewport.View()))
	b.WriteString("\n")

	b.WriteString(m.renderToast())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("p panic loop • g panic goroutine • e wrapped panic • ↑/↓ scroll • q quit"))

	return b.String()
}

func (m Model) renderToast() string {
	if m.toast == nil {
		return ""
	}
	style := ToastStyle
	if m.toast.duration == notify.Long {
		style = ToastLongStyle
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, style.Render(m.toast.text))
}
