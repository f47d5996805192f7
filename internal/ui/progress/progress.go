// Package progress renders a live status screen for a translation run:
// a scrolling log pane plus a batch-progress bar, styled the same way
// the rest of the toolchain styles its execution screens. A Reporter
// abstracts over this so a pipeline run can drive either the bubbletea
// screen or a plain stdlib logger when stdout isn't a terminal.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarn
	LogError
	LogSuccess
)

// LogEntry is a single timestamped log line.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// LogBuffer is a circular buffer of log entries, safe for concurrent use
// since batches are translated by goroutines that log as they finish.
type LogBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{entries: make([]LogEntry, 0, maxSize), maxSize: maxSize}
}

func (lb *LogBuffer) AddLine(level LogLevel, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if len(lb.entries) >= lb.maxSize {
		lb.entries = lb.entries[1:]
	}
	lb.entries = append(lb.entries, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
}

func (lb *LogBuffer) Count() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.entries)
}

// GetRawText renders every entry, newest last, for the viewport.
func (lb *LogBuffer) GetRawText() string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	var sb strings.Builder
	for _, e := range lb.entries {
		sb.WriteString(formatLogEntry(e))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatLogEntry(e LogEntry) string {
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Faint(true)

	var levelStr string
	var levelStyle lipgloss.Style
	switch e.Level {
	case LogInfo:
		levelStr = "[INFO]"
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	case LogWarn:
		levelStr = "[WARN]"
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	case LogError:
		levelStr = "[ERR]"
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	case LogSuccess:
		levelStr = "[OK]"
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	}

	messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	return fmt.Sprintf("%s %s %s",
		timeStyle.Render("["+e.Timestamp.Format("15:04:05")+"]"),
		levelStyle.Render(levelStr),
		messageStyle.Render(e.Message),
	)
}

const (
	minWidth  = 80
	minHeight = 24
)

func isTooSmall(width, height int) bool {
	if width == 0 || height == 0 {
		return false
	}
	return width < minWidth || height < minHeight
}

func renderTooSmallWarning(width, height int) string {
	neonPink := lipgloss.Color("#F700FF")
	gray := lipgloss.Color("#808080")

	warning := lipgloss.NewStyle().Foreground(neonPink).Bold(true).Render("TERMINAL TOO SMALL")
	msg := lipgloss.NewStyle().Foreground(gray).Render("Please resize to at least 80x24")

	content := lipgloss.JoinVertical(lipgloss.Center, "", warning, "", msg, "")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func safeWidth(width, min int) int {
	if width < min {
		return min
	}
	return width
}

// Status is the run's current lifecycle state.
type Status int

const (
	StatusRunning Status = iota
	StatusComplete
	StatusFailed
)

// LogMsg appends one line to the log pane.
type LogMsg struct {
	Level   LogLevel
	Message string
}

// BatchMsg updates batch-level progress.
type BatchMsg struct {
	BatchIndex, TotalBatches int
	CuesDone, TotalCues      int
}

// StatusMsg transitions the run's lifecycle state.
type StatusMsg struct {
	Status Status
	Err    error
}

var keys = struct {
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Bottom     key.Binding
}{
	Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit (when done)")),
	ScrollUp:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
	ScrollDown: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
	Bottom:     key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "jump to bottom")),
}

// Model is the bubbletea screen shown while a translation run executes.
type Model struct {
	width, height int

	jobName      string
	batchIndex   int
	totalBatches int
	cuesDone     int
	totalCues    int
	status       Status
	runErr       error
	startTime    time.Time
	elapsedTime  time.Duration

	logBuffer  *LogBuffer
	viewport   viewport.Model
	autoScroll bool
	bar        bprogress.Model

	quitting bool
}

// New builds a fresh progress screen for a run over totalCues subtitle
// cues split into totalBatches batches.
func New(jobName string, totalCues, totalBatches int) Model {
	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		Padding(0, 1)

	bar := bprogress.New(bprogress.WithGradient("#00FFFF", "#F700FF"))
	bar.Width = 50

	return Model{
		width:        80,
		height:       24,
		jobName:      jobName,
		totalBatches: totalBatches,
		totalCues:    totalCues,
		status:       StatusRunning,
		startTime:    time.Now(),
		logBuffer:    NewLogBuffer(1000),
		viewport:     vp,
		autoScroll:   true,
		bar:          bar,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.status != StatusRunning {
				m.quitting = true
				return m, tea.Quit
			}
		case key.Matches(msg, keys.ScrollUp):
			m.viewport.LineUp(1)
			m.autoScroll = false
		case key.Matches(msg, keys.ScrollDown):
			m.viewport.LineDown(1)
			if m.viewport.AtBottom() {
				m.autoScroll = true
			}
		case key.Matches(msg, keys.Bottom):
			m.viewport.GotoBottom()
			m.autoScroll = true
		}

	case LogMsg:
		m.logBuffer.AddLine(msg.Level, msg.Message)
		m.viewport.SetContent(m.logBuffer.GetRawText())
		if m.autoScroll {
			m.viewport.GotoBottom()
		}

	case BatchMsg:
		m.batchIndex = msg.BatchIndex
		m.cuesDone = msg.CuesDone
		m.totalBatches = msg.TotalBatches
		m.totalCues = msg.TotalCues
		percent := 0.0
		if m.totalBatches > 0 {
			percent = float64(m.batchIndex) / float64(m.totalBatches)
		}
		return m, m.bar.SetPercent(percent)

	case bprogress.FrameMsg:
		barModel, barCmd := m.bar.Update(msg)
		m.bar = barModel.(bprogress.Model)
		return m, barCmd

	case StatusMsg:
		m.status = msg.Status
		m.runErr = msg.Err
		if msg.Status == StatusComplete {
			return m, m.bar.SetPercent(1.0)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 8
		footerHeight := 2
		availableHeight := m.height - headerHeight - footerHeight
		if availableHeight < 5 {
			availableHeight = 5
		}
		m.viewport.Width = safeWidth(m.width-6, 70)
		m.viewport.Height = availableHeight
		m.viewport.SetContent(m.logBuffer.GetRawText())
		if m.autoScroll {
			m.viewport.GotoBottom()
		}
		m.bar.Width = safeWidth(m.width-10, 30)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if isTooSmall(m.width, m.height) {
		return renderTooSmallWarning(m.width, m.height)
	}

	header := m.renderHeader()
	progress := m.renderProgress()
	logs := m.renderLogs()
	footer := m.renderFooter()

	content := lipgloss.JoinVertical(lipgloss.Left, header, "", progress, "", logs, "", footer)
	contentWidth := safeWidth(m.width-4, 76)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F700FF")).
		Padding(1, 2).
		Width(contentWidth).
		Render(content)
}

func (m Model) renderHeader() string {
	var statusStr string
	var statusColor lipgloss.Color
	switch m.status {
	case StatusRunning:
		statusStr, statusColor = "[▶ RUNNING]", lipgloss.Color("#00FF00")
	case StatusComplete:
		statusStr, statusColor = "[✓ COMPLETE]", lipgloss.Color("#00FF00")
	case StatusFailed:
		statusStr, statusColor = "[✗ FAILED]", lipgloss.Color("#FF0000")
	}
	statusStyle := lipgloss.NewStyle().Foreground(statusColor).Bold(true)

	if m.status == StatusRunning {
		m.elapsedTime = time.Since(m.startTime)
	}
	elapsed := fmt.Sprintf("%02d:%02d:%02d",
		int(m.elapsedTime.Hours()), int(m.elapsedTime.Minutes())%60, int(m.elapsedTime.Seconds())%60)

	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#F700FF")).Bold(true).Render(
		fmt.Sprintf("TRANSLATING: %s", m.jobName))
	status := statusStyle.Render(statusStr) + " [elapsed: " + elapsed + "]"
	if m.status == StatusFailed && m.runErr != nil {
		status += " — " + m.runErr.Error()
	}

	bar := strings.Repeat("▒", safeWidth(m.width-6, 70))
	return lipgloss.JoinVertical(lipgloss.Left, bar, title, status, bar)
}

func (m Model) renderProgress() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		fmt.Sprintf("BATCH %d/%d  ·  CUES %d/%d", m.batchIndex, m.totalBatches, m.cuesDone, m.totalCues),
		m.bar.View(),
	)
}

func (m Model) renderLogs() string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")).Bold(true).Render(
		fmt.Sprintf("LOG (%d/%d lines)", m.logBuffer.Count(), 1000))
	scroll := ""
	if !m.autoScroll {
		scroll = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")).Render(" [scroll mode - press G to jump to bottom]")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title+scroll, "", m.viewport.View())
}

func (m Model) renderFooter() string {
	if m.status != StatusRunning {
		return "q quit"
	}
	return "↑↓ scroll  ·  G bottom"
}
