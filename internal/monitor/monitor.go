// Package monitor implements the live sensor dashboard TUI using
// BubbleTea. It renders the engine's snapshots as one card per channel
// with range-colored sparklines and status badges.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/luki/nutetra/internal/chart"
	"github.com/luki/nutetra/internal/engine"
	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/sensor"
)

const (
	tickInterval = 1 * time.Second
	flashFor     = 3 * time.Second
)

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg engine.Snapshot

type feedClosedMsg struct{}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	snaps   <-chan engine.Snapshot
	history *history.Store
	dataDir string

	snap      engine.Snapshot
	hasSnap   bool
	flash     map[sensor.Channel]time.Time
	closed    bool
	width     int
	height    int
	scroll    int
	startTime time.Time
	now       time.Time
	paused    bool
	compact   bool
}

// New creates the monitor. snaps is usually from engine.Subscribe and hist
// is the engine's history store. dataDir is shown when CSV recording is on.
func New(snaps <-chan engine.Snapshot, hist *history.Store, dataDir string) Model {
	now := time.Now()
	return Model{
		snaps:     snaps,
		history:   hist,
		dataDir:   dataDir,
		flash:     make(map[sensor.Channel]time.Time),
		startTime: now,
		now:       now,
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForSnapshot(ch <-chan engine.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snaps), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		case "c":
			m.compact = !m.compact
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.now = time.Time(msg)
		for ch, at := range m.flash {
			if m.now.Sub(at) > flashFor {
				delete(m.flash, ch)
			}
		}
		return m, tickCmd()

	case snapshotMsg:
		if !m.paused {
			m.apply(engine.Snapshot(msg))
		}
		return m, waitForSnapshot(m.snaps)

	case feedClosedMsg:
		m.closed = true
	}

	return m, nil
}

func (m *Model) apply(s engine.Snapshot) {
	if m.hasSnap {
		for _, ch := range s.Changed {
			m.flash[ch] = m.now
		}
	}
	m.snap = s
	m.hasSnap = true
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorFlash    = lipgloss.Color("51")
	colorName     = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.closed {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(" feed stopped"))
	}

	if !m.hasSnap {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensor data..."))
	} else {
		for _, st := range m.snap.States {
			sections = append(sections, m.renderCard(st, contentWidth))
		}
	}

	sections = append(sections, m.renderFooter(contentWidth))
	return m.clip(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) clip(content string) string {
	lines := strings.Split(content, "\n")
	visible := m.height
	if visible < 5 {
		visible = 5
	}
	maxScroll := len(lines) - visible
	if maxScroll < 0 {
		maxScroll = 0
	}
	start := m.scroll
	if start > maxScroll {
		start = maxScroll
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("NUTETRA SENSORS")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	parts := []string{dimS.Render("up " + fmtDuration(m.now.Sub(m.startTime)))}

	if m.hasSnap {
		parts = append(parts, dimS.Render(fmt.Sprintf("#%d %s", m.snap.Seq, m.snap.Source)))
		if n := len(m.snap.Alerts()); n > 0 {
			parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true).
				Render(fmt.Sprintf("%d ALERT%s", n, plural(n))))
		}
	}
	if m.paused {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorPaused).Bold(true).Render("PAUSED"))
	}
	if m.dataDir != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("REC")+dimS.Render(" "+m.dataDir))
	}

	right := strings.Join(parts, dimS.Render(" │ "))
	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderCard(st sensor.ChannelState, totalWidth int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	name := lipgloss.NewStyle().Bold(true).Foreground(colorName).Render(sensor.FriendlyName(st.Channel))
	target := dimS.Render("no target range")
	if st.HasRange {
		target = lipgloss.NewStyle().Foreground(colorLabel).Render(sensor.FormatTargetRange(st.Channel, st.Range))
	}
	header := name + "  " + chart.RenderBadge(st.Status) + "  " + target
	if !st.ObservedAt.IsZero() {
		header += dimS.Render("  updated " + humanize.RelTime(st.ObservedAt, m.now, "ago", "from now"))
	}

	rows := []string{header}
	// Alerting channels are never collapsed.
	if !m.compact || st.Status.Alert() {
		rows = append(rows, m.renderDetail(st, totalWidth, dimS, valS)...)
	}

	border := colorBorder
	if st.Status.Alert() {
		border = chart.StatusColor(st.Status)
	}
	if _, ok := m.flash[st.Channel]; ok {
		border = colorFlash
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderDetail(st sensor.ChannelState, totalWidth int, dimS, valS lipgloss.Style) []string {
	const valueW = 12

	chartWidth := totalWidth - 4 - valueW - 40
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	var pts []history.Point
	var buf *history.Buffer
	if m.history != nil {
		if buf = m.history.Get(st.Channel); buf != nil {
			pts = buf.LastNPoints(chartWidth)
		}
	}
	lo, hi := chart.Bounds(pts, st.Range, st.HasRange)

	value := lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(chart.RenderValue(st))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")
	row := value + " " + frameL + chart.RenderSparkline(pts, chartWidth, lo, hi, st.Range, st.HasRange) + frameR

	if buf != nil && len(buf.Points) > 0 {
		f := func(v float64) string { return sensor.Format(st.Channel, v, true) }
		row += dimS.Render(" avg ") + valS.Render(f(buf.Avg())) +
			dimS.Render(" lo ") + valS.Render(f(buf.Min)) +
			dimS.Render(" pk ") + valS.Render(f(buf.Peak))
	}
	rows := []string{row}

	pad := strings.Repeat(" ", valueW+2)
	if st.HasValue {
		rows = append(rows, pad+chart.RenderRangeScale(st.Value, lo, hi, st.Range, st.HasRange, chartWidth))
	}
	if tl := chart.RenderTimeline(pts, chartWidth); strings.TrimSpace(tl) != "" {
		rows = append(rows, pad+tl)
	}
	return rows
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	swatch := func(s sensor.Status) string {
		return lipgloss.NewStyle().Foreground(chart.StatusColor(s)).Render("██")
	}
	legend := swatch(sensor.InRange) + dimS.Render(" in range ") +
		swatch(sensor.OutOfRange) + dimS.Render(" out ") +
		swatch(sensor.Unevaluated) + dimS.Render(" no range ") +
		swatch(sensor.Disconnected) + dimS.Render(" disconnected ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│") + dimS.Render(" 1min")

	key := func(k, label string) string {
		return dimS.Render(k) + lipgloss.NewStyle().Foreground(colorLabel).Render(":"+label)
	}
	keys := key("q", "quit") + "  " + key("j/k", "scroll") + "  " + key("p", "pause") + "  " + key("c", "compact")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "S"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
