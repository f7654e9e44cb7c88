// Package viewer implements the historical sensor data browser TUI with
// time scrubbing, day navigation, and sparkline windows over the CSV log.
package viewer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/nutetra/internal/chart"
	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/sensor"
	"github.com/luki/nutetra/internal/store"
)

// ErrNoHistory is returned by Run when dir holds no day files.
var ErrNoHistory = errors.New("no history data")

// Run launches the viewer over the CSV files in dir.
func Run(dir string) error {
	days, err := store.ListDays(dir)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return fmt.Errorf("%w in %s", ErrNoHistory, dir)
	}

	p := tea.NewProgram(
		initModel(dir, days),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorName     = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCursor   = lipgloss.Color("214")
	colorErr      = lipgloss.Color("196")
)

// ── Model ────────────────────────────────────────────────────────────

type model struct {
	dir    string
	days   []string // newest first
	dayIdx int
	rows   int
	cursor int // index into timeSlots
	scroll int
	width  int
	height int
	err    error

	timeSlots []time.Time
	series    map[sensor.Channel][]store.StoredReading // sorted by time
}

func initModel(dir string, days []string) model {
	m := model{dir: dir, days: days}
	m.loadDay()
	return m
}

func (m *model) loadDay() {
	rows, err := store.LoadDay(m.dir, m.days[m.dayIdx])
	if err != nil {
		m.err = err
		m.timeSlots, m.series, m.rows = nil, nil, 0
		return
	}
	m.err = nil
	m.rows = len(rows)

	slots := make(map[int64]time.Time)
	m.series = make(map[sensor.Channel][]store.StoredReading)
	for _, r := range rows {
		slots[r.Time.Unix()] = r.Time
		m.series[r.Channel] = append(m.series[r.Channel], r)
	}
	for ch := range m.series {
		s := m.series[ch]
		sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
	}

	m.timeSlots = make([]time.Time, 0, len(slots))
	for _, t := range slots {
		m.timeSlots = append(m.timeSlots, t)
	}
	sort.Slice(m.timeSlots, func(i, j int) bool { return m.timeSlots[i].Before(m.timeSlots[j]) })

	m.cursor = len(m.timeSlots) - 1
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.scroll = 0
}

// ── Init / Update ────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		last := len(m.timeSlots) - 1
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			m.cursor = clamp(m.cursor-1, 0, last)
		case "right", "l":
			m.cursor = clamp(m.cursor+1, 0, last)
		case "shift+left", "H":
			m.cursor = clamp(m.cursor-60, 0, last)
		case "shift+right", "L":
			m.cursor = clamp(m.cursor+60, 0, last)
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = clamp(last, 0, last)

		case "[":
			if m.dayIdx < len(m.days)-1 {
				m.dayIdx++
				m.loadDay()
			}
		case "]":
			if m.dayIdx > 0 {
				m.dayIdx--
				m.loadDay()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// stateAt rebuilds the channel state recorded closest to t.
func (m model) stateAt(ch sensor.Channel, t time.Time) (sensor.ChannelState, bool) {
	rows := m.series[ch]
	if len(rows) == 0 {
		return sensor.ChannelState{}, false
	}
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Time.Before(t) })
	switch {
	case i == len(rows):
		i--
	case i > 0 && t.Sub(rows[i-1].Time) < rows[i].Time.Sub(t):
		i--
	}
	r := rows[i]
	status, ok := sensor.ParseStatus(r.Status)
	if !ok {
		status = sensor.Disconnected
		if r.HasValue {
			status = sensor.Unevaluated
		}
	}
	return sensor.ChannelState{
		Channel:    ch,
		Status:     status,
		Text:       sensor.Format(ch, r.Value, r.HasValue),
		Value:      r.Value,
		HasValue:   r.HasValue,
		Range:      sensor.TargetRange{Min: r.Min, Max: r.Max},
		HasRange:   r.HasRange,
		ObservedAt: r.Time,
	}, true
}

// window returns up to width recorded values ending at the cursor.
// Rows without a value are left out.
func (m model) window(ch sensor.Channel, width int) []history.Point {
	if len(m.timeSlots) == 0 {
		return nil
	}
	end := m.timeSlots[m.cursor]
	start := m.timeSlots[clamp(m.cursor-width+1, 0, m.cursor)]

	var out []history.Point
	for _, r := range m.series[ch] {
		if r.Time.Before(start) || r.Time.After(end) || !r.HasValue {
			continue
		}
		out = append(out, history.Point{Value: r.Value, Time: r.Time})
	}
	return out
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	sections := []string{m.renderTitle(contentWidth)}

	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorErr).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err)))
	}

	if len(m.timeSlots) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No data for this day."))
	} else {
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderPanel(contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visible := m.height
	if visible < 5 {
		visible = 5
	}
	start := clamp(m.scroll, 0, max(len(lines)-visible, 0))
	end := min(start+visible, len(lines))
	return strings.Join(lines[start:end], "\n")
}

func (m model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("NUTETRA HISTORY")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	right := lipgloss.NewStyle().Foreground(colorCursor).Bold(true).Render(m.days[m.dayIdx]) +
		dimS.Render(fmt.Sprintf("  [ %d/%d ]", m.dayIdx+1, len(m.days)))
	if n := len(m.timeSlots); n > 0 {
		right += dimS.Render(fmt.Sprintf("  %s - %s  (%d rows)",
			m.timeSlots[0].Format("15:04:05"), m.timeSlots[n-1].Format("15:04:05"), m.rows))
	}

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

func (m model) renderCursorInfo(width int) string {
	t := m.timeSlots[m.cursor]
	ts := lipgloss.NewStyle().Foreground(colorCursor).Bold(true).Render(t.Format("15:04:05"))
	pos := lipgloss.NewStyle().Foreground(colorDim).Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.timeSlots)))

	barWidth := width - 30
	if barWidth < 10 {
		barWidth = 10
	}
	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(barWidth))
}

// renderScrubber draws the day as a bar with the cursor and a tick at
// every hour boundary.
func (m model) renderScrubber(width int) string {
	n := len(m.timeSlots)
	if n == 0 || width <= 0 {
		return ""
	}
	slotAt := func(i int) int {
		if n == 1 || width == 1 {
			return 0
		}
		return i * (n - 1) / (width - 1)
	}
	pos := 0
	if n > 1 {
		pos = min(m.cursor*(width-1)/(n-1), width-1)
	}

	lineS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		if s := slotAt(i); s > 0 && m.timeSlots[s].Hour() != m.timeSlots[s-1].Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(lineS.Render("─"))
	}
	return sb.String()
}

func (m model) renderPanel(totalWidth int) string {
	const labelW, valueW = 14, 12

	chartWidth := totalWidth - 4 - labelW - valueW - 44
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	cursorTime := m.timeSlots[m.cursor]
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string
	for _, ch := range sensor.Channels {
		st, ok := m.stateAt(ch, cursorTime)
		if !ok {
			continue
		}
		pts := m.window(ch, chartWidth)
		lo, hi := chart.Bounds(pts, st.Range, st.HasRange)

		label := lipgloss.NewStyle().Foreground(colorName).Bold(true).Width(labelW).Render(sensor.FriendlyName(ch))
		value := lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(chart.RenderValue(st))
		spark := frameL + chart.RenderSparkline(pts, chartWidth, lo, hi, st.Range, st.HasRange) + frameR

		target := dimS.Render("no target range")
		if st.HasRange {
			target = lipgloss.NewStyle().Foreground(colorLabel).Render(sensor.FormatTargetRange(ch, st.Range))
		}
		rows = append(rows, label+" "+value+" "+spark+" "+chart.RenderBadge(st.Status)+" "+target)

		if tl := chart.RenderTimeline(pts, chartWidth); strings.TrimSpace(tl) != "" {
			rows = append(rows, strings.Repeat(" ", labelW+valueW+2)+" "+tl)
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 60") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":day") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
