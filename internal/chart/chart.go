// Package chart renders sensor sparklines, timelines and range scales for
// the terminal views. Colors follow the channel's target range: green
// inside, yellow near a bound, red outside, blue when no range is set.
package chart

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/sensor"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const (
	colorOK      = lipgloss.Color("78")  // soft green
	colorNear    = lipgloss.Color("220") // yellow
	colorOut     = lipgloss.Color("196") // red
	colorWarn    = lipgloss.Color("208") // orange
	colorNoRange = lipgloss.Color("75")  // blue
	colorGone    = lipgloss.Color("240")
	colorDim     = lipgloss.Color("236")
	colorTick    = lipgloss.Color("239")
)

// nearEdge is the share of the range width treated as close to a bound.
const nearEdge = 0.1

// StatusColor returns the badge color of a status.
func StatusColor(s sensor.Status) lipgloss.Color {
	switch s {
	case sensor.InRange:
		return colorOK
	case sensor.OutOfRange:
		return colorWarn
	case sensor.Disconnected:
		return colorGone
	}
	return colorNoRange
}

// ValueColor colors a raw value against its range.
func ValueColor(v float64, rng sensor.TargetRange, hasRange bool) lipgloss.Color {
	if !hasRange {
		return colorNoRange
	}
	if !rng.Contains(v) {
		return colorOut
	}
	margin := (rng.Max - rng.Min) * nearEdge
	if v-rng.Min < margin || rng.Max-v < margin {
		return colorNear
	}
	return colorOK
}

// Bounds picks the vertical domain for a chart so that both the values and
// the target range are visible, with a little headroom.
func Bounds(points []history.Point, rng sensor.TargetRange, hasRange bool) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	if hasRange {
		lo = math.Min(lo, rng.Min)
		hi = math.Max(hi, rng.Max)
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 0.5)
	}
	return lo - pad, hi + pad
}

// isMinuteTick reports whether point i starts a new wall-clock minute.
func isMinuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderSparkline renders the newest width points as colored blocks
// scaled to [lo, hi], with a thin pipe at each minute boundary.
func RenderSparkline(points []history.Point, width int, lo, hi float64, rng sensor.TargetRange, hasRange bool) string {
	if width <= 0 {
		return ""
	}
	dim := lipgloss.NewStyle().Foreground(colorDim)
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	span := hi - lo
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < width-len(points); i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tick := lipgloss.NewStyle().Foreground(colorTick)
	for i, p := range points {
		if isMinuteTick(points, i) {
			sb.WriteString(tick.Render("│"))
			continue
		}
		norm := math.Max(0, math.Min(1, (p.Value-lo)/span))
		idx := int(norm * 7)
		style := lipgloss.NewStyle().Foreground(ValueColor(p.Value, rng, hasRange))
		if hasRange && !rng.Contains(p.Value) {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// RenderTimeline renders HH:MM labels under the sparkline at each minute
// tick, skipping labels that would overlap.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	padLen := width - len(points)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i, p := range points {
		if !isMinuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		copy(line[start:], []rune(label))
		lastEnd = end
	}
	return lipgloss.NewStyle().Foreground(colorTick).Render(string(line))
}

// RenderRangeScale draws a horizontal scale over [lo, hi] with markers at
// the range bounds and a diamond at the current value.
func RenderRangeScale(current, lo, hi float64, rng sensor.TargetRange, hasRange bool, width int) string {
	if width <= 0 {
		return ""
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - lo) / span)
		if p < 0 {
			return 0
		}
		if p >= width {
			return width - 1
		}
		return p
	}

	minPos, maxPos := -1, -1
	if hasRange {
		minPos, maxPos = pos(rng.Min), pos(rng.Max)
	}
	cur := pos(current)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == cur:
			sb.WriteString(lipgloss.NewStyle().Foreground(ValueColor(current, rng, hasRange)).Bold(true).Render("◆"))
		case i == minPos || i == maxPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(colorNear).Render("▪"))
		case hasRange && i > minPos && i < maxPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("22")).Render("·"))
		default:
			sb.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("·"))
		}
	}
	return sb.String()
}

// RenderValue renders the display text of a state in its status color.
// Alerting channels are bold.
func RenderValue(s sensor.ChannelState) string {
	style := lipgloss.NewStyle().Foreground(StatusColor(s.Status))
	if s.HasValue {
		style = style.Foreground(ValueColor(s.Value, s.Range, s.HasRange))
	}
	if s.Status.Alert() {
		style = style.Bold(true)
	}
	return style.Render(s.Text)
}

// RenderBadge renders the status as a short colored tag.
func RenderBadge(s sensor.Status) string {
	label := map[sensor.Status]string{
		sensor.InRange:      "IN RANGE",
		sensor.Unevaluated:  "NO RANGE",
		sensor.OutOfRange:   "OUT OF RANGE",
		sensor.Disconnected: "DISCONNECTED",
	}[s]
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(StatusColor(s)).
		Padding(0, 1).
		Bold(s.Alert()).
		Render(label)
}
