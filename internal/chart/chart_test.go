package chart

import (
	"strings"
	"testing"
	"time"

	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/sensor"
)

var phRange = sensor.TargetRange{Min: 5.8, Max: 6.2}

func TestValueColor(t *testing.T) {
	tests := []struct {
		v        float64
		hasRange bool
		want     string
	}{
		{6.0, true, string(colorOK)},
		{5.81, true, string(colorNear)},
		{6.2, true, string(colorNear)},
		{6.3, true, string(colorOut)},
		{6.3, false, string(colorNoRange)},
	}
	for _, tt := range tests {
		if got := ValueColor(tt.v, phRange, tt.hasRange); string(got) != tt.want {
			t.Errorf("ValueColor(%v, %v) = %v, want %v", tt.v, tt.hasRange, got, tt.want)
		}
	}
}

func TestBounds(t *testing.T) {
	lo, hi := Bounds([]history.Point{{Value: 6.0}, {Value: 6.1}}, phRange, true)
	if lo >= phRange.Min || hi <= phRange.Max {
		t.Errorf("bounds %v..%v should contain the range", lo, hi)
	}
	lo, hi = Bounds(nil, sensor.TargetRange{}, false)
	if lo != 0 || hi != 1 {
		t.Errorf("empty bounds = %v..%v", lo, hi)
	}
	lo, hi = Bounds([]history.Point{{Value: 22}}, sensor.TargetRange{}, false)
	if lo >= 22 || hi <= 22 {
		t.Errorf("single value bounds %v..%v", lo, hi)
	}
}

func TestSparkline(t *testing.T) {
	var pts []history.Point
	for _, v := range []float64{5.9, 6.0, 6.1, 6.2, 6.4} {
		pts = append(pts, history.Point{Value: v})
	}
	result := RenderSparkline(pts, 20, 5.5, 6.5, phRange, true)
	if len(result) == 0 {
		t.Error("sparkline should not be empty")
	}
	if got := RenderSparkline(nil, 0, 0, 1, phRange, true); got != "" {
		t.Errorf("zero width = %q", got)
	}
	t.Logf("Sparkline: %s", result)
}

func TestSparklineMinuteTicks(t *testing.T) {
	base := time.Date(2026, 2, 21, 14, 0, 50, 0, time.Local)
	var pts []history.Point
	for i := 0; i < 20; i++ {
		pts = append(pts, history.Point{
			Value: 6.0 + float64(i%5)/20,
			Time:  base.Add(time.Duration(i) * time.Second),
		})
	}

	result := RenderSparkline(pts, 20, 5.5, 6.5, phRange, true)
	if !strings.Contains(result, "│") {
		t.Error("expected minute tick mark in sparkline")
	}
	if tl := RenderTimeline(pts, 20); !strings.Contains(tl, "14:01") {
		t.Errorf("timeline should label the minute: %q", tl)
	}
}

func TestRangeScaleAndValue(t *testing.T) {
	scale := RenderRangeScale(6.0, 5.5, 6.5, phRange, true, 21)
	if !strings.Contains(scale, "◆") || !strings.Contains(scale, "▪") {
		t.Errorf("scale should show value and bounds: %q", scale)
	}
	st := sensor.ChannelState{Channel: sensor.PH, Status: sensor.Disconnected, Text: "N/A"}
	if !strings.Contains(RenderValue(st), "N/A") {
		t.Error("value text should be rendered")
	}
	if !strings.Contains(RenderBadge(sensor.OutOfRange), "OUT OF RANGE") {
		t.Error("badge label")
	}
}
