package monitor

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/nutetra/internal/engine"
	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/sensor"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshot(seq uint64, phStatus sensor.Status, changed ...sensor.Channel) engine.Snapshot {
	rng := sensor.TargetRange{Min: 5.8, Max: 6.2}
	return engine.Snapshot{
		Seq: seq,
		At:  t0,
		States: []sensor.ChannelState{
			{Channel: sensor.PH, Status: phStatus, Text: "6.90", Value: 6.9, HasValue: true, Range: rng, HasRange: true, ObservedAt: t0},
			{Channel: sensor.EC, Status: sensor.InRange, Text: "1300 μS/cm", Value: 1300, HasValue: true, Range: sensor.TargetRange{Min: 1200, Max: 1500}, HasRange: true},
			{Channel: sensor.Temp, Status: sensor.Disconnected, Text: "N/A"},
		},
		Changed: changed,
	}
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 80})
	return next.(Model)
}

func TestViewWaitsForData(t *testing.T) {
	m := sized(New(make(chan engine.Snapshot), history.NewStore(10), ""))
	if !strings.Contains(m.View(), "Waiting for sensor data") {
		t.Error("expected waiting message before the first snapshot")
	}
}

func TestSnapshotRendersCards(t *testing.T) {
	h := history.NewStore(10)
	h.Record(sensor.PH, 6.9, t0)
	m := sized(New(make(chan engine.Snapshot), h, "/tmp/data"))

	next, cmd := m.Update(snapshotMsg(snapshot(1, sensor.OutOfRange)))
	if cmd == nil {
		t.Error("monitor should keep waiting for snapshots")
	}
	view := next.(Model).View()
	for _, want := range []string{"pH", "OUT OF RANGE", "Target: 5.80 - 6.20", "DISCONNECTED", "N/A", "2 ALERTS", "REC"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestChangedChannelsFlash(t *testing.T) {
	m := sized(New(make(chan engine.Snapshot), nil, ""))
	next, _ := m.Update(snapshotMsg(snapshot(1, sensor.InRange, sensor.Channels...)))
	m = next.(Model)
	if len(m.flash) != 0 {
		t.Error("first snapshot should not flash")
	}

	next, _ = m.Update(snapshotMsg(snapshot(2, sensor.OutOfRange, sensor.PH)))
	m = next.(Model)
	if _, ok := m.flash[sensor.PH]; !ok || len(m.flash) != 1 {
		t.Fatalf("flash = %v", m.flash)
	}

	next, _ = m.Update(tickMsg(m.now.Add(flashFor + time.Second)))
	if len(next.(Model).flash) != 0 {
		t.Error("flash should expire")
	}
}

func TestPauseHoldsSnapshot(t *testing.T) {
	m := sized(New(make(chan engine.Snapshot), nil, ""))
	next, _ := m.Update(snapshotMsg(snapshot(1, sensor.InRange)))
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	next, _ = next.Update(snapshotMsg(snapshot(2, sensor.OutOfRange)))
	if got := next.(Model).snap.Seq; got != 1 {
		t.Errorf("paused monitor applied seq %d", got)
	}
}

func TestCompactKeepsAlertsExpanded(t *testing.T) {
	m := sized(New(make(chan engine.Snapshot), nil, ""))
	m.compact = true
	st := snapshot(1, sensor.OutOfRange).States

	alert := m.renderCard(st[0], 100)
	calm := m.renderCard(st[1], 100)
	if strings.Count(alert, "\n") <= strings.Count(calm, "\n") {
		t.Error("alerting card should keep its detail rows in compact mode")
	}
}

func TestFeedClosed(t *testing.T) {
	ch := make(chan engine.Snapshot)
	close(ch)
	msg := waitForSnapshot(ch)()
	if _, ok := msg.(feedClosedMsg); !ok {
		t.Fatalf("msg = %T", msg)
	}
	next, _ := sized(New(ch, nil, "")).Update(msg)
	if !strings.Contains(next.(Model).View(), "feed stopped") {
		t.Error("view should report a stopped feed")
	}
}
