package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/luki/nutetra/internal/sensor"
)

var testStates = []sensor.ChannelState{
	{Channel: sensor.PH, Status: sensor.OutOfRange, Value: 7.0, HasValue: true, Range: sensor.TargetRange{Min: 5.8, Max: 6.2}, HasRange: true},
	{Channel: sensor.EC, Status: sensor.Disconnected},
	{Channel: sensor.Temp, Status: sensor.Unevaluated, Value: 22.4, HasValue: true},
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	ds, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ds.Close()

	now := time.Date(2026, 2, 21, 14, 30, 0, 0, time.Local)
	if err := ds.Write(testStates, now); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ds.Write(testStates[:1], now.Add(time.Second)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ds.Close()

	loaded, err := LoadFile(filepath.Join(dir, "2026-02-21.csv"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(loaded) != 4 {
		t.Fatalf("expected 4 readings, got %d", len(loaded))
	}

	ph := loaded[0]
	if ph.Channel != sensor.PH || ph.Value != 7.0 || !ph.HasValue || ph.Status != "out_of_range" {
		t.Errorf("ph row: %+v", ph)
	}
	if !ph.HasRange || ph.Min != 5.8 || ph.Max != 6.2 {
		t.Errorf("ph range: %+v", ph)
	}
	if ec := loaded[1]; ec.HasValue || ec.Status != "disconnected" {
		t.Errorf("ec row: %+v", ec)
	}
	if temp := loaded[2]; temp.HasRange || temp.Value != 22.4 {
		t.Errorf("temp row: %+v", temp)
	}
}

func TestDiskStoreRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	ds, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	day1 := time.Date(2026, 2, 21, 23, 59, 59, 0, time.Local)
	day2 := day1.Add(2 * time.Second)
	if err := ds.Write(testStates, day1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ds.Write(testStates, day2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ds.Close()

	// Stray files are not days.
	os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0644)

	days, err := ListDays(dir)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) != 2 || days[0] != "2026-02-22" || days[1] != "2026-02-21" {
		t.Errorf("ListDays = %v", days)
	}

	rows, err := LoadRange(dir, day1.Add(-time.Hour), day2)
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("LoadRange: expected 6 rows, got %d", len(rows))
	}
	if !rows[0].Time.Equal(day1) || !rows[5].Time.Equal(day2) {
		t.Errorf("rows out of order: first %v last %v", rows[0].Time, rows[5].Time)
	}

	rows, err = LoadRange(dir, day2, day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("LoadRange(day2): expected 3 rows, got %d", len(rows))
	}
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1h", time.Hour},
		{"6h", 6 * time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"", 24 * time.Hour},
		{"1y", 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := ParseTimeframe(tt.in); got != tt.want {
			t.Errorf("ParseTimeframe(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInfluxPoints(t *testing.T) {
	now := time.Date(2026, 2, 21, 14, 30, 0, 0, time.UTC)
	pts := Points(testStates, now)
	if len(pts) != 2 {
		t.Fatalf("expected 2 points (ec disconnected), got %d", len(pts))
	}

	line := write.PointToLineProtocol(pts[0], time.Second)
	for _, want := range []string{"sensor_reading", "channel=ph", "status=out_of_range", "value=7", "min=5.8", "max=6.2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if line := write.PointToLineProtocol(pts[1], time.Second); strings.Contains(line, "min=") {
		t.Errorf("unevaluated channel should carry no range: %q", line)
	}
}
