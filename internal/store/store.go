// Package store persists reconciled sensor states. DiskStore writes daily
// CSV files under the data directory; InfluxStore writes points to
// InfluxDB. Both implement Sink.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luki/nutetra/internal/sensor"
)

const (
	timeLayout = "2006-01-02T15:04:05"
	fileLayout = "2006-01-02"
)

var header = []string{"time", "channel", "value", "status", "min", "max"}

// Sink receives every reconciled snapshot.
type Sink interface {
	Write(states []sensor.ChannelState, t time.Time) error
	Close()
}

// DiskStore writes one CSV file per day, named YYYY-MM-DD.csv:
//
//	time,channel,value,status,min,max
//
// value is empty for disconnected channels and min/max are empty when no
// range was configured.
type DiskStore struct {
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string
}

// StoredReading is a single row from a CSV log file.
type StoredReading struct {
	Time     time.Time
	Channel  sensor.Channel
	Value    float64
	HasValue bool
	Status   string
	Min      float64
	Max      float64
	HasRange bool
}

// New creates a disk store in dir, creating the directory if needed.
func New(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the data directory.
func (d *DiskStore) Dir() string { return d.dir }

// Write appends a snapshot to the CSV file for t's day.
func (d *DiskStore) Write(states []sensor.ChannelState, t time.Time) error {
	t = t.Local()
	dateStr := t.Format(fileLayout)

	if d.curDate != dateStr || d.current == nil {
		d.Close()
		path := filepath.Join(d.dir, dateStr+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		d.current = f
		d.writer = csv.NewWriter(f)
		d.curDate = dateStr

		info, err := f.Stat()
		if err == nil && info.Size() == 0 {
			d.writer.Write(header)
		}
	}

	ts := t.Format(timeLayout)
	for _, s := range states {
		row := []string{ts, string(s.Channel), "", s.Status.String(), "", ""}
		if s.HasValue {
			row[2] = strconv.FormatFloat(s.Value, 'f', -1, 64)
		}
		if s.HasRange {
			row[4] = strconv.FormatFloat(s.Range.Min, 'f', -1, 64)
			row[5] = strconv.FormatFloat(s.Range.Max, 'f', -1, 64)
		}
		d.writer.Write(row)
	}
	d.writer.Flush()
	return d.writer.Error()
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() {
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.current != nil {
		d.current.Close()
		d.current = nil
	}
}

// ListDays returns available log dates in dir (newest first).
func ListDays(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i].Name()
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		day := strings.TrimSuffix(name, ".csv")
		if _, err := time.Parse(fileLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	return days, nil
}

// LoadDay reads all rows of one day's CSV file in dir.
func LoadDay(dir, day string) ([]StoredReading, error) {
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads all rows from a CSV file. Malformed rows are skipped.
func LoadFile(path string) ([]StoredReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var readings []StoredReading
	for i, row := range records {
		if i == 0 && len(row) > 0 && row[0] == "time" {
			continue
		}
		if len(row) < len(header) {
			continue
		}

		t, err := time.ParseInLocation(timeLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		ch, ok := sensor.ParseChannel(row[1])
		if !ok {
			continue
		}

		r := StoredReading{Time: t, Channel: ch, Status: row[3]}
		if v, err := strconv.ParseFloat(row[2], 64); err == nil {
			r.Value, r.HasValue = v, true
		}
		lo, errLo := strconv.ParseFloat(row[4], 64)
		hi, errHi := strconv.ParseFloat(row[5], 64)
		if errLo == nil && errHi == nil {
			r.Min, r.Max, r.HasRange = lo, hi, true
		}
		readings = append(readings, r)
	}

	return readings, nil
}

// LoadRange reads every row in dir with from <= time <= to, oldest first.
func LoadRange(dir string, from, to time.Time) ([]StoredReading, error) {
	days, err := ListDays(dir)
	if err != nil {
		return nil, err
	}

	first := from.Local().Format(fileLayout)
	last := to.Local().Format(fileLayout)

	var out []StoredReading
	for _, day := range days {
		if day < first || day > last {
			continue
		}
		rows, err := LoadDay(dir, day)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", day, err)
		}
		for _, r := range rows {
			if r.Time.Before(from) || r.Time.After(to) {
				continue
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// ParseTimeframe maps the history timeframes 1h, 6h, 24h and 7d to a
// duration. Anything else falls back to 24h.
func ParseTimeframe(s string) time.Duration {
	switch s {
	case "1h":
		return time.Hour
	case "6h":
		return 6 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}
