package feed

import (
	"github.com/luki/nutetra/internal/sensor"
)

// Tracker holds the newest reading per channel. It is owned by the queue
// consumer and is not safe for concurrent use.
type Tracker struct {
	current map[sensor.Channel]entry
	Stale   int // readings dropped because a newer one was already held
}

type entry struct {
	reading sensor.Reading
	seq     uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{current: make(map[sensor.Channel]entry)}
}

// Apply merges an update and reports how many of its readings were
// discarded as stale.
func (t *Tracker) Apply(u Update) int {
	dropped := 0
	for _, ch := range sensor.Channels {
		r, ok := u.Readings[ch]
		if !ok {
			if !u.Full {
				continue
			}
			r = sensor.Reading{Channel: ch}
		}
		r.Channel = ch
		if r.ObservedAt.IsZero() {
			r.ObservedAt = u.ObservedAt
		}
		if t.isStale(ch, r, u.Seq) {
			dropped++
			continue
		}
		t.current[ch] = entry{reading: r, seq: u.Seq}
	}
	t.Stale += dropped
	return dropped
}

func (t *Tracker) isStale(ch sensor.Channel, r sensor.Reading, seq uint64) bool {
	cur, ok := t.current[ch]
	if !ok {
		return false
	}
	if r.ObservedAt.Before(cur.reading.ObservedAt) {
		return true
	}
	return r.ObservedAt.Equal(cur.reading.ObservedAt) && seq < cur.seq
}

// Readings returns a copy of the held readings.
func (t *Tracker) Readings() map[sensor.Channel]sensor.Reading {
	out := make(map[sensor.Channel]sensor.Reading, len(t.current))
	for ch, e := range t.current {
		out[ch] = e.reading
	}
	return out
}
