// Package history keeps a short in-memory window of values per channel
// with min/peak/avg statistics, for sparklines.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/luki/nutetra/internal/sensor"
)

// Point is one recorded value.
type Point struct {
	Value float64
	Time  time.Time
}

// Buffer is a ring buffer of values for one channel.
type Buffer struct {
	Points []Point
	Max    int // capacity
	Min    float64
	Peak   float64
}

// NewBuffer creates a buffer holding at most capacity points.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		Points: make([]Point, 0, capacity),
		Max:    capacity,
		Min:    math.MaxFloat64,
		Peak:   -math.MaxFloat64,
	}
}

// Push appends a value, evicting the oldest one when full.
func (b *Buffer) Push(v float64, t time.Time) {
	p := Point{Value: v, Time: t}
	if len(b.Points) >= b.Max {
		copy(b.Points, b.Points[1:])
		b.Points[len(b.Points)-1] = p
	} else {
		b.Points = append(b.Points, p)
	}

	if v < b.Min {
		b.Min = v
	}
	if v > b.Peak {
		b.Peak = v
	}
}

// Last returns the most recent value, or 0 if empty.
func (b *Buffer) Last() float64 {
	if len(b.Points) == 0 {
		return 0
	}
	return b.Points[len(b.Points)-1].Value
}

// Avg returns the mean of the stored points.
func (b *Buffer) Avg() float64 {
	if len(b.Points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range b.Points {
		sum += p.Value
	}
	return sum / float64(len(b.Points))
}

// LastN returns the last n values.
func (b *Buffer) LastN(n int) []float64 {
	if n <= 0 || len(b.Points) == 0 {
		return nil
	}
	start := len(b.Points) - n
	if start < 0 {
		start = 0
	}
	vals := make([]float64, 0, n)
	for _, p := range b.Points[start:] {
		vals = append(vals, p.Value)
	}
	return vals
}

// LastNPoints returns the last n Points (with timestamps).
func (b *Buffer) LastNPoints(n int) []Point {
	if n <= 0 || len(b.Points) == 0 {
		return nil
	}
	start := len(b.Points) - n
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(b.Points[start:]))
	copy(out, b.Points[start:])
	return out
}

// Store holds one buffer per channel. The engine records into it while the
// monitor reads copies.
type Store struct {
	mu       sync.RWMutex
	data     map[sensor.Channel]*Buffer
	Capacity int
}

// NewStore creates a store with the given per-channel capacity.
func NewStore(capacity int) *Store {
	return &Store{
		data:     make(map[sensor.Channel]*Buffer),
		Capacity: capacity,
	}
}

// Record adds a value for ch.
func (s *Store) Record(ch sensor.Channel, v float64, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(ch, v, t)
}

func (s *Store) record(ch sensor.Channel, v float64, t time.Time) {
	b, ok := s.data[ch]
	if !ok {
		b = NewBuffer(s.Capacity)
		s.data[ch] = b
	}
	b.Push(v, t)
}

// RecordStates records every connected channel of a snapshot.
// Disconnected channels leave a gap rather than a zero.
func (s *Store) RecordStates(states []sensor.ChannelState, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if st.HasValue {
			s.record(st.Channel, st.Value, t)
		}
	}
}

// Get returns a copy of the buffer for ch, or nil.
func (s *Store) Get(ch sensor.Channel) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[ch]
	if !ok {
		return nil
	}
	cp := *b
	cp.Points = append(make([]Point, 0, len(b.Points)), b.Points...)
	return &cp
}
