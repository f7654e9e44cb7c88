package sensor

import "time"

// Status is the derived state of a channel for one snapshot.
type Status int

const (
	InRange Status = iota
	// Unevaluated means the channel is connected but has no target range,
	// so no range alert can be raised for it.
	Unevaluated
	OutOfRange
	Disconnected
)

func (s Status) String() string {
	switch s {
	case InRange:
		return "in_range"
	case Unevaluated:
		return "connected"
	case OutOfRange:
		return "out_of_range"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, bool) {
	for _, st := range []Status{InRange, Unevaluated, OutOfRange, Disconnected} {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Alert reports whether the status should be surfaced as an alert.
// Disconnection is never treated as in range.
func (s Status) Alert() bool {
	return s == OutOfRange || s == Disconnected
}

// Connected reports whether the channel had a usable value.
func (s Status) Connected() bool {
	return s != Disconnected
}

// Reconcile computes the status of every known channel. Channels missing
// from readings are Disconnected. The result always holds one entry per
// channel in Channels.
func Reconcile(readings map[Channel]Reading, ranges map[Channel]TargetRange) map[Channel]Status {
	out := make(map[Channel]Status, len(Channels))
	for _, ch := range Channels {
		out[ch] = evaluate(readings[ch], ranges, ch)
	}
	return out
}

func evaluate(r Reading, ranges map[Channel]TargetRange, ch Channel) Status {
	if !r.Connected() {
		return Disconnected
	}
	rng, ok := ranges[ch]
	if !ok {
		return Unevaluated
	}
	if rng.Contains(r.Value) {
		return InRange
	}
	return OutOfRange
}

// ChannelState is the rendering tuple handed to presentation layers.
type ChannelState struct {
	Channel    Channel
	Status     Status
	Text       string
	Value      float64
	HasValue   bool
	Range      TargetRange
	HasRange   bool
	ObservedAt time.Time
}

// Evaluate reconciles the readings and pairs every status with its
// formatted text, in Channels order.
func Evaluate(readings map[Channel]Reading, ranges map[Channel]TargetRange) []ChannelState {
	statuses := Reconcile(readings, ranges)
	states := make([]ChannelState, 0, len(Channels))
	for _, ch := range Channels {
		r := readings[ch]
		rng, hasRange := ranges[ch]
		hasValue := r.Connected()
		states = append(states, ChannelState{
			Channel:    ch,
			Status:     statuses[ch],
			Text:       Format(ch, r.Value, hasValue),
			Value:      r.Value,
			HasValue:   hasValue,
			Range:      rng,
			HasRange:   hasRange,
			ObservedAt: r.ObservedAt,
		})
	}
	return states
}

// Statuses extracts the status map from a slice of states.
func Statuses(states []ChannelState) map[Channel]Status {
	out := make(map[Channel]Status, len(states))
	for _, s := range states {
		out[s.Channel] = s.Status
	}
	return out
}

// Changed returns the channels whose status differs between two maps, in
// Channels order. A nil prev marks every channel as changed.
func Changed(prev, next map[Channel]Status) []Channel {
	var out []Channel
	for _, ch := range Channels {
		if prev == nil {
			out = append(out, ch)
			continue
		}
		p, ok := prev[ch]
		if !ok || p != next[ch] {
			out = append(out, ch)
		}
	}
	return out
}
