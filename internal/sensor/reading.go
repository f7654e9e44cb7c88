// Package sensor reconciles live pH, EC and temperature readings against
// operator-configured target ranges. It decides for every channel whether
// the displayed value is in range, out of range, disconnected, or cannot be
// evaluated, and produces the display text for it.
package sensor

import "time"

// Reading is the latest observation for one channel.
type Reading struct {
	Channel      Channel
	Value        float64
	HasValue     bool // false when the transport reported null or nothing
	Disconnected bool // explicit sensor_status "disconnected"
	ObservedAt   time.Time
}

// Connected reports whether the reading carries a usable value.
func (r Reading) Connected() bool {
	return r.HasValue && !r.Disconnected
}

// TargetRange is an inclusive [Min, Max] band of acceptable values.
type TargetRange struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range, bounds included.
func (r TargetRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
