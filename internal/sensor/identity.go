package sensor

import "strings"

// Channel is the stable key of one monitored sensor quantity.
type Channel string

const (
	PH   Channel = "ph"
	EC   Channel = "ec"
	Temp Channel = "temp"
)

// Channels lists every known channel in display order.
var Channels = []Channel{PH, EC, Temp}

// channelAliases maps the keys seen on the wire to channels. Keys must
// match in full: "phosphate" is a different sensor, not pH.
var channelAliases = map[string]Channel{
	"temperature":  Temp,
	"water_temp":   Temp,
	"temp":         Temp,
	"conductivity": EC,
	"ec":           EC,
	"acidity":      PH,
	"ph":           PH,
}

// ParseChannel resolves a wire key (e.g. "ph", "Temperature", "water_temp")
// to a known channel. Matching is case-insensitive and exact.
func ParseChannel(key string) (Channel, bool) {
	ch, ok := channelAliases[strings.ToLower(strings.TrimSpace(key))]
	return ch, ok
}

// FriendlyName returns a human-readable name for a channel.
func FriendlyName(ch Channel) string {
	switch ch {
	case PH:
		return "pH"
	case EC:
		return "EC"
	case Temp:
		return "Temperature"
	}
	return "Sensor"
}

// Unit returns the display unit suffix for a channel, or "" if unitless.
func Unit(ch Channel) string {
	switch ch {
	case EC:
		return "μS/cm"
	case Temp:
		return "°C"
	}
	return ""
}
