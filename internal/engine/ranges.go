package engine

import "github.com/luki/nutetra/internal/sensor"

// FallbackRanges serves ranges from a primary source and fills channels it
// leaves out with ranges recovered from legacy display labels.
type FallbackRanges struct {
	primary RangeSource
	labels  map[sensor.Channel]sensor.TargetRange
}

// NewFallbackRanges parses labels once. Labels that do not parse are
// reported in rejected and leave their channel unconfigured.
func NewFallbackRanges(primary RangeSource, labels map[sensor.Channel]string) (f *FallbackRanges, rejected []sensor.Channel) {
	parsed := sensor.ParseTargetRanges(labels)
	for _, ch := range sensor.Channels {
		if _, ok := labels[ch]; !ok {
			continue
		}
		if _, ok := parsed[ch]; !ok {
			rejected = append(rejected, ch)
		}
	}
	return &FallbackRanges{primary: primary, labels: parsed}, rejected
}

func (f *FallbackRanges) Ranges() map[sensor.Channel]sensor.TargetRange {
	out := make(map[sensor.Channel]sensor.TargetRange, len(sensor.Channels))
	if f.primary != nil {
		for ch, r := range f.primary.Ranges() {
			out[ch] = r
		}
	}
	for ch, r := range f.labels {
		if _, ok := out[ch]; !ok {
			out[ch] = r
		}
	}
	return out
}
