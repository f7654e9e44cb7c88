package sensor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// missingText is shown for channels without a value.
const missingText = "N/A"

// decimals returns the fixed display precision of a channel.
func decimals(ch Channel) int {
	switch ch {
	case PH:
		return 2
	case EC:
		return 0
	case Temp:
		return 1
	}
	return 1
}

// Format renders a channel value for display. It never affects range
// comparison, which always uses the raw value.
func Format(ch Channel, value float64, hasValue bool) string {
	if !hasValue {
		return missingText
	}
	return withUnit(ch, formatNumber(ch, value))
}

func formatNumber(ch Channel, v float64) string {
	return strconv.FormatFloat(v, 'f', decimals(ch), 64)
}

func withUnit(ch Channel, s string) string {
	if u := Unit(ch); u != "" {
		return s + " " + u
	}
	return s
}

// FormatTargetRange renders a range as the label ParseTargetRange reads
// back, e.g. "Target: 5.50 - 6.50".
func FormatTargetRange(ch Channel, r TargetRange) string {
	return withUnit(ch, fmt.Sprintf("Target: %s - %s", formatNumber(ch, r.Min), formatNumber(ch, r.Max)))
}

var (
	rangePattern  = regexp.MustCompile(`(-?(?:\d+(?:\.\d+)?|\.\d+))\s*(?:-|–|to)\s*(-?(?:\d+(?:\.\d+)?|\.\d+))`)
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)
)

// ParseTargetRange recovers a range from label text such as
// "Target: 5.5 - 6.5". It is a lossy best-effort parse kept for labels that
// arrive without structured configuration: text with more than one range,
// stray numbers, or min above max is rejected rather than guessed at.
func ParseTargetRange(text string) (TargetRange, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TargetRange{}, false
	}
	if len(numberPattern.FindAllString(text, -1)) != 2 {
		return TargetRange{}, false
	}
	m := rangePattern.FindAllStringSubmatch(text, -1)
	if len(m) != 1 {
		return TargetRange{}, false
	}
	lo, err := strconv.ParseFloat(m[0][1], 64)
	if err != nil {
		return TargetRange{}, false
	}
	hi, err := strconv.ParseFloat(m[0][2], 64)
	if err != nil {
		return TargetRange{}, false
	}
	if lo > hi {
		return TargetRange{}, false
	}
	return TargetRange{Min: lo, Max: hi}, true
}

// ParseTargetRanges parses a label per channel and keeps only the ones
// that parse. Channels whose label is rejected stay unconfigured.
func ParseTargetRanges(labels map[Channel]string) map[Channel]TargetRange {
	out := make(map[Channel]TargetRange, len(labels))
	for ch, text := range labels {
		if r, ok := ParseTargetRange(text); ok {
			out[ch] = r
		}
	}
	return out
}
