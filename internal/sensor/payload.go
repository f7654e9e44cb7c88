package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DecodeBatch decodes a reading batch of the form
//
//	{"ph": 6.1, "ec": null, "temp": 22.4, "sensor_status": {"ec": "disconnected"}}
//
// Every channel named by a value key or by sensor_status gets a Reading
// stamped with observedAt. Unknown keys are ignored. A value that is not a
// number (or numeric string) is treated as null rather than failing the
// whole batch.
func DecodeBatch(data []byte, observedAt time.Time) (map[Channel]Reading, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	out := make(map[Channel]Reading)
	for key, msg := range raw {
		if key == "sensor_status" {
			continue
		}
		ch, ok := ParseChannel(key)
		if !ok {
			continue
		}
		r := Reading{Channel: ch, ObservedAt: observedAt}
		r.Value, r.HasValue = DecodeValue(msg)
		out[ch] = r
	}

	// A malformed sensor_status is ignored as a whole, and a malformed
	// entry only for its own channel, so the values above still count.
	if msg, ok := raw["sensor_status"]; ok && !isNull(msg) {
		var status map[string]json.RawMessage
		if err := json.Unmarshal(msg, &status); err != nil {
			status = nil
		}
		for key, entry := range status {
			ch, ok := ParseChannel(key)
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(entry, &s); err != nil {
				continue
			}
			r, seen := out[ch]
			if !seen {
				r = Reading{Channel: ch, ObservedAt: observedAt}
			}
			if strings.EqualFold(strings.TrimSpace(s), "disconnected") {
				r.Disconnected = true
			}
			out[ch] = r
		}
	}
	return out, nil
}

// DecodeValue decodes a JSON number or numeric string. Null, absent,
// non-numeric and non-finite ("NaN", "Inf") values report false.
func DecodeValue(msg json.RawMessage) (float64, bool) {
	if isNull(msg) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isNull(msg json.RawMessage) bool {
	return len(bytes.TrimSpace(msg)) == 0 || string(bytes.TrimSpace(msg)) == "null"
}
