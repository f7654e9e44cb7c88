package settings

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that encodes as "10s" in JSON and also
// accepts a plain number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration: expected string or seconds, got %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}
