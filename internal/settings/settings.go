// Package settings holds the operator settings that target ranges and
// notifications are derived from, and persists them in a bbolt database.
package settings

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/luki/nutetra/internal/sensor"
)

// Notification levels, lowest first.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Profile is a plant preset of setpoints.
type Profile struct {
	Name       string  `json:"name"`
	PHSetpoint float64 `json:"ph_setpoint"`
	PHBuffer   float64 `json:"ph_buffer"`
	ECSetpoint float64 `json:"ec_setpoint"`
	ECBuffer   float64 `json:"ec_buffer"`
	TempMin    float64 `json:"temp_min"`
	TempMax    float64 `json:"temp_max"`
}

// Profiles are the built-in plant presets keyed by id.
var Profiles = map[string]Profile{
	"general":      {Name: "General", PHSetpoint: 6.0, PHBuffer: 0.2, ECSetpoint: 1350, ECBuffer: 150, TempMin: 18, TempMax: 28},
	"leafy_greens": {Name: "Leafy Greens", PHSetpoint: 6.0, PHBuffer: 0.2, ECSetpoint: 1200, ECBuffer: 150, TempMin: 15, TempMax: 24},
	"fruiting":     {Name: "Fruiting", PHSetpoint: 6.0, PHBuffer: 0.2, ECSetpoint: 1800, ECBuffer: 150, TempMin: 20, TempMax: 28},
	"herbs":        {Name: "Herbs", PHSetpoint: 5.8, PHBuffer: 0.2, ECSetpoint: 1200, ECBuffer: 100, TempMin: 18, TempMax: 26},
	"strawberries": {Name: "Strawberries", PHSetpoint: 5.8, PHBuffer: 0.2, ECSetpoint: 1300, ECBuffer: 100, TempMin: 18, TempMax: 26},
}

// ProfileNames returns the profile ids, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for k := range Profiles {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Settings is the persisted operator configuration.
type Settings struct {
	PHSetpoint float64 `json:"ph_setpoint"`
	PHBuffer   float64 `json:"ph_buffer"`
	ECSetpoint float64 `json:"ec_setpoint"`
	ECBuffer   float64 `json:"ec_buffer"`
	TempMin    float64 `json:"temp_min"`
	TempMax    float64 `json:"temp_max"`

	ActiveProfile string `json:"active_plant_profile"`

	NotificationsEnabled bool   `json:"notifications_enabled"`
	NotifyPH             bool   `json:"notify_ph"`
	NotifyEC             bool   `json:"notify_ec"`
	NotifyTemp           bool   `json:"notify_temp"`
	NotificationLevel    string `json:"notification_level"`

	RefreshInterval Duration                   `json:"refresh_interval"`
	CheckIntervals  map[sensor.Channel]Duration `json:"check_intervals"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	s := Settings{
		NotificationsEnabled: true,
		NotifyPH:             true,
		NotifyEC:             true,
		NotifyTemp:           true,
		NotificationLevel:    LevelInfo,
		RefreshInterval:      Duration(10 * time.Second),
		CheckIntervals: map[sensor.Channel]Duration{
			sensor.PH:   Duration(300 * time.Second),
			sensor.EC:   Duration(300 * time.Second),
			sensor.Temp: Duration(300 * time.Second),
		},
	}
	_ = s.ApplyProfile("general")
	return s
}

// ApplyProfile copies a plant profile's setpoints into s.
func (s *Settings) ApplyProfile(name string) error {
	p, ok := Profiles[name]
	if !ok {
		return fmt.Errorf("unknown plant profile %q", name)
	}
	s.PHSetpoint, s.PHBuffer = p.PHSetpoint, p.PHBuffer
	s.ECSetpoint, s.ECBuffer = p.ECSetpoint, p.ECBuffer
	s.TempMin, s.TempMax = p.TempMin, p.TempMax
	s.ActiveProfile = name
	return nil
}

// Ranges derives the target range of every channel. A channel whose
// settings do not describe a valid range is left out, so it is reported
// as connected but unevaluated.
func (s Settings) Ranges() map[sensor.Channel]sensor.TargetRange {
	out := make(map[sensor.Channel]sensor.TargetRange, len(sensor.Channels))
	if s.PHBuffer >= 0 {
		out[sensor.PH] = sensor.TargetRange{Min: s.PHSetpoint - s.PHBuffer, Max: s.PHSetpoint + s.PHBuffer}
	}
	if s.ECBuffer >= 0 {
		out[sensor.EC] = sensor.TargetRange{Min: s.ECSetpoint - s.ECBuffer, Max: s.ECSetpoint + s.ECBuffer}
	}
	if s.TempMin <= s.TempMax {
		out[sensor.Temp] = sensor.TargetRange{Min: s.TempMin, Max: s.TempMax}
	}
	return out
}

// NotifyEnabled reports whether notifications for ch are switched on.
func (s Settings) NotifyEnabled(ch sensor.Channel) bool {
	if !s.NotificationsEnabled {
		return false
	}
	switch ch {
	case sensor.PH:
		return s.NotifyPH
	case sensor.EC:
		return s.NotifyEC
	case sensor.Temp:
		return s.NotifyTemp
	}
	return false
}

// CheckInterval returns the minimum spacing between repeated alerts for ch.
func (s Settings) CheckInterval(ch sensor.Channel) time.Duration {
	if d, ok := s.CheckIntervals[ch]; ok && d > 0 {
		return time.Duration(d)
	}
	return 300 * time.Second
}

// LevelRank orders notification levels. Unknown levels rank as info.
func LevelRank(level string) int {
	switch strings.ToLower(level) {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	}
	return 0
}

// clone copies s so callers can edit the result without touching the
// value held by the Store.
func (s Settings) clone() Settings {
	s.CheckIntervals = maps.Clone(s.CheckIntervals)
	return s
}

// Validate rejects settings that cannot be stored.
func (s Settings) Validate() error {
	if s.PHBuffer < 0 || s.ECBuffer < 0 {
		return fmt.Errorf("buffers must not be negative")
	}
	if s.TempMin > s.TempMax {
		return fmt.Errorf("temp_min %.1f is above temp_max %.1f", s.TempMin, s.TempMax)
	}
	switch s.NotificationLevel {
	case LevelInfo, LevelWarning, LevelCritical:
	default:
		return fmt.Errorf("unknown notification level %q", s.NotificationLevel)
	}
	if s.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative")
	}
	return nil
}
