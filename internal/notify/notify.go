// Package notify raises operator notifications when a channel goes out of
// range or loses its sensor.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/sensor"
	"github.com/luki/nutetra/internal/settings"
)

// Notification is one message handed to the sinks.
type Notification struct {
	ID      string         `json:"id"`
	Channel sensor.Channel `json:"channel"`
	Subject string         `json:"subject"`
	Message string         `json:"message"`
	Level   string         `json:"level"`
	Time    time.Time      `json:"time"`
}

// Sink delivers notifications.
type Sink interface {
	Send(n Notification) error
}

// SettingsSource returns the settings in effect.
type SettingsSource interface {
	Current() settings.Settings
}

// Notifier decides when a status change is worth a notification.
type Notifier struct {
	settings SettingsSource
	sinks    []Sink
	log      zerolog.Logger
	now      func() time.Time
	onSent   func(level string)

	mu       sync.Mutex
	lastSent map[sensor.Channel]time.Time
}

// New creates a notifier delivering to sinks.
func New(src SettingsSource, log zerolog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{
		settings: src,
		sinks:    sinks,
		log:      log,
		now:      time.Now,
		lastSent: make(map[sensor.Channel]time.Time),
	}
}

// OnSent registers a callback run after each delivered notification.
func (n *Notifier) OnSent(fn func(level string)) { n.onSent = fn }

// Observe inspects a snapshot. Only channels listed in changed that moved
// into OutOfRange or Disconnected are considered, and each channel is
// rate limited by its check interval.
func (n *Notifier) Observe(states []sensor.ChannelState, changed []sensor.Channel) []Notification {
	if len(changed) == 0 {
		return nil
	}
	cfg := n.settings.Current()
	isChanged := make(map[sensor.Channel]bool, len(changed))
	for _, ch := range changed {
		isChanged[ch] = true
	}

	var sent []Notification
	for _, s := range states {
		if !isChanged[s.Channel] || !s.Status.Alert() {
			continue
		}
		if !cfg.NotifyEnabled(s.Channel) {
			continue
		}
		note := Build(s)
		if settings.LevelRank(note.Level) < settings.LevelRank(cfg.NotificationLevel) {
			continue
		}
		if !n.due(s.Channel, cfg.CheckInterval(s.Channel)) {
			continue
		}
		if delivered, ok := n.deliver(note); ok {
			n.markSent(s.Channel, delivered.Time)
			sent = append(sent, delivered)
		}
	}
	return sent
}

func (n *Notifier) due(ch sensor.Channel, interval time.Duration) bool {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastSent[ch]
	return !ok || now.Sub(last) >= interval
}

// markSent starts the cooldown. Only delivered notifications count.
func (n *Notifier) markSent(ch sensor.Channel, at time.Time) {
	n.mu.Lock()
	n.lastSent[ch] = at
	n.mu.Unlock()
}

func (n *Notifier) deliver(note Notification) (Notification, bool) {
	note.ID = uuid.NewString()
	note.Time = n.now()
	ok := false
	for _, sink := range n.sinks {
		if err := sink.Send(note); err != nil {
			n.log.Error().Err(err).Str("channel", string(note.Channel)).Msg("notification delivery failed")
			continue
		}
		ok = true
	}
	if ok && n.onSent != nil {
		n.onSent(note.Level)
	}
	return note, ok
}

// Build composes the notification text for an alerting channel.
func Build(s sensor.ChannelState) Notification {
	name := strings.ToUpper(string(s.Channel))
	if s.Status == sensor.Disconnected {
		return Notification{
			Channel: s.Channel,
			Subject: fmt.Sprintf("Alert: %s disconnected", name),
			Message: fmt.Sprintf("Your %s sensor is not reporting a value.", name),
			Level:   settings.LevelCritical,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your %s reading is out of range.\n\n", name)
	fmt.Fprintf(&b, "Current value: %s\n", s.Text)
	fmt.Fprintf(&b, "Acceptable range: %s - %s",
		sensor.Format(s.Channel, s.Range.Min, true), sensor.Format(s.Channel, s.Range.Max, true))
	return Notification{
		Channel: s.Channel,
		Subject: fmt.Sprintf("Alert: %s out of range", name),
		Message: b.String(),
		Level:   settings.LevelWarning,
	}
}

// LogSink writes notifications to the log.
type LogSink struct {
	Log zerolog.Logger
}

func (l LogSink) Send(n Notification) error {
	l.Log.Warn().
		Str("id", n.ID).
		Str("channel", string(n.Channel)).
		Str("level", n.Level).
		Msg(n.Subject)
	return nil
}
