package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/sensor"
	"github.com/luki/nutetra/internal/settings"
)

type staticSettings struct{ s settings.Settings }

func (s *staticSettings) Current() settings.Settings { return s.s }

type recordSink struct {
	got []Notification
	err error
}

func (r *recordSink) Send(n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, n)
	return nil
}

var phHigh = sensor.ChannelState{
	Channel:  sensor.PH,
	Status:   sensor.OutOfRange,
	Text:     "7.00",
	Value:    7,
	HasValue: true,
	Range:    sensor.TargetRange{Min: 5.8, Max: 6.2},
	HasRange: true,
}

func newTestNotifier(s settings.Settings, sinks ...Sink) (*Notifier, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := New(&staticSettings{s}, zerolog.Nop(), sinks...)
	n.now = func() time.Time { return now }
	return n, &now
}

func TestBuildOutOfRange(t *testing.T) {
	n := Build(phHigh)
	if n.Subject != "Alert: PH out of range" {
		t.Errorf("subject = %q", n.Subject)
	}
	for _, want := range []string{"Your PH reading is out of range.", "Current value: 7.00", "Acceptable range: 5.80 - 6.20"} {
		if !strings.Contains(n.Message, want) {
			t.Errorf("message %q missing %q", n.Message, want)
		}
	}
	if n.Level != settings.LevelWarning {
		t.Errorf("level = %q", n.Level)
	}

	ec := Build(sensor.ChannelState{
		Channel: sensor.EC, Status: sensor.OutOfRange, Text: "1700 μS/cm",
		Range: sensor.TargetRange{Min: 1200, Max: 1500}, HasRange: true,
	})
	if !strings.Contains(ec.Message, "Acceptable range: 1200 μS/cm - 1500 μS/cm") {
		t.Errorf("ec message: %q", ec.Message)
	}

	d := Build(sensor.ChannelState{Channel: sensor.Temp, Status: sensor.Disconnected})
	if d.Subject != "Alert: TEMP disconnected" || d.Level != settings.LevelCritical {
		t.Errorf("disconnect notification: %+v", d)
	}
}

func TestObserveOnlyOnTransition(t *testing.T) {
	sink := &recordSink{}
	n, _ := newTestNotifier(settings.Defaults(), sink)
	var levels []string
	n.OnSent(func(level string) { levels = append(levels, level) })

	inRange := sensor.ChannelState{Channel: sensor.EC, Status: sensor.InRange, HasValue: true}
	states := []sensor.ChannelState{phHigh, inRange}

	if got := n.Observe(states, nil); len(got) != 0 {
		t.Errorf("no changes should send nothing, got %d", len(got))
	}
	got := n.Observe(states, []sensor.Channel{sensor.PH, sensor.EC})
	if len(got) != 1 || got[0].Channel != sensor.PH {
		t.Fatalf("expected one ph notification, got %+v", got)
	}
	if got[0].ID == "" || got[0].Time.IsZero() {
		t.Errorf("delivered notification should carry id and time: %+v", got[0])
	}
	if len(sink.got) != 1 || len(levels) != 1 || levels[0] != settings.LevelWarning {
		t.Errorf("sink=%d levels=%v", len(sink.got), levels)
	}
}

func TestObserveCooldown(t *testing.T) {
	sink := &recordSink{}
	n, now := newTestNotifier(settings.Defaults(), sink)
	changed := []sensor.Channel{sensor.PH}

	n.Observe([]sensor.ChannelState{phHigh}, changed)
	*now = now.Add(time.Minute)
	n.Observe([]sensor.ChannelState{phHigh}, changed)
	if len(sink.got) != 1 {
		t.Fatalf("second alert inside check interval should be suppressed, got %d", len(sink.got))
	}

	*now = now.Add(5 * time.Minute)
	n.Observe([]sensor.ChannelState{phHigh}, changed)
	if len(sink.got) != 2 {
		t.Fatalf("alert after check interval should be sent, got %d", len(sink.got))
	}
}

func TestObserveFilters(t *testing.T) {
	disc := sensor.ChannelState{Channel: sensor.EC, Status: sensor.Disconnected}
	states := []sensor.ChannelState{phHigh, disc}
	changed := []sensor.Channel{sensor.PH, sensor.EC}

	tests := []struct {
		name  string
		edit  func(*settings.Settings)
		wantN int
	}{
		{"all on", func(*settings.Settings) {}, 2},
		{"global off", func(s *settings.Settings) { s.NotificationsEnabled = false }, 0},
		{"ph off", func(s *settings.Settings) { s.NotifyPH = false }, 1},
		{"critical only", func(s *settings.Settings) { s.NotificationLevel = settings.LevelCritical }, 1},
		{"warning and up", func(s *settings.Settings) { s.NotificationLevel = settings.LevelWarning }, 2},
	}
	for _, tt := range tests {
		s := settings.Defaults()
		tt.edit(&s)
		sink := &recordSink{}
		n, _ := newTestNotifier(s, sink)
		n.Observe(states, changed)
		if len(sink.got) != tt.wantN {
			t.Errorf("%s: got %d notifications, want %d", tt.name, len(sink.got), tt.wantN)
		}
	}
}

func TestObserveSinkFailure(t *testing.T) {
	bad := &recordSink{err: errors.New("smtp down")}
	n, _ := newTestNotifier(settings.Defaults(), bad)
	if got := n.Observe([]sensor.ChannelState{phHigh}, []sensor.Channel{sensor.PH}); len(got) != 0 {
		t.Errorf("failed delivery should not count as sent: %+v", got)
	}
}

func TestFailedDeliveryDoesNotStartCooldown(t *testing.T) {
	sink := &recordSink{err: errors.New("broker down")}
	n, now := newTestNotifier(settings.Defaults(), sink)
	changed := []sensor.Channel{sensor.PH}

	n.Observe([]sensor.ChannelState{phHigh}, changed)
	sink.err = nil
	*now = now.Add(time.Minute)
	if got := n.Observe([]sensor.ChannelState{phHigh}, changed); len(got) != 1 {
		t.Fatalf("retry after a failed delivery should be sent, got %d", len(got))
	}

	*now = now.Add(time.Minute)
	if got := n.Observe([]sensor.ChannelState{phHigh}, changed); len(got) != 0 {
		t.Errorf("cooldown should run from the delivered alert, got %d", len(got))
	}
}

// fakeClient implements only Publish; other methods panic if reached.
type fakeClient struct {
	mqtt.Client
	topic   string
	payload []byte
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.payload = payload.([]byte)
	return doneToken{}
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

func TestMQTTSink(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTSink(client, "nutetra/notifications")

	note := Build(phHigh)
	note.ID = "abc"
	if err := sink.Send(note); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.topic != "nutetra/notifications" {
		t.Errorf("topic = %q", client.topic)
	}
	var decoded Notification
	if err := json.Unmarshal(client.payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.ID != "abc" || decoded.Channel != sensor.PH || decoded.Level != settings.LevelWarning {
		t.Errorf("decoded: %+v", decoded)
	}
}
