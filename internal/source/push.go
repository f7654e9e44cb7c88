package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/feed"
	"github.com/luki/nutetra/internal/sensor"
)

// Subscriber turns MQTT sensor_update messages into partial updates.
type Subscriber struct {
	client mqtt.Client
	topic  string
	out    Publisher
	dedup  *Deduper
	log    zerolog.Logger
	now    func() time.Time
}

// NewSubscriber creates a subscriber on topic. Deliveries repeated within
// dedupTTL are dropped.
func NewSubscriber(client mqtt.Client, topic string, dedupTTL time.Duration, out Publisher, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		topic:  topic,
		out:    out,
		dedup:  NewDeduper(dedupTTL, 10000),
		log:    log.With().Str("source", string(feed.SourcePush)).Str("topic", topic).Logger(),
		now:    time.Now,
	}
}

// Run subscribes and blocks until ctx is done, then unsubscribes.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(ctx, msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.log.Info().Msg("subscribed")

	<-ctx.Done()
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	return nil
}

func (s *Subscriber) handle(ctx context.Context, payload []byte) {
	u, key, err := s.decode(payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping push message")
		return
	}
	if !s.dedup.ShouldProcess(key) {
		s.log.Debug().Str("key", key).Msg("duplicate push message")
		return
	}
	if err := s.out.Publish(ctx, u); err != nil {
		s.log.Warn().Err(err).Msg("push update not queued")
	}
}

// sensorUpdate is the single-channel push event.
type sensorUpdate struct {
	SensorType string          `json:"sensor_type"`
	Value      json.RawMessage `json:"value"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// decode accepts either a sensor_update event or a full reading batch.
// The returned key identifies the delivery for deduplication.
func (s *Subscriber) decode(payload []byte) (feed.Update, string, error) {
	var ev sensorUpdate
	if err := json.Unmarshal(payload, &ev); err != nil {
		return feed.Update{}, "", fmt.Errorf("invalid json: %w", err)
	}

	if ev.SensorType == "" {
		readings, err := sensor.DecodeBatch(payload, s.now())
		if err != nil {
			return feed.Update{}, "", err
		}
		if len(readings) == 0 {
			return feed.Update{}, "", fmt.Errorf("no known channels in payload")
		}
		return feed.Update{Source: feed.SourcePush, ObservedAt: s.now(), Readings: readings}, "", nil
	}

	ch, ok := sensor.ParseChannel(ev.SensorType)
	if !ok {
		return feed.Update{}, "", fmt.Errorf("unknown sensor_type %q", ev.SensorType)
	}
	at := s.now()
	if ts, err := parseTime(ev.Timestamp); err != nil {
		s.log.Debug().Err(err).Msg("invalid timestamp, using now")
	} else if !ts.IsZero() {
		at = ts
	}

	r := sensor.Reading{Channel: ch, ObservedAt: at}
	r.Value, r.HasValue = sensor.DecodeValue(ev.Value)

	key := fmt.Sprintf("%s|%d|%s", ch, at.UnixNano(), strings.TrimSpace(string(ev.Value)))
	return feed.Update{
		Source:     feed.SourcePush,
		ObservedAt: at,
		Readings:   map[sensor.Channel]sensor.Reading{ch: r},
	}, key, nil
}

// parseTime accepts an RFC3339 string or unix seconds, as a JSON string or
// number. An absent timestamp returns the zero time.
func parseTime(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor unix seconds", s)
	}
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)), nil
}
