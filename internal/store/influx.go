package store

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/luki/nutetra/internal/sensor"
)

const measurement = "sensor_reading"

// InfluxStore writes connected channel values to InfluxDB.
type InfluxStore struct {
	client  influxdb2.Client
	api     api.WriteAPIBlocking
	timeout time.Duration
}

// NewInfluxStore creates a blocking write client. Call Close when done.
func NewInfluxStore(url, token, org, bucket string) *InfluxStore {
	client := influxdb2.NewClient(url, token)
	return &InfluxStore{
		client:  client,
		api:     client.WriteAPIBlocking(org, bucket),
		timeout: 5 * time.Second,
	}
}

// Points converts a snapshot into Influx points. Disconnected channels
// carry no value and produce no point.
func Points(states []sensor.ChannelState, t time.Time) []*write.Point {
	var pts []*write.Point
	for _, s := range states {
		if !s.HasValue {
			continue
		}
		p := influxdb2.NewPointWithMeasurement(measurement).
			AddTag("channel", string(s.Channel)).
			AddTag("status", s.Status.String()).
			AddField("value", s.Value).
			SetTime(t)
		if s.HasRange {
			p.AddField("min", s.Range.Min).AddField("max", s.Range.Max)
		}
		pts = append(pts, p)
	}
	return pts
}

// Write stores one snapshot.
func (s *InfluxStore) Write(states []sensor.ChannelState, t time.Time) error {
	pts := Points(states, t)
	if len(pts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.api.WritePoint(ctx, pts...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Health checks that InfluxDB is reachable and the token is valid.
func (s *InfluxStore) Health(ctx context.Context) error {
	_, err := s.client.Health(ctx)
	return err
}

// Close releases the client.
func (s *InfluxStore) Close() {
	s.client.Close()
}
