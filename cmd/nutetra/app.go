package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/config"
	"github.com/luki/nutetra/internal/engine"
	"github.com/luki/nutetra/internal/feed"
	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/metrics"
	"github.com/luki/nutetra/internal/notify"
	"github.com/luki/nutetra/internal/settings"
	"github.com/luki/nutetra/internal/source"
	"github.com/luki/nutetra/internal/store"
)

// historySize is ten minutes of points at a one second push rate.
const historySize = 600

// app holds every wired component of one dashboard process.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry

	queue    *feed.Queue
	engine   *engine.Engine
	history  *history.Store
	settings *settings.Store
	disk     *store.DiskStore
	influx   *store.InfluxStore
	poller   *source.Poller
	push     *source.Subscriber

	wg sync.WaitGroup
}

// build opens storage, connects transports and wires the engine. The MQTT
// connection is tied to ctx.
func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Store.Dir, 0755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		queue:    feed.NewQueue(cfg.Queue.Size),
		history:  history.NewStore(historySize),
	}
	m := metrics.New(a.registry)

	var err error
	if a.settings, err = settings.Open(cfg.Settings.DB); err != nil {
		return nil, err
	}
	if a.disk, err = store.New(cfg.Store.Dir); err != nil {
		a.Close()
		return nil, err
	}
	sinks := []store.Sink{a.disk}
	if cfg.InfluxEnabled() {
		a.influx = store.NewInfluxStore(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		if err := a.influx.Health(ctx); err != nil {
			log.Warn().Err(err).Str("url", cfg.Influx.URL).Msg("influxdb not healthy, writes may fail")
		}
		sinks = append(sinks, a.influx)
	}

	noteSinks := []notify.Sink{notify.LogSink{Log: log.With().Str("component", "notify").Logger()}}

	if cfg.MQTTEnabled() {
		client, err := source.Connect(ctx, source.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Retries:  cfg.MQTT.Retries,
		}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.push = source.NewSubscriber(client, cfg.MQTT.Topic, cfg.MQTT.DedupTTL, a.queue, log)
		noteSinks = append(noteSinks, notify.NewMQTTSink(client, cfg.MQTT.NotifyTopic))
	}

	if cfg.PollEnabled() {
		a.poller = source.NewPoller(cfg.Poll.URL, cfg.Poll.Timeout, source.BreakerSettings{
			Failures: cfg.Poll.Breaker.Failures,
			Open:     cfg.Poll.Breaker.Open,
			Interval: cfg.Poll.Breaker.Interval,
		}, a.queue, log)
		a.poller.OnError(func(error) { m.IncPollError() })
	}

	if a.poller == nil && a.push == nil {
		log.Warn().Msg("neither poll.url nor mqtt.broker is set, no readings will arrive")
	}

	notifier := notify.New(a.settings, log.With().Str("component", "notify").Logger(), noteSinks...)
	notifier.OnSent(m.IncNotification)

	var ranges engine.RangeSource = a.settings
	if labels := cfg.RangeLabels(); len(labels) > 0 {
		fb, rejected := engine.NewFallbackRanges(a.settings, labels)
		for _, ch := range rejected {
			log.Warn().Str("channel", string(ch)).Str("label", labels[ch]).Msg("range label not understood, channel stays unconfigured")
		}
		ranges = fb
	}

	a.engine = engine.New(engine.Options{
		Ranges:   ranges,
		Metrics:  m,
		History:  a.history,
		Sinks:    sinks,
		Notifier: notifier,
		Log:      log.With().Str("component", "engine").Logger(),
	})
	return a, nil
}

// start launches the consumer and the producers. They stop when ctx is
// done; wait blocks until they have.
func (a *app) start(ctx context.Context) {
	a.goRun(func() { a.engine.Run(ctx, a.queue) })
	if a.poller != nil {
		a.goRun(func() {
			if err := a.poller.Run(ctx, a.cfg.Poll.Schedule); err != nil {
				a.log.Error().Err(err).Msg("poller stopped")
			}
		})
	}
	if a.push != nil {
		a.goRun(func() {
			if err := a.push.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("push subscriber stopped")
			}
		})
	}
}

func (a *app) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *app) wait() { a.wg.Wait() }

// Close releases storage. Call after wait.
func (a *app) Close() {
	if a.disk != nil {
		a.disk.Close()
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing settings db")
		}
	}
}
