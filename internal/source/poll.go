// Package source implements the two reading producers: a scheduled poll
// of the controller's read-now endpoint and an MQTT push subscription.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/luki/nutetra/internal/feed"
	"github.com/luki/nutetra/internal/sensor"
)

// Publisher accepts updates for the single consumer.
type Publisher interface {
	Publish(ctx context.Context, u feed.Update) error
}

// BreakerSettings configures when the poller stops calling the controller.
type BreakerSettings struct {
	Failures int           // consecutive failures that open the breaker
	Open     time.Duration // how long it stays open
	Interval time.Duration // closed-state counter reset period
}

// Poller fetches full reading batches from the controller.
type Poller struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	out     Publisher
	log     zerolog.Logger
	onError func(error)
	now     func() time.Time
}

// NewPoller creates a poller posting to url.
func NewPoller(url string, timeout time.Duration, bs BreakerSettings, out Publisher, log zerolog.Logger) *Poller {
	p := &Poller{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		out:    out,
		log:    log.With().Str("source", string(feed.SourcePoll)).Logger(),
		now:    time.Now,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "controller-poll",
		Interval: bs.Interval,
		Timeout:  bs.Open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(bs.Failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("poll breaker state change")
		},
	})
	return p
}

// OnError registers a callback for failed polls.
func (p *Poller) OnError(fn func(error)) { p.onError = fn }

// BreakerState reports the breaker state ("closed", "open", "half-open").
func (p *Poller) BreakerState() string { return p.breaker.State().String() }

type readNowResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Fetch performs one poll through the circuit breaker and returns the
// decoded batch without publishing it.
func (p *Poller) Fetch(ctx context.Context) (map[sensor.Channel]sensor.Reading, time.Time, error) {
	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	b := res.(batch)
	return b.readings, b.at, nil
}

type batch struct {
	readings map[sensor.Channel]sensor.Reading
	at       time.Time
}

func (p *Poller) fetch(ctx context.Context) (batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(nil))
	if err != nil {
		return batch{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return batch{}, fmt.Errorf("read_now request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return batch{}, fmt.Errorf("read_now body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return batch{}, fmt.Errorf("read_now status %d", resp.StatusCode)
	}

	var r readNowResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return batch{}, fmt.Errorf("read_now decode: %w", err)
	}
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "success=false"
		}
		return batch{}, fmt.Errorf("read_now rejected: %s", msg)
	}

	at := p.now()
	readings, err := sensor.DecodeBatch(r.Data, at)
	if err != nil {
		return batch{}, err
	}
	return batch{readings: readings, at: at}, nil
}

// Poll fetches one batch and publishes it as a full update.
func (p *Poller) Poll(ctx context.Context) error {
	readings, at, err := p.Fetch(ctx)
	if err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			p.log.Debug().Msg("poll skipped, breaker open")
		} else {
			p.log.Warn().Err(err).Msg("poll failed")
		}
		return err
	}
	return p.out.Publish(ctx, feed.Update{
		Source:     feed.SourcePoll,
		ObservedAt: at,
		Readings:   readings,
		Full:       true,
	})
}

// Run polls once immediately and then on the cron schedule (for example
// "@every 10s") until ctx is done.
func (p *Poller) Run(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { _ = p.Poll(ctx) }); err != nil {
		return fmt.Errorf("poll schedule %q: %w", schedule, err)
	}
	_ = p.Poll(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
