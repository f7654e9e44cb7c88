// Package engine is the single consumer of sensor updates. For every update
// it merges readings, reconciles them against the current target ranges,
// records the result and fans out a snapshot to the displays.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/feed"
	"github.com/luki/nutetra/internal/history"
	"github.com/luki/nutetra/internal/metrics"
	"github.com/luki/nutetra/internal/notify"
	"github.com/luki/nutetra/internal/sensor"
	"github.com/luki/nutetra/internal/store"
)

// Snapshot is the reconciled view after one update.
type Snapshot struct {
	Seq     uint64
	At      time.Time
	Source  feed.Source
	States  []sensor.ChannelState
	Changed []sensor.Channel
}

// State returns the state of ch, or false if the snapshot has none.
func (s Snapshot) State(ch sensor.Channel) (sensor.ChannelState, bool) {
	for _, st := range s.States {
		if st.Channel == ch {
			return st, true
		}
	}
	return sensor.ChannelState{}, false
}

// Alerts returns the states that should be surfaced as alerts.
func (s Snapshot) Alerts() []sensor.ChannelState {
	var out []sensor.ChannelState
	for _, st := range s.States {
		if st.Status.Alert() {
			out = append(out, st)
		}
	}
	return out
}

// RangeSource supplies the target ranges in effect. It is read on every
// update so settings changes apply to the next snapshot.
type RangeSource interface {
	Ranges() map[sensor.Channel]sensor.TargetRange
}

// Options wires the optional collaborators. Nil fields are skipped.
type Options struct {
	Ranges   RangeSource
	Metrics  *metrics.Metrics
	History  *history.Store
	Sinks    []store.Sink
	Notifier *notify.Notifier
	Log      zerolog.Logger
}

// Engine owns the tracker and the previous status map. Handle must only be
// called from one goroutine; Latest and Subscribe are safe from any.
type Engine struct {
	opts    Options
	tracker *feed.Tracker
	prev    map[sensor.Channel]sensor.Status
	gaps    map[sensor.Channel]bool
	now     func() time.Time

	mu     sync.RWMutex
	latest Snapshot
	hasAny bool
	subs   map[chan Snapshot]struct{}
}

func New(opts Options) *Engine {
	return &Engine{
		opts:    opts,
		tracker: feed.NewTracker(),
		gaps:    make(map[sensor.Channel]bool),
		now:     time.Now,
		subs:    make(map[chan Snapshot]struct{}),
	}
}

// Run consumes q until ctx is done.
func (e *Engine) Run(ctx context.Context, q *feed.Queue) {
	q.Run(ctx, func(u feed.Update) { e.Handle(u) })
	e.closeSubscribers()
}

// Handle processes one update and returns the resulting snapshot.
func (e *Engine) Handle(u feed.Update) Snapshot {
	start := e.now()
	log := e.opts.Log

	dropped := e.tracker.Apply(u)
	if dropped > 0 {
		log.Debug().Uint64("seq", u.Seq).Int("dropped", dropped).Msg("stale readings discarded")
	}

	var ranges map[sensor.Channel]sensor.TargetRange
	if e.opts.Ranges != nil {
		ranges = e.opts.Ranges.Ranges()
	}
	states := sensor.Evaluate(e.tracker.Readings(), ranges)
	statuses := sensor.Statuses(states)
	changed := sensor.Changed(e.prev, statuses)
	e.prev = statuses

	e.logGaps(states)

	if m := e.opts.Metrics; m != nil {
		m.IncUpdate(string(u.Source))
		m.AddStale(dropped)
		m.ObserveStates(states)
	}

	at := u.ObservedAt
	if at.IsZero() {
		at = start
	}
	if e.opts.History != nil {
		e.opts.History.RecordStates(states, at)
	}
	for _, sink := range e.opts.Sinks {
		if err := sink.Write(states, at); err != nil {
			log.Warn().Err(err).Msg("history sink write failed")
		}
	}
	if e.opts.Notifier != nil {
		e.opts.Notifier.Observe(states, changed)
	}

	for _, ch := range changed {
		for _, s := range states {
			if s.Channel == ch {
				log.Info().Str("channel", string(ch)).Str("status", s.Status.String()).Str("value", s.Text).Msg("status changed")
			}
		}
	}

	snap := Snapshot{Seq: u.Seq, At: at, Source: u.Source, States: states, Changed: changed}
	e.publish(snap)

	if m := e.opts.Metrics; m != nil {
		m.ObserveReconcile(e.now().Sub(start))
	}
	return snap
}

// logGaps reports a connected channel without a target range once, until
// a range appears for it again.
func (e *Engine) logGaps(states []sensor.ChannelState) {
	for _, s := range states {
		if s.Status != sensor.Unevaluated {
			if s.HasRange {
				delete(e.gaps, s.Channel)
			}
			continue
		}
		if e.gaps[s.Channel] {
			continue
		}
		e.gaps[s.Channel] = true
		e.opts.Log.Warn().Str("channel", string(s.Channel)).Msg("no target range configured, channel cannot be evaluated")
	}
}

// ── Fan-out ──────────────────────────────────────────────────────────────────

// Latest returns the most recent snapshot, or false before the first update.
func (e *Engine) Latest() (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest, e.hasAny
}

// Subscribe returns a channel that receives every snapshot a reader keeps
// up with. A slow reader only sees the newest one. The channel is closed
// when the engine stops or cancel is called.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	if e.hasAny {
		ch <- e.latest
	}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

func (e *Engine) publish(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest = s
	e.hasAny = true
	for ch := range e.subs {
		select {
		case ch <- s:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		delete(e.subs, ch)
		close(ch)
	}
}
