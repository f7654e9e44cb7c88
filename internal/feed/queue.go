// Package feed serializes sensor updates from several producers (the poll
// timer and the push subscription) into a single consumer, and keeps the
// latest reading per channel while discarding stale ones.
package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/luki/nutetra/internal/sensor"
)

// Source names the producer of an update.
type Source string

const (
	SourcePoll Source = "poll"
	SourcePush Source = "push"
)

// Update is one batch of readings from a producer.
type Update struct {
	Seq        uint64 // assigned by the queue
	Source     Source
	ObservedAt time.Time
	Readings   map[sensor.Channel]sensor.Reading
	// Full marks a batch that covers every channel. Channels missing from
	// a full batch are treated as disconnected.
	Full bool
}

// ErrClosed is returned when publishing to a stopped queue.
var ErrClosed = errors.New("feed: queue closed")

// Queue is a bounded multi-producer, single-consumer update queue.
type Queue struct {
	ch     chan Update
	seq    atomic.Uint64
	done   chan struct{}
	closed atomic.Bool
}

// NewQueue creates a queue holding at most size pending updates.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		ch:   make(chan Update, size),
		done: make(chan struct{}),
	}
}

func (q *Queue) stamp(u Update) Update {
	u.Seq = q.seq.Add(1)
	if u.ObservedAt.IsZero() {
		u.ObservedAt = time.Now()
	}
	return u
}

// Publish enqueues an update, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, u Update) error {
	if q.closed.Load() {
		return ErrClosed
	}
	u = q.stamp(u)
	select {
	case q.ch <- u:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an update without blocking. It reports false when
// the queue is full or closed.
func (q *Queue) TryPublish(u Update) bool {
	if q.closed.Load() {
		return false
	}
	u = q.stamp(u)
	select {
	case q.ch <- u:
		return true
	default:
		return false
	}
}

// Len returns the number of pending updates.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run consumes updates one at a time until ctx is done. It must be the
// only consumer; handle is never called concurrently.
func (q *Queue) Run(ctx context.Context, handle func(Update)) {
	defer q.close()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-q.ch:
			handle(u)
		}
	}
}

func (q *Queue) close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}
