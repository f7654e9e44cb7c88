package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luki/nutetra/internal/sensor"
)

func reading(ch sensor.Channel, v float64, at time.Time) sensor.Reading {
	return sensor.Reading{Channel: ch, Value: v, HasValue: true, ObservedAt: at}
}

func TestQueueSingleConsumer(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const producers, perProducer = 2, 50
	var (
		mu       sync.Mutex
		seen     = make(map[uint64]bool)
		inHandle bool
		overlap  bool
		got      int
	)
	all := make(chan struct{})

	go q.Run(ctx, func(u Update) {
		mu.Lock()
		if inHandle {
			overlap = true
		}
		inHandle = true
		mu.Unlock()

		time.Sleep(100 * time.Microsecond)

		mu.Lock()
		inHandle = false
		seen[u.Seq] = true
		got++
		if got == producers*perProducer {
			close(all)
		}
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		src := SourcePoll
		if p == 1 {
			src = SourcePush
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Publish(ctx, Update{Source: src}); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for consumer")
	}

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("handler ran concurrently")
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct sequence numbers, got %d", producers*perProducer, len(seen))
	}
}

func TestQueueFullAndClosed(t *testing.T) {
	q := NewQueue(1)
	if !q.TryPublish(Update{}) {
		t.Fatal("first TryPublish should succeed")
	}
	if q.TryPublish(Update{}) {
		t.Error("TryPublish on a full queue should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Update{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish on full queue: got %v, want deadline exceeded", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(runCtx, func(Update) {})
		close(done)
	}()
	stop()
	<-done

	if err := q.Publish(context.Background(), Update{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Run returned: got %v, want ErrClosed", err)
	}
}

func TestTrackerDiscardsStale(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()

	tr.Apply(Update{Seq: 1, Readings: map[sensor.Channel]sensor.Reading{
		sensor.PH: reading(sensor.PH, 6.0, base.Add(10*time.Second)),
	}})

	// A push that was observed earlier but delivered later loses.
	dropped := tr.Apply(Update{Seq: 2, Readings: map[sensor.Channel]sensor.Reading{
		sensor.PH: reading(sensor.PH, 7.5, base),
	}})
	if dropped != 1 || tr.Stale != 1 {
		t.Errorf("dropped=%d stale=%d, want 1 and 1", dropped, tr.Stale)
	}
	if v := tr.Readings()[sensor.PH].Value; v != 6.0 {
		t.Errorf("ph = %v, want 6.0", v)
	}

	// Same observation time: the later sequence wins.
	tr.Apply(Update{Seq: 3, Readings: map[sensor.Channel]sensor.Reading{
		sensor.PH: reading(sensor.PH, 6.2, base.Add(10*time.Second)),
	}})
	if v := tr.Readings()[sensor.PH].Value; v != 6.2 {
		t.Errorf("ph = %v, want 6.2", v)
	}
}

func TestTrackerFullAndPartial(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()

	tr.Apply(Update{Seq: 1, Full: true, ObservedAt: base, Readings: map[sensor.Channel]sensor.Reading{
		sensor.PH:   {Channel: sensor.PH, Value: 6.0, HasValue: true},
		sensor.Temp: {Channel: sensor.Temp, Value: 22, HasValue: true},
	}})
	got := tr.Readings()
	if len(got) != len(sensor.Channels) {
		t.Fatalf("full batch should cover every channel, got %d", len(got))
	}
	if got[sensor.EC].HasValue {
		t.Error("ec missing from full batch should be held as disconnected")
	}
	if !got[sensor.PH].ObservedAt.Equal(base) {
		t.Error("readings without a time should inherit the update time")
	}

	// A partial push only touches its channel.
	tr.Apply(Update{Seq: 2, Readings: map[sensor.Channel]sensor.Reading{
		sensor.EC: reading(sensor.EC, 1300, base.Add(time.Second)),
	}})
	got = tr.Readings()
	if !got[sensor.EC].HasValue || got[sensor.EC].Value != 1300 {
		t.Errorf("ec: got %+v", got[sensor.EC])
	}
	if got[sensor.PH].Value != 6.0 {
		t.Errorf("ph should be untouched, got %+v", got[sensor.PH])
	}

	status := sensor.Reconcile(got, map[sensor.Channel]sensor.TargetRange{
		sensor.EC: {Min: 1200, Max: 1500},
	})
	if status[sensor.EC] != sensor.InRange {
		t.Errorf("ec status = %v", status[sensor.EC])
	}
}
