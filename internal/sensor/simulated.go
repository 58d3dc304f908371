package sensor

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Simulated is a development stand-in for a real pedometer: it emits a
// small random burst of steps on every tick, the way sensor callbacks
// arrive in bursts on a device.
type Simulated struct {
	tick     time.Duration
	maxBurst int64
	rng      *rand.Rand
}

// NewSimulated creates a simulated source. seed fixes the burst
// sequence for deterministic tests.
func NewSimulated(tick time.Duration, maxBurst int64, seed int64) *Simulated {
	if maxBurst < 1 {
		maxBurst = 20
	}
	return &Simulated{
		tick:     tick,
		maxBurst: maxBurst,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Available always reports true; the simulator has no hardware to probe.
func (s *Simulated) Available(ctx context.Context) (bool, error) {
	return true, nil
}

// Subscribe starts the tick loop. The stream stops when the context is
// cancelled or Unsubscribe is called, whichever comes first.
func (s *Simulated) Subscribe(ctx context.Context, handler DeltaHandler) (Subscription, error) {
	sub := &simSubscription{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			case <-ticker.C:
				handler(s.rng.Int63n(s.maxBurst) + 1)
			}
		}
	}()

	slog.InfoContext(ctx, "Simulated sensor subscribed",
		"tick", s.tick.String(), "max_burst", s.maxBurst)

	return sub, nil
}

type simSubscription struct {
	stop chan struct{}
	once sync.Once
}

func (s *simSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.stop) })
}
