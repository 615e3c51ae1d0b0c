// Package lifecycle owns the resources a playback session holds while it is
// on screen: the display wake assertion and the teardown steps that must run
// exactly once when the session ends or is replaced.
package lifecycle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// WakeLocker keeps the display awake. Acquire and Release must both be
// idempotent; kiosk platforms tend to reference-count assertions and a
// double release would drop someone else's hold.
type WakeLocker interface {
	Acquire() error
	Release() error
}

// NopWake is a WakeLocker for platforms where the fullscreen window itself
// keeps the display on.
type NopWake struct{}

func (NopWake) Acquire() error { return nil }
func (NopWake) Release() error { return nil }

// reassertInterval is how often a held wake assertion is re-applied. Some
// platforms silently expire assertions after a few minutes of no activity.
const reassertInterval = 15 * time.Second

// Guard tracks whether playback currently needs the screen held awake and
// runs registered teardown steps once on Close.
type Guard struct {
	wake  WakeLocker
	clock clockwork.Clock
	log   zerolog.Logger

	mu       sync.Mutex
	holding  bool
	closed   bool
	teardown []func()
	ticker   clockwork.Ticker
	done     chan struct{}
}

// NewGuard builds a guard over the given wake locker.
func NewGuard(wake WakeLocker, clock clockwork.Clock, log zerolog.Logger) *Guard {
	return &Guard{
		wake:  wake,
		clock: clock,
		log:   log.With().Str("component", "lifecycle").Logger(),
	}
}

// OnTeardown registers a step to run when the guard closes. Steps run in
// registration order, each at most once.
func (g *Guard) OnTeardown(fn func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		// Late registration still runs so the caller's resource is released.
		fn()
		return
	}
	g.teardown = append(g.teardown, fn)
	g.mu.Unlock()
}

// PlaybackStarted acquires the wake assertion and starts re-asserting it.
func (g *Guard) PlaybackStarted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.holding {
		return
	}
	if err := g.wake.Acquire(); err != nil {
		g.log.Warn().Err(err).Msg("wake acquire failed")
		return
	}
	g.holding = true
	g.ticker = g.clock.NewTicker(reassertInterval)
	g.done = make(chan struct{})
	go g.reassert(g.ticker, g.done)
	g.log.Debug().Msg("wake assertion held")
}

// PlaybackStopped releases the wake assertion. Safe to call when not held.
func (g *Guard) PlaybackStopped() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

func (g *Guard) releaseLocked() {
	if !g.holding {
		return
	}
	g.holding = false
	g.ticker.Stop()
	close(g.done)
	if err := g.wake.Release(); err != nil {
		g.log.Warn().Err(err).Msg("wake release failed")
	}
	g.log.Debug().Msg("wake assertion released")
}

func (g *Guard) reassert(ticker clockwork.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if err := g.wake.Acquire(); err != nil {
				g.log.Warn().Err(err).Msg("wake re-assert failed")
			}
		}
	}
}

// Close releases the wake assertion and runs every registered teardown step
// exactly once. Further calls are no-ops.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.releaseLocked()
	steps := g.teardown
	g.teardown = nil
	g.mu.Unlock()

	for _, fn := range steps {
		fn()
	}
}
