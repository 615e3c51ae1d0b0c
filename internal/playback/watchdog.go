package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// WatchdogConfig carries the stall detection thresholds.
type WatchdogConfig struct {
	// Interval is the check cadence. Deliberately much coarser than the
	// playback tick: the watchdog is a safety net, not a second timer.
	Interval time.Duration
	// Grace is the margin past a slide's own duration before the slide is
	// considered stalled.
	Grace time.Duration
	// GlobalStall is the no-progress threshold past which the whole
	// session is treated as unrecoverably drifted and restarted.
	GlobalStall time.Duration
}

const (
	defaultWatchdogInterval = 15 * time.Second
	defaultWatchdogGrace    = 10 * time.Second
	defaultGlobalStall      = 2 * time.Minute
)

func (c WatchdogConfig) withDefaults() WatchdogConfig {
	if c.Interval <= 0 {
		c.Interval = defaultWatchdogInterval
	}
	if c.Grace <= 0 {
		c.Grace = defaultWatchdogGrace
	}
	if c.GlobalStall <= 0 {
		c.GlobalStall = defaultGlobalStall
	}
	return c
}

// Watchdog monitors the engine for missing timer-driven progress and forces
// recovery. The playback timer can silently fail to fire (suspended process,
// timer coalescing); the watchdog guarantees the kiosk never shows one slide
// indefinitely.
type Watchdog struct {
	engine *Engine
	clock  clockwork.Clock
	log    zerolog.Logger
	cfg    WatchdogConfig

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatchdog builds a watchdog bound to one engine. It shares the engine's
// clock so stall decisions and slide deadlines agree on what time it is.
func NewWatchdog(e *Engine, cfg WatchdogConfig, log zerolog.Logger) *Watchdog {
	return &Watchdog{
		engine: e,
		clock:  e.clock,
		log:    log.With().Str("component", "watchdog").Logger(),
		cfg:    cfg.withDefaults(),
		done:   make(chan struct{}),
	}
}

// Start launches the check loop.
func (w *Watchdog) Start() {
	go w.run()
}

// Stop halts the check loop. Idempotent.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watchdog) run() {
	ticker := w.clock.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.Chan():
			w.check(now)
		}
	}
}

// check runs the three stall checks against the engine's last index change.
// Ordered most to least severe; at most one recovery fires per pass.
func (w *Watchdog) check(now time.Time) {
	v := w.engine.viewForWatchdog()
	if v.count == 0 {
		return
	}
	idle := now.Sub(v.lastChange)

	if v.playing && idle > w.cfg.GlobalStall {
		w.log.Error().Dur("idle", idle).Msg("global stall, restarting session")
		w.engine.Restart()
		return
	}

	if v.looping && v.index == v.count-1 && v.playing && idle > v.duration+w.cfg.Grace {
		w.log.Warn().Dur("idle", idle).Msg("end-of-loop stall, forcing wraparound")
		w.engine.forceWrap()
		return
	}

	if v.playing && idle > v.duration+w.cfg.Grace {
		w.log.Warn().Dur("idle", idle).Int("index", v.index).
			Msg("slide stall, forcing advance")
		w.engine.forceAdvance("watchdog")
	}
}
