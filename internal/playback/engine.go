package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config carries the engine timing knobs. Zero values fall back to the
// defaults below.
type Config struct {
	// TickInterval is the evaluation cadence for the slide deadline.
	TickInterval time.Duration
	// Debounce is the guard window after an index change during which
	// further index changes are dropped.
	Debounce time.Duration
	// AutoPlayDelay is the pause between a successful load and the first
	// automatic transition to playing, when auto-play was requested.
	AutoPlayDelay time.Duration
	// EndChoiceTimeout bounds how long an assigned session waits on the
	// end-of-sequence choice before restarting as looping.
	EndChoiceTimeout time.Duration
	// ImageSkipDelay is how long a failed slide stays up before the
	// one-shot auto-skip.
	ImageSkipDelay time.Duration
	// MaxImageRetries bounds auto-skips per slide before the error is left
	// visible.
	MaxImageRetries int
}

const (
	defaultTickInterval     = 100 * time.Millisecond
	defaultDebounce         = 500 * time.Millisecond
	defaultAutoPlayDelay    = time.Second
	defaultEndChoiceTimeout = 5 * time.Second
	defaultImageSkipDelay   = 2 * time.Second
	defaultMaxImageRetries  = 3
)

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}
	if c.AutoPlayDelay <= 0 {
		c.AutoPlayDelay = defaultAutoPlayDelay
	}
	if c.EndChoiceTimeout <= 0 {
		c.EndChoiceTimeout = defaultEndChoiceTimeout
	}
	if c.ImageSkipDelay <= 0 {
		c.ImageSkipDelay = defaultImageSkipDelay
	}
	if c.MaxImageRetries <= 0 {
		c.MaxImageRetries = defaultMaxImageRetries
	}
	return c
}

// Prefetcher is notified of slide changes so upcoming images can be fetched
// ahead of display. Implementations must not block.
type Prefetcher interface {
	SlideChanged(p *Presentation, index, loopCount int)
	Reset()
}

// EndChoice is the viewer's answer to the end-of-sequence prompt.
type EndChoice int

const (
	// EndRestart plays the sequence again from the first slide.
	EndRestart EndChoice = iota
	// EndLoop enables looping and plays again.
	EndLoop
	// EndExit leaves the session.
	EndExit
)

// Options configure a playback session at creation. Only these survive the
// session boundary; all other state is created fresh per session.
type Options struct {
	// AutoPlay starts playback automatically shortly after load.
	AutoPlay bool
	// Loop wraps from the last slide back to the first.
	Loop bool
	// Assigned marks a session started by remote assignment rather than
	// local choice; such sessions never park on the end-of-sequence prompt.
	Assigned bool
}

// Engine is the playback state machine. It owns the current slide index,
// play/pause/loop flags, the slide deadline and the re-entrancy guard, and
// it is the single writer of all of them. Timer ticks, watchdog recoveries,
// remote commands and local input all funnel through the same serialized
// transition section, so no two index changes can overlap.
type Engine struct {
	clock clockwork.Clock
	log   zerolog.Logger
	cfg   Config

	mu         sync.Mutex
	pres       *Presentation
	opts       Options
	index      int
	playing    bool
	looping    bool
	loopCount  int
	deadline   time.Time     // zero while the slide timer is not armed
	remaining  time.Duration // frozen remainder while paused
	guardUntil time.Time     // end of the debounce window
	lastChange time.Time     // consumed by the stall watchdog
	playAt     time.Time     // pending auto-play, zero when none
	endPending bool
	endBy      time.Time // auto-resolve deadline for assigned sessions
	skipAt     time.Time // pending image-failure auto-skip
	skipSlide  string
	failures   map[string]int
	lastErr    string
	recoveries int

	onChange   func(Snapshot)
	onEnd      func()
	onExit     func()
	prefetcher Prefetcher

	ticker   clockwork.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewEngine builds an engine for one loaded presentation. The presentation
// must already be validated; the engine treats it as immutable. The clock is
// injected so tests can drive time deterministically.
func NewEngine(p *Presentation, opts Options, cfg Config, clock clockwork.Clock, log zerolog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e := &Engine{
		clock:    clock,
		log:      log.With().Str("component", "playback").Str("presentation", p.ID).Logger(),
		cfg:      cfg.withDefaults(),
		pres:     p,
		opts:     opts,
		looping:  opts.Loop,
		failures: make(map[string]int),
		done:     make(chan struct{}),
	}
	now := clock.Now()
	e.lastChange = now
	if first, ok := p.SlideAt(0); ok {
		e.remaining = first.Duration()
	}
	if opts.AutoPlay {
		e.playAt = now.Add(e.cfg.AutoPlayDelay)
	}
	return e
}

// SetCallbacks registers the renderer/session hooks. Must be called before
// Start. onChange receives a snapshot after every state transition and on
// every tick while playing; onEnd fires when a non-looping sequence
// completes; onExit fires on a stop command or an explicit exit choice.
func (e *Engine) SetCallbacks(onChange func(Snapshot), onEnd, onExit func()) {
	e.mu.Lock()
	e.onChange = onChange
	e.onEnd = onEnd
	e.onExit = onExit
	e.mu.Unlock()
}

// SetPrefetcher wires the preloader. Must be called before Start.
func (e *Engine) SetPrefetcher(p Prefetcher) {
	e.mu.Lock()
	e.prefetcher = p
	e.mu.Unlock()
}

// Start launches the tick loop. The engine starts in Ready-Paused; auto-play
// sessions move to playing after the configured delay.
func (e *Engine) Start() {
	e.ticker = e.clock.NewTicker(e.cfg.TickInterval)
	go e.run()
	e.mu.Lock()
	if e.prefetcher != nil {
		e.prefetcher.SlideChanged(e.pres, e.index, e.loopCount)
	}
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Stop tears the tick loop down. Safe to call more than once; after Stop no
// further transitions occur, so a new session's timers can never race this
// one's.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		if e.ticker != nil {
			e.ticker.Stop()
		}
	})
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case now := <-e.ticker.Chan():
			e.tick(now)
		}
	}
}

// tick evaluates every pending deadline against now. Using absolute target
// timestamps rather than a decremented counter keeps the engine correct
// across missed or coalesced ticks.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()

	if !e.playAt.IsZero() && !now.Before(e.playAt) {
		e.playAt = time.Time{}
		e.playLocked(now)
	}

	if e.endPending && !e.endBy.IsZero() && !now.Before(e.endBy) {
		e.log.Info().Msg("end-of-sequence choice timed out, restarting as looping")
		e.looping = true
		e.restartLocked(now)
	}

	if !e.skipAt.IsZero() && !now.Before(e.skipAt) {
		slide, ok := e.pres.SlideAt(e.index)
		if ok && slide.ID == e.skipSlide {
			e.log.Warn().Str("slide", e.skipSlide).Msg("auto-skipping failed slide")
			e.advanceLocked(now, "image-failure")
		}
		e.skipAt = time.Time{}
		e.skipSlide = ""
	}

	if e.playing && !e.deadline.IsZero() && !now.Before(e.deadline) {
		e.advanceLocked(now, "timer")
	}

	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Apply dispatches a remote command through the same transitions as local
// input. Unknown commands are no-ops.
func (e *Engine) Apply(cmd Command) {
	if !cmd.Known() {
		e.log.Debug().Str("type", string(cmd.Type)).Msg("ignoring unknown command")
		return
	}
	switch cmd.Type {
	case CommandPlay:
		e.Play()
	case CommandPause:
		e.Pause()
	case CommandRestart:
		e.Restart()
	case CommandNextSlide:
		e.Next()
	case CommandPrevSlide:
		e.Prev()
	case CommandGotoSlide:
		e.Goto(cmd.SlideIndex)
	case CommandStop:
		e.Halt()
	}
}

// Play resumes playback. The frozen remainder from a previous pause is
// re-armed as-is; a fresh slide gets its full duration.
func (e *Engine) Play() {
	e.mu.Lock()
	e.playLocked(e.clock.Now())
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

func (e *Engine) playLocked(now time.Time) {
	if e.pres.SlideCount() == 0 || e.playing {
		return
	}
	e.playing = true
	e.playAt = time.Time{}
	e.endPending = false
	e.endBy = time.Time{}
	if e.remaining <= 0 {
		if slide, ok := e.pres.SlideAt(e.index); ok {
			e.remaining = slide.Duration()
		}
	}
	e.deadline = now.Add(e.remaining)
}

// Pause freezes the countdown at its current value.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.pauseLocked(e.clock.Now())
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

func (e *Engine) pauseLocked(now time.Time) {
	if !e.playing {
		return
	}
	if !e.deadline.IsZero() {
		e.remaining = e.deadline.Sub(now)
		if e.remaining < 0 {
			e.remaining = 0
		}
	}
	e.playing = false
	e.deadline = time.Time{}
}

// TogglePlay flips between playing and paused.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	now := e.clock.Now()
	if e.playing {
		e.pauseLocked(now)
	} else {
		e.playLocked(now)
	}
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Next moves one slide forward, clamped at the last slide.
func (e *Engine) Next() {
	e.step(1)
}

// Prev moves one slide back, clamped at the first slide.
func (e *Engine) Prev() {
	e.step(-1)
}

func (e *Engine) step(dir int) {
	e.mu.Lock()
	now := e.clock.Now()
	count := e.pres.SlideCount()
	if count == 0 || e.guardActiveLocked(now) {
		e.mu.Unlock()
		return
	}
	next := e.index + dir
	if next < 0 {
		next = 0
	} else if next >= count {
		next = count - 1
	}
	e.setIndexLocked(now, next)
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Goto jumps to slide n. Indexes outside [0, slideCount) are rejected with
// no state change.
func (e *Engine) Goto(n int) {
	e.mu.Lock()
	now := e.clock.Now()
	if n < 0 || n >= e.pres.SlideCount() || e.guardActiveLocked(now) {
		e.mu.Unlock()
		return
	}
	e.setIndexLocked(now, n)
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Restart rewinds to the first slide, zeroes the loop counter, clears all
// transient error and preload state, and starts playing.
func (e *Engine) Restart() {
	e.mu.Lock()
	e.restartLocked(e.clock.Now())
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

func (e *Engine) restartLocked(now time.Time) {
	e.loopCount = 0
	e.failures = make(map[string]int)
	e.lastErr = ""
	e.skipAt = time.Time{}
	e.skipSlide = ""
	e.endPending = false
	e.endBy = time.Time{}
	e.playAt = time.Time{}
	if e.prefetcher != nil {
		e.prefetcher.Reset()
	}
	e.setIndexLocked(now, 0)
	e.playing = false // force re-arm from the full duration
	e.playLocked(now)
}

// Halt pauses playback and signals session end to the exit hook.
func (e *Engine) Halt() {
	e.mu.Lock()
	e.pauseLocked(e.clock.Now())
	exit := e.onExit
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
	if exit != nil {
		exit()
	}
}

// ResolveEnd applies the viewer's end-of-sequence choice.
func (e *Engine) ResolveEnd(choice EndChoice) {
	e.mu.Lock()
	now := e.clock.Now()
	if !e.endPending {
		e.mu.Unlock()
		return
	}
	var exit func()
	switch choice {
	case EndRestart:
		e.restartLocked(now)
	case EndLoop:
		e.looping = true
		e.restartLocked(now)
	case EndExit:
		e.endPending = false
		e.endBy = time.Time{}
		exit = e.onExit
	}
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
	if exit != nil {
		exit()
	}
}

// SetLooping changes the loop flag without disturbing the current slide.
func (e *Engine) SetLooping(on bool) {
	e.mu.Lock()
	e.looping = on
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// ReportImageFailure records that the renderer could not display a slide's
// image. The first few failures schedule a one-shot auto-skip after a short
// delay; past the retry budget the error is left visible.
func (e *Engine) ReportImageFailure(slideID string, err error) {
	e.mu.Lock()
	now := e.clock.Now()
	e.failures[slideID]++
	n := e.failures[slideID]
	if n <= e.cfg.MaxImageRetries {
		e.skipAt = now.Add(e.cfg.ImageSkipDelay)
		e.skipSlide = slideID
		e.log.Warn().Str("slide", slideID).Int("attempt", n).Err(err).
			Msg("image failed, scheduling auto-skip")
	} else {
		e.lastErr = "image failed: " + slideID
		e.log.Error().Str("slide", slideID).Err(err).
			Msg("image failed past retry budget")
	}
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// Snapshot returns a copy of the externally visible playback state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, _ := e.snapshotLocked()
	return snap
}

// guardActiveLocked reports whether the debounce window is still open. Any
// index change attempted inside the window is dropped, which is what keeps a
// timer expiry and a near-simultaneous remote next_slide from skipping two
// slides.
func (e *Engine) guardActiveLocked(now time.Time) bool {
	return now.Before(e.guardUntil)
}

// setIndexLocked performs the single permitted kind of index mutation: it
// opens the guard window, stamps the change for the watchdog, re-arms the
// slide deadline when playing, and notifies the prefetcher.
func (e *Engine) setIndexLocked(now time.Time, n int) {
	e.index = n
	e.guardUntil = now.Add(e.cfg.Debounce)
	e.lastChange = now
	e.lastErr = ""
	slide, ok := e.pres.SlideAt(n)
	if !ok {
		return
	}
	e.remaining = slide.Duration()
	if e.playing {
		e.deadline = now.Add(e.remaining)
	} else {
		e.deadline = time.Time{}
	}
	if e.prefetcher != nil {
		e.prefetcher.SlideChanged(e.pres, n, e.loopCount)
	}
}

// advanceLocked moves to the next slide, handling end-of-sequence. Guarded:
// a call inside the debounce window is a no-op.
func (e *Engine) advanceLocked(now time.Time, reason string) {
	count := e.pres.SlideCount()
	if count == 0 || e.guardActiveLocked(now) {
		return
	}
	if reason != "timer" {
		e.log.Info().Str("reason", reason).Int("index", e.index).Msg("forced advance")
	}
	if e.index < count-1 {
		e.setIndexLocked(now, e.index+1)
		return
	}
	// End of sequence.
	if e.looping {
		e.loopCount++
		e.setIndexLocked(now, 0)
		return
	}
	e.playing = false
	e.deadline = time.Time{}
	e.setIndexLocked(now, 0)
	e.endPending = true
	if e.opts.Assigned {
		e.endBy = now.Add(e.cfg.EndChoiceTimeout)
	}
	if e.onEnd != nil {
		end := e.onEnd
		// Callbacks run without the lock; see emit.
		go end()
	}
}

// forceAdvance is the watchdog's recovery entry. It behaves exactly like a
// timer expiry and is logged as a recovery.
func (e *Engine) forceAdvance(reason string) {
	e.mu.Lock()
	e.recoveries++
	e.advanceLocked(e.clock.Now(), reason)
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// forceWrap is the watchdog's end-of-loop recovery: jump straight back to
// the first slide and count the loop, bypassing end-of-sequence handling.
func (e *Engine) forceWrap() {
	e.mu.Lock()
	now := e.clock.Now()
	if !e.guardActiveLocked(now) {
		e.recoveries++
		e.loopCount++
		e.setIndexLocked(now, 0)
		e.log.Warn().Msg("watchdog forced end-of-loop wraparound")
	}
	snap, notify := e.snapshotLocked()
	e.mu.Unlock()
	emit(notify, snap)
}

// watchdogView is the minimal state the stall watchdog needs.
type watchdogView struct {
	playing    bool
	looping    bool
	index      int
	count      int
	lastChange time.Time
	duration   time.Duration
}

func (e *Engine) viewForWatchdog() watchdogView {
	e.mu.Lock()
	defer e.mu.Unlock()
	var d time.Duration
	if slide, ok := e.pres.SlideAt(e.index); ok {
		d = slide.Duration()
	}
	return watchdogView{
		playing:    e.playing,
		looping:    e.looping,
		index:      e.index,
		count:      e.pres.SlideCount(),
		lastChange: e.lastChange,
		duration:   d,
	}
}

func (e *Engine) snapshotLocked() (Snapshot, func(Snapshot)) {
	now := e.clock.Now()
	slide, _ := e.pres.SlideAt(e.index)
	remaining := e.remaining
	if e.playing && !e.deadline.IsZero() {
		remaining = e.deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
	}
	total := slide.Duration()
	progress := 0.0
	if total > 0 {
		progress = float64(total-remaining) / float64(total)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
	}
	return Snapshot{
		PresentationID:   e.pres.ID,
		PresentationName: e.pres.Name,
		SlideIndex:       e.index,
		SlideCount:       e.pres.SlideCount(),
		Slide:            slide,
		RemainingMs:      remaining.Milliseconds(),
		Playing:          e.playing,
		AutoPlay:         e.opts.AutoPlay,
		Looping:          e.looping,
		LoopCount:        e.loopCount,
		ProgressFraction: progress,
		ChangeInProgress: e.guardActiveLocked(now),
		EndReached:       e.endPending,
		Recoveries:       e.recoveries,
		LastError:        e.lastErr,
	}, e.onChange
}

func emit(notify func(Snapshot), snap Snapshot) {
	if notify != nil {
		notify(snap)
	}
}
