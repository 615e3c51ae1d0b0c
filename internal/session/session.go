// Package session assembles one playback run: it loads the presentation,
// wires the engine to the watchdog, preloader, wake guard and backend
// reporting, and tears everything down synchronously when replaced.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"slidekiosk/internal/catalog"
	"slidekiosk/internal/lifecycle"
	"slidekiosk/internal/playback"
	"slidekiosk/internal/preload"
	"slidekiosk/internal/status"
)

// Config carries everything a manager needs to build sessions.
type Config struct {
	ServerURL    string
	DeviceID     string
	CacheDir     string
	AutoPlay     bool
	Loop         bool
	Assigned     bool
	PollInterval time.Duration
}

// Session is one live playback run with all its attendant resources.
type Session struct {
	Engine   *playback.Engine
	Fetcher  *preload.HTTPFetcher
	watchdog *playback.Watchdog
	poller   *status.Poller
	guard    *lifecycle.Guard
}

// Close tears the session down. Safe to call more than once; the guard runs
// each teardown step exactly once.
func (s *Session) Close() {
	s.guard.Close()
}

// Manager builds and replaces sessions. At most one session is live; starting
// a new one tears the previous one down first so its timers can never fire
// into the new presentation.
type Manager struct {
	cfg      Config
	clock    clockwork.Clock
	log      zerolog.Logger
	catalog  *catalog.Client
	reporter *status.Reporter
	wake     lifecycle.WakeLocker

	onChange func(playback.Snapshot)
	onEnd    func()
	onExit   func()

	mu      sync.Mutex
	current *Session
}

// NewManager builds a manager. onChange receives every snapshot for the
// renderer; onEnd fires at a non-looping sequence end; onExit fires when a
// stop command asks the kiosk to leave playback.
func NewManager(cfg Config, wake lifecycle.WakeLocker, clock clockwork.Clock, log zerolog.Logger,
	onChange func(playback.Snapshot), onEnd, onExit func()) *Manager {
	return &Manager{
		cfg:      cfg,
		clock:    clock,
		log:      log.With().Str("component", "session").Logger(),
		catalog:  catalog.NewClient(cfg.ServerURL, 0, log),
		reporter: status.NewReporter(cfg.ServerURL, cfg.DeviceID, 0, log),
		wake:     wake,
		onChange: onChange,
		onEnd:    onEnd,
		onExit:   onExit,
	}
}

// Catalog exposes the backend client for callers that need to browse or
// register outside a running session.
func (m *Manager) Catalog() *catalog.Client {
	return m.catalog
}

// Current returns the live session, or nil when nothing is playing.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start loads presentationID and replaces any running session with a new one.
func (m *Manager) Start(ctx context.Context, presentationID string) (*Session, error) {
	pres, err := m.catalog.LoadPresentation(ctx, presentationID)
	if err != nil {
		return nil, fmt.Errorf("loading presentation: %w", err)
	}
	// The swap happens under the manager lock so a close racing a slow load
	// can never leave a just-started session running after teardown.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCurrentLocked()

	engine := playback.NewEngine(pres, playback.Options{
		AutoPlay: m.cfg.AutoPlay,
		Loop:     m.cfg.Loop,
		Assigned: m.cfg.Assigned,
	}, playback.Config{}, m.clock, m.log)

	fetcher, err := preload.NewHTTPFetcher(m.cfg.CacheDir, 0)
	if err != nil {
		return nil, fmt.Errorf("building image cache: %w", err)
	}
	engine.SetPrefetcher(preload.New(fetcher, m.log))

	guard := lifecycle.NewGuard(m.wake, m.clock, m.log)
	// Snapshots arrive on every evaluation tick; only material transitions
	// are worth a status POST. The engine invokes the callback outside its
	// own lock, so the tick goroutine, the command poller and local input
	// can all land here at once; the dedupe state needs its own mutex.
	var (
		repMu        sync.Mutex
		lastReported playback.Snapshot
		reported     bool
	)
	engine.SetCallbacks(func(snap playback.Snapshot) {
		if snap.Playing {
			guard.PlaybackStarted()
		} else {
			guard.PlaybackStopped()
		}
		repMu.Lock()
		material := !reported || materialChange(lastReported, snap)
		if material {
			lastReported, reported = snap, true
			m.reporter.Report(snap)
		}
		repMu.Unlock()
		if m.onChange != nil {
			m.onChange(snap)
		}
	}, m.onEnd, m.onExit)

	watchdog := playback.NewWatchdog(engine, playback.WatchdogConfig{}, m.log)
	poller := status.NewPoller(m.cfg.ServerURL, m.cfg.DeviceID, m.cfg.PollInterval,
		m.clock, engine.Apply, m.log)

	sess := &Session{
		Engine:   engine,
		Fetcher:  fetcher,
		watchdog: watchdog,
		poller:   poller,
		guard:    guard,
	}
	guard.OnTeardown(engine.Stop)
	guard.OnTeardown(watchdog.Stop)
	guard.OnTeardown(poller.Stop)

	engine.Start()
	watchdog.Start()
	poller.Start()
	m.current = sess

	m.log.Info().Str("presentation", pres.ID).Int("slides", pres.SlideCount()).
		Msg("session started")
	return sess, nil
}

// materialChange reports whether two snapshots differ in anything the
// backend cares about. Countdown progress alone is not material.
func materialChange(a, b playback.Snapshot) bool {
	return a.SlideIndex != b.SlideIndex ||
		a.Playing != b.Playing ||
		a.Looping != b.Looping ||
		a.LoopCount != b.LoopCount ||
		a.EndReached != b.EndReached ||
		a.Recoveries != b.Recoveries ||
		a.LastError != b.LastError
}

// StopCurrent tears down the live session, if any, before returning.
func (m *Manager) StopCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCurrentLocked()
}

func (m *Manager) stopCurrentLocked() {
	if m.current == nil {
		return
	}
	m.current.Close()
	m.current = nil
	m.log.Info().Msg("session stopped")
}
