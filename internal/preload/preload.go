// Package preload schedules best-effort background fetches of upcoming slide
// images. Failures here only affect perceived load latency, never playback
// correctness.
package preload

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"slidekiosk/internal/playback"
)

// Fetcher retrieves one image reference into local cache. Implementations
// must be safe for concurrent use and must not panic; errors are advisory.
type Fetcher interface {
	Prefetch(ctx context.Context, ref string) error
}

const (
	// lookahead is how many upcoming slides are fetched ahead of display.
	lookahead = 2
	// resetEvery bounds the readiness map: it is cleared every Nth loop so
	// long-running loops do not grow memory without bound.
	resetEvery = 5
)

// Preloader tracks per-slide readiness and requests fetches for slides
// entering the lookahead window. It implements playback.Prefetcher.
type Preloader struct {
	fetcher Fetcher
	log     zerolog.Logger

	mu        sync.Mutex
	requested map[string]bool
	ready     map[string]bool
	lastLoop  int
}

// New builds a preloader around the given fetcher.
func New(fetcher Fetcher, log zerolog.Logger) *Preloader {
	return &Preloader{
		fetcher:   fetcher,
		log:       log.With().Str("component", "preload").Logger(),
		requested: make(map[string]bool),
		ready:     make(map[string]bool),
	}
}

// SlideChanged requests pre-fetch for slides newly entering the lookahead
// window. It never blocks: fetches run in their own goroutines and their
// completion never gates slide timing.
func (p *Preloader) SlideChanged(pres *playback.Presentation, index, loopCount int) {
	count := pres.SlideCount()
	if count == 0 {
		return
	}

	p.mu.Lock()
	if loopCount != p.lastLoop {
		p.lastLoop = loopCount
		if loopCount > 0 && loopCount%resetEvery == 0 {
			p.requested = make(map[string]bool)
			p.ready = make(map[string]bool)
			p.log.Debug().Int("loop", loopCount).Msg("cleared readiness state")
		}
	}

	var wanted []playback.Slide
	for i := 1; i <= lookahead; i++ {
		slide, ok := pres.SlideAt((index + i) % count)
		if !ok || p.requested[slide.ID] {
			continue
		}
		p.requested[slide.ID] = true
		wanted = append(wanted, slide)
	}
	p.mu.Unlock()

	for _, slide := range wanted {
		go p.fetch(slide)
	}
}

func (p *Preloader) fetch(slide playback.Slide) {
	if err := p.fetcher.Prefetch(context.Background(), slide.ImageURL); err != nil {
		p.log.Warn().Str("slide", slide.ID).Err(err).Msg("prefetch failed")
		p.mu.Lock()
		// Allow a later window pass to try again.
		delete(p.requested, slide.ID)
		p.mu.Unlock()
		return
	}
	p.mu.Lock()
	p.ready[slide.ID] = true
	p.mu.Unlock()
}

// Ready reports whether a slide's image has been fetched.
func (p *Preloader) Ready(slideID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready[slideID]
}

// Reset clears all readiness state, e.g. on session restart.
func (p *Preloader) Reset() {
	p.mu.Lock()
	p.requested = make(map[string]bool)
	p.ready = make(map[string]bool)
	p.lastLoop = 0
	p.mu.Unlock()
}
