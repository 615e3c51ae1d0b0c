// Package playback implements the presentation playback engine: the slide
// store, the playback state machine, the slide timer and the stall watchdog.
package playback

import (
	"errors"
	"fmt"
	"time"
)

// MinSlideDuration is the floor applied to every slide regardless of its
// configured value, so the sequence always makes forward progress.
const MinSlideDuration = time.Second

// Slide is one displayable unit (image + duration) within a presentation.
// Slides are read-only after load.
type Slide struct {
	ID              string `json:"id"`
	ImageURL        string `json:"imageUrl"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Duration returns the effective display duration, clamped to MinSlideDuration.
func (s Slide) Duration() time.Duration {
	d := time.Duration(s.DurationSeconds) * time.Second
	if d < MinSlideDuration {
		return MinSlideDuration
	}
	return d
}

// Presentation is an ordered, immutable-per-load sequence of slides.
// It is replaced wholesale on reload, never mutated in place.
type Presentation struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Slides []Slide `json:"slides"`
}

// ErrNoSlides is returned when a presentation has nothing to display.
var ErrNoSlides = errors.New("presentation has no slides")

// Validate checks the invariants the engine relies on: a non-empty ID,
// at least one slide, and slide IDs unique within the presentation.
func (p *Presentation) Validate() error {
	if p == nil {
		return errors.New("nil presentation")
	}
	if p.ID == "" {
		return errors.New("presentation has no id")
	}
	if len(p.Slides) == 0 {
		return ErrNoSlides
	}
	seen := make(map[string]bool, len(p.Slides))
	for i, s := range p.Slides {
		if s.ID == "" {
			return fmt.Errorf("slide %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slide id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// SlideAt returns the slide at index i, or a zero Slide and false when i is
// out of range.
func (p *Presentation) SlideAt(i int) (Slide, bool) {
	if p == nil || i < 0 || i >= len(p.Slides) {
		return Slide{}, false
	}
	return p.Slides[i], true
}

// SlideCount returns the number of slides, tolerating a nil presentation.
func (p *Presentation) SlideCount() int {
	if p == nil {
		return 0
	}
	return len(p.Slides)
}
