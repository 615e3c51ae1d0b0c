package ui

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"fyne.io/fyne/v2"

	"slidekiosk/internal/playback"
	"slidekiosk/internal/session"
)

// renderer turns engine snapshots into pixels. It decodes from the preload
// cache when the slide was fetched ahead of time and downloads in the
// background otherwise; the fyne thread never blocks on the network.
type renderer struct {
	app      *App
	sess     *session.Session
	current  string
	fetching string
}

func newRenderer(app *App, sess *session.Session) *renderer {
	return &renderer{app: app, sess: sess}
}

// apply repaints for snap. Must run on the fyne thread.
func (r *renderer) apply(snap playback.Snapshot) {
	r.updateStatus(snap)
	if snap.Slide.ID == "" || snap.Slide.ID == r.current {
		return
	}

	path, ok := r.sess.Fetcher.CachedPath(snap.Slide.ImageURL)
	if !ok {
		r.fetchThenApply(snap)
		return
	}
	img, err := decodeFile(path, snap.Slide.ID)
	if err != nil {
		// The engine schedules an auto-skip; the stale image stays up
		// until then.
		r.sess.Engine.ReportImageFailure(snap.Slide.ID, err)
		r.app.setStatus("Slide %d failed to load", snap.SlideIndex+1)
		return
	}
	r.current = snap.Slide.ID
	r.app.image.Image = img
	r.app.image.Refresh()
}

// fetchThenApply downloads a slide that missed the preload cache and
// re-applies the snapshot once it lands. At most one fetch per slide is in
// flight; a newer slide supersedes an older in-flight one.
func (r *renderer) fetchThenApply(snap playback.Snapshot) {
	if r.fetching == snap.Slide.ID {
		return
	}
	r.fetching = snap.Slide.ID
	r.app.setStatus("Loading slide %d", snap.SlideIndex+1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := r.sess.Fetcher.Prefetch(ctx, snap.Slide.ImageURL)
		fyne.Do(func() {
			if r.fetching != snap.Slide.ID {
				return
			}
			r.fetching = ""
			if err != nil {
				r.sess.Engine.ReportImageFailure(snap.Slide.ID, err)
				r.app.setStatus("Slide %d failed to load", snap.SlideIndex+1)
				return
			}
			r.apply(snap)
		})
	}()
}

func decodeFile(path, slideID string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cached image: %w", err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", slideID, err)
	}
	return img, nil
}

func (r *renderer) updateStatus(snap playback.Snapshot) {
	state := "Paused"
	if snap.Playing {
		state = "Playing"
	}
	text := fmt.Sprintf("%s  |  Slide %d / %d  |  %s",
		snap.PresentationName, snap.SlideIndex+1, snap.SlideCount, state)
	if snap.Looping && snap.LoopCount > 0 {
		text += fmt.Sprintf("  |  Loop %d", snap.LoopCount)
	}
	if snap.LastError != "" {
		text += "  |  " + snap.LastError
	}
	r.app.status.SetText(text)
}
