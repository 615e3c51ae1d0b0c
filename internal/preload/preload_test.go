package preload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidekiosk/internal/playback"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeFetcher) Prefetch(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ref]++
	if f.fail[ref] {
		return errors.New("fetch failed")
	}
	return nil
}

func (f *fakeFetcher) count(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

func slides(n int) *playback.Presentation {
	p := &playback.Presentation{ID: "p", Name: "p"}
	for i := 0; i < n; i++ {
		p.Slides = append(p.Slides, playback.Slide{
			ID:              "s" + string(rune('0'+i)),
			ImageURL:        "img-" + string(rune('0'+i)),
			DurationSeconds: 5,
		})
	}
	return p
}

func TestPreloaderFetchesLookaheadWindow(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, zerolog.Nop())
	pres := slides(4)

	p.SlideChanged(pres, 0, 0)

	assert.Eventually(t, func() bool {
		return p.Ready("s1") && p.Ready("s2")
	}, time.Second, 5*time.Millisecond)
	assert.False(t, p.Ready("s3"), "outside the lookahead window")
	assert.False(t, p.Ready("s0"), "current slide is already on screen")
}

func TestPreloaderDoesNotRefetchRequested(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, zerolog.Nop())
	pres := slides(4)

	p.SlideChanged(pres, 0, 0)
	p.SlideChanged(pres, 1, 0) // window now s2, s3; s2 already requested

	assert.Eventually(t, func() bool { return p.Ready("s3") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fetcher.count("img-2"))
}

func TestPreloaderRetriesAfterFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail["img-1"] = true
	p := New(fetcher, zerolog.Nop())
	pres := slides(4)

	p.SlideChanged(pres, 0, 0)
	assert.Eventually(t, func() bool { return fetcher.count("img-1") == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Ready("s1"))

	// The failed slide may be requested again on a later window pass.
	fetcher.mu.Lock()
	fetcher.fail["img-1"] = false
	fetcher.mu.Unlock()
	assert.Eventually(t, func() bool {
		p.SlideChanged(pres, 0, 0)
		return p.Ready("s1")
	}, time.Second, 5*time.Millisecond)
}

func TestPreloaderClearsStateEveryFifthLoop(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, zerolog.Nop())
	pres := slides(3)

	p.SlideChanged(pres, 0, 0)
	assert.Eventually(t, func() bool { return p.Ready("s1") }, time.Second, 5*time.Millisecond)

	p.SlideChanged(pres, 0, resetEvery)
	assert.Eventually(t, func() bool { return fetcher.count("img-1") == 2 }, time.Second, 5*time.Millisecond)
}

func TestPreloaderWrapsWindowAroundSequence(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, zerolog.Nop())
	pres := slides(3)

	p.SlideChanged(pres, 2, 0) // window wraps to s0, s1
	assert.Eventually(t, func() bool {
		return p.Ready("s0") && p.Ready("s1")
	}, time.Second, 5*time.Millisecond)
}

func TestHTTPFetcherCachesDownloads(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(t.TempDir(), time.Second)
	require.NoError(t, err)

	ref := srv.URL + "/slide.png"
	_, ok := f.CachedPath(ref)
	require.False(t, ok)

	require.NoError(t, f.Prefetch(context.Background(), ref))
	path, ok := f.CachedPath(ref)
	require.True(t, ok)
	assert.FileExists(t, path)

	require.NoError(t, f.Prefetch(context.Background(), ref))
	assert.Equal(t, 1, hits, "second prefetch is served from cache")
}

func TestHTTPFetcherReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(t.TempDir(), time.Second)
	require.NoError(t, err)

	err = f.Prefetch(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	_, ok := f.CachedPath(srv.URL + "/missing.png")
	assert.False(t, ok)
}
