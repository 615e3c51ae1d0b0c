package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidekiosk/internal/playback"
)

func TestReporterPostsSnapshot(t *testing.T) {
	got := make(chan playback.Snapshot, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/devices/d1/status", r.URL.Path)
		var snap playback.Snapshot
		require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
		got <- snap
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, "d1", time.Second, zerolog.Nop())
	rep.Report(playback.Snapshot{PresentationID: "p1", SlideIndex: 2, Playing: true})

	select {
	case snap := <-got:
		assert.Equal(t, "p1", snap.PresentationID)
		assert.Equal(t, 2, snap.SlideIndex)
	case <-time.After(time.Second):
		t.Fatal("snapshot never arrived")
	}
}

func TestReporterSwallowsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, "d1", time.Second, zerolog.Nop())
	// Must not panic or block.
	rep.Report(playback.Snapshot{})
	time.Sleep(20 * time.Millisecond)
}

func TestPollerDispatchesQueuedCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/devices/d1/commands", r.URL.Path)
		w.Write([]byte(`[{"type": "pause"}, {"type": "goto_slide", "slideIndex": 3}]`))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []playback.Command
	p := NewPoller(srv.URL, "d1", time.Second, clockwork.NewFakeClock(), func(cmd playback.Command) {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
	}, zerolog.Nop())

	p.PollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, playback.CommandPause, got[0].Type)
	assert.Equal(t, playback.CommandGotoSlide, got[1].Type)
	assert.Equal(t, 3, got[1].SlideIndex)
}

func TestPollerIgnoresEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	called := false
	p := NewPoller(srv.URL, "d1", time.Second, clockwork.NewFakeClock(), func(playback.Command) {
		called = true
	}, zerolog.Nop())

	p.PollOnce(context.Background())
	assert.False(t, called)
}

func TestPollerSurvivesUnreachableServer(t *testing.T) {
	p := NewPoller("http://127.0.0.1:1", "d1", 50*time.Millisecond, clockwork.NewFakeClock(), func(playback.Command) {
		t.Fatal("dispatch on failed poll")
	}, zerolog.Nop())

	p.PollOnce(context.Background())
}

func TestPollerStartStop(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	p := NewPoller(srv.URL, "d1", time.Second, clock, func(playback.Command) {}, zerolog.Nop())
	p.Start()
	defer p.Stop()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)

	select {
	case <-hits:
	case <-time.After(time.Second):
		t.Fatal("poller never polled after one interval")
	}
}
