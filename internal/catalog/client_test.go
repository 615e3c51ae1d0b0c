package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second, zerolog.Nop())
}

func TestLoadPresentation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/presentations/p1", r.URL.Path)
		w.Write([]byte(`{
			"id": "p1",
			"name": "Lobby Loop",
			"slides": [
				{"id": "s1", "imageUrl": "http://img/1.png", "durationSeconds": 5},
				{"id": "s2", "imageUrl": "http://img/2.png", "durationSeconds": 10}
			]
		}`))
	}))

	pres, err := c.LoadPresentation(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lobby Loop", pres.Name)
	require.Equal(t, 2, pres.SlideCount())
	assert.Equal(t, 5*time.Second, pres.Slides[0].Duration())
}

func TestLoadPresentationNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.LoadPresentation(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadPresentationRejectsEmptySequence(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "p1", "name": "Empty", "slides": []}`))
	}))

	_, err := c.LoadPresentation(context.Background(), "p1")
	require.Error(t, err)
}

func TestListPresentations(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/presentations", r.URL.Path)
		w.Write([]byte(`[{"id": "p1", "name": "Lobby Loop", "slideCount": 4}]`))
	}))

	list, err := c.ListPresentations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].SlideCount)
}

func TestRegisterDevice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/devices", r.URL.Path)

		var dev Device
		require.NoError(t, json.NewDecoder(r.Body).Decode(&dev))
		assert.NotEmpty(t, dev.ID, "client generates the device identifier")
		assert.Equal(t, "lobby-tv", dev.Name)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(dev)
	}))

	dev, err := c.RegisterDevice(context.Background(), "lobby-tv")
	require.NoError(t, err)
	assert.Equal(t, "lobby-tv", dev.Name)
	assert.NotEmpty(t, dev.ID)
}

func TestGetDeviceSurfacesServerErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.GetDevice(context.Background(), "d1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
