package store

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *DeviceStore {
	t.Helper()
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadWithoutIdentity(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoIdentity)
}

func TestSaveAndLoadIdentity(t *testing.T) {
	s := openTestStore(t)

	want := Identity{
		DeviceID:     "dev-1",
		Name:         "lobby-tv",
		RegisteredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSetAssignment(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Identity{DeviceID: "dev-1", Name: "lobby-tv"}))
	require.NoError(t, s.SetAssignment("p42"))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "p42", got.PresentationID)
	assert.Equal(t, "dev-1", got.DeviceID, "assignment update preserves identity")
}

func TestSetAssignmentRequiresIdentity(t *testing.T) {
	s := openTestStore(t)
	require.ErrorIs(t, s.SetAssignment("p1"), ErrNoIdentity)
}

func TestIdentitySurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Save(Identity{DeviceID: "dev-9", Name: "atrium"}))
	require.NoError(t, s.Close())

	s2, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev-9", got.DeviceID)
}
