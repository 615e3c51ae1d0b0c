package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommandC executes a cobra command and captures its output.
func executeCommandC(root *cobra.Command, args ...string) (string, string, error) {
	actualStdout := new(bytes.Buffer)
	actualStderr := new(bytes.Buffer)
	root.SetOut(actualStdout)
	root.SetErr(actualStderr)
	root.SetArgs(args)

	err := root.Execute()

	return actualStdout.String(), actualStderr.String(), err
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/presentations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": "p1", "name": "Lobby Loop", "slideCount": 3},
			{"id": "p2", "name": "Cafeteria Menu", "slideCount": 8}
		]`))
	})
	mux.HandleFunc("/api/presentations/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "p1",
			"name": "Lobby Loop",
			"slides": [
				{"id": "s1", "imageUrl": "http://img/1.png", "durationSeconds": 5},
				{"id": "s2", "imageUrl": "http://img/2.png", "durationSeconds": 10}
			]
		}`))
	})
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "dev-42", "name": "lobby-tv", "presentationId": "p1"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRootHelp(t *testing.T) {
	stdout, stderr, err := executeCommandC(NewRootCmd(), "--help")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "slidekiosk-cli [command]")
}

func TestPresentationsCommand(t *testing.T) {
	srv := newBackend(t)

	stdout, stderr, err := executeCommandC(NewRootCmd(), "--server", srv.URL, "presentations")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "p1  Lobby Loop (3 slides)")
	assert.Contains(t, stdout, "p2  Cafeteria Menu (8 slides)")
}

func TestPresentationCommand(t *testing.T) {
	srv := newBackend(t)

	stdout, stderr, err := executeCommandC(NewRootCmd(), "--server", srv.URL, "presentation", "p1")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "p1: Lobby Loop")
	assert.Contains(t, stdout, "s1")
	assert.Contains(t, stdout, "5s")
}

func TestPresentationCommandNotFound(t *testing.T) {
	srv := newBackend(t)

	_, _, err := executeCommandC(NewRootCmd(), "--server", srv.URL, "presentation", "missing")
	require.Error(t, err)
}

func TestRegisterAndDeviceCommands(t *testing.T) {
	srv := newBackend(t)
	dbDir := t.TempDir()

	stdout, stderr, err := executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", dbDir, "register", "lobby-tv")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Registered device dev-42 as 'lobby-tv'")

	stdout, stderr, err = executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", dbDir, "device")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Device:       dev-42")
	assert.Contains(t, stdout, "Presentation: p1")
}

func TestDeviceCommandWithoutRegistration(t *testing.T) {
	srv := newBackend(t)

	_, _, err := executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", t.TempDir(), "device")
	require.Error(t, err)
}

func TestAssignCommand(t *testing.T) {
	srv := newBackend(t)
	dbDir := t.TempDir()

	_, _, err := executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", dbDir, "register", "lobby-tv")
	require.NoError(t, err)

	stdout, stderr, err := executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", dbDir, "assign", "p1")
	require.NoError(t, err, "stdout: %s, stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Assigned presentation p1")

	stdout, _, err = executeCommandC(NewRootCmd(),
		"--server", srv.URL, "--db-dir", dbDir, "device")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Presentation: p1")
}
