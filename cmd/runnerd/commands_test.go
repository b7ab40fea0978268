//go:build !windows

package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiercefairy/PortOS-sub006/internal/events"
	"github.com/fiercefairy/PortOS-sub006/internal/jobdir"
	"github.com/fiercefairy/PortOS-sub006/internal/manager"
	"github.com/fiercefairy/PortOS-sub006/internal/server"
	"github.com/fiercefairy/PortOS-sub006/internal/state"
	"github.com/fiercefairy/PortOS-sub006/pkg/client"
)

func startDaemon(t *testing.T) (string, *manager.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	st, err := state.Open(filepath.Join(root, "state.json"), nil)
	require.NoError(t, err)
	dir, err := jobdir.New(filepath.Join(root, "jobs"))
	require.NoError(t, err)
	hub := events.NewHub()
	mgr := manager.New(st, dir, hub, manager.Options{AllowedCommands: []string{"sh", "sleep"}})
	srv := httptest.NewServer(server.NewRouter(mgr, hub, "/", server.Options{}).Handler())
	t.Cleanup(func() {
		for _, j := range mgr.ListActive() {
			_, _ = mgr.ForceKill(j.JobID)
		}
		hub.Close()
		srv.Close()
	})
	return srv.URL, mgr
}

func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", url, "--api-timeout", "5s"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSpawnWaitPrintsOutput(t *testing.T) {
	url, _ := startDaemon(t)
	waitPoll = 20 * time.Millisecond

	out, err := runCLI(t, url, "spawn", "--id", "cli-1", "--wait", "--", "sh", "-c", "echo hello-cli")
	require.NoError(t, err)
	assert.Equal(t, "hello-cli\n", out)

	out, err = runCLI(t, url, "output", "cli-1")
	require.NoError(t, err)
	assert.Equal(t, "hello-cli\n", out)
}

func TestSpawnRequiresID(t *testing.T) {
	url, _ := startDaemon(t)
	_, err := runCLI(t, url, "spawn", "--", "sh", "-c", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestRunPassesInputAndEnv(t *testing.T) {
	url, _ := startDaemon(t)
	waitPoll = 20 * time.Millisecond

	out, err := runCLI(t, url, "run", "--wait", "--input", "piped", "--env", "GREETING=hey",
		"--", "sh", "-c", `read l; echo "$GREETING $l"`)
	require.NoError(t, err)
	assert.Equal(t, "hey piped\n", out)
}

func TestListStatsTerminate(t *testing.T) {
	url, mgr := startDaemon(t)

	out, err := runCLI(t, url, "spawn", "--id", "long", "--", "sleep", "30")
	require.NoError(t, err)
	var res client.SpawnResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "long", res.JobID)
	assert.Positive(t, res.PID)

	out, err = runCLI(t, url, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "JOB")
	assert.Contains(t, out, "long")

	out, err = runCLI(t, url, "list", "--json")
	require.NoError(t, err)
	var jobs []client.ActiveJob
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)

	out, err = runCLI(t, url, "stats", "long")
	require.NoError(t, err)
	var st client.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Alive)

	out, err = runCLI(t, url, "terminate", "long")
	require.NoError(t, err)
	assert.Equal(t, "terminating long\n", out)
	require.Eventually(t, func() bool { return mgr.Count() == 0 }, 5*time.Second, 20*time.Millisecond)

	_, err = runCLI(t, url, "terminate", "long")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestKillAndTerminateAll(t *testing.T) {
	url, mgr := startDaemon(t)
	for _, id := range []string{"a", "b"} {
		_, err := runCLI(t, url, "spawn", "--id", id, "--", "sleep", "30")
		require.NoError(t, err)
	}

	out, err := runCLI(t, url, "kill", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "SIGKILL")

	out, err = runCLI(t, url, "terminate-all")
	require.NoError(t, err)
	assert.Equal(t, "terminating 1 job(s)\n", out)
	require.Eventually(t, func() bool { return mgr.Count() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestHealthCommand(t *testing.T) {
	url, _ := startDaemon(t)
	out, err := runCLI(t, url, "health")
	require.NoError(t, err)
	var h client.Health
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.Equal(t, "ok", h.Status)
}

func TestRejectedCommandSurfacesCode(t *testing.T) {
	url, _ := startDaemon(t)
	_, err := runCLI(t, url, "spawn", "--id", "x", "--", "rm", "-rf", "/")
	require.Error(t, err)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_COMMAND", apiErr.Code)
}

func TestParseEnv(t *testing.T) {
	m, err := parseEnv([]string{"A=1", "B=x=y", "C="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, m)

	m, err = parseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	for _, bad := range []string{"NOEQ", "=v", " =v"} {
		_, err := parseEnv([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestReadInput(t *testing.T) {
	s, err := readInput("literal")
	require.NoError(t, err)
	assert.Equal(t, "literal", s)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = orig })
	_, _ = w.WriteString("from stdin")
	require.NoError(t, w.Close())

	s, err = readInput("-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", s)
}

func TestServeRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nlisten="), 0o600))
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve", path})
	err := root.Execute()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "error loading config"))
}
