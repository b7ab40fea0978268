//go:build !windows

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
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
	"github.com/fiercefairy/PortOS-sub006/internal/manager"
	"github.com/fiercefairy/PortOS-sub006/internal/state"
)

func testConfig(t *testing.T, extra string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runnerd.toml")
	body := `
[server]
listen = "127.0.0.1:0"

[storage]
data_dir = "data"

[supervisor]
allowed_commands = ["sh", "sleep"]
orphan_check_delay = "50ms"
drain_timeout = "2s"

[[history]]
enabled = true
dsn = "` + filepath.Join(dir, "history.db") + `"
` + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestSupervisorHandlerServesAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sup, err := New(testConfig(t, "[metrics]\nenabled = true\n"), nil)
	require.NoError(t, err)
	defer sup.Shutdown(context.Background())

	srv := httptest.NewServer(sup.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestSupervisorReconcilesOrphansOnStart(t *testing.T) {
	cfg := testConfig(t, "")
	st, err := state.Open(cfg.Storage.StateFile, nil)
	require.NoError(t, err)
	require.NoError(t, st.RecordSpawn("lost-1", state.Entry{PID: 1 << 30, Kind: "agent"}))
	require.NoError(t, st.RecordSpawn("lost-2", state.Entry{PID: 1 << 30, Kind: "run"}))

	sup, err := New(cfg, nil)
	require.NoError(t, err)
	defer sup.Shutdown(context.Background())
	sub := sup.Subscribe(16)

	sup.Start()
	select {
	case ev := <-sub.Events():
		require.Equal(t, events.TypeOrphanBatch, ev.Type)
		assert.Equal(t, 2, ev.Data.(events.OrphanBatch).Count)
	case <-time.After(5 * time.Second):
		t.Fatal("no orphan batch")
	}

	reopened, err := state.Open(cfg.Storage.StateFile, nil)
	require.NoError(t, err)
	assert.Empty(t, reopened.Processes())
	assert.EqualValues(t, 2, reopened.Stats().Orphaned)
}

func TestSupervisorServeShutsDownJobs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sup, err := New(testConfig(t, ""), nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.serve(ctx, ln, false, nil) }()

	_, err = sup.Manager().Spawn(SpawnRequest{JobID: "bg", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	resp, err := http.Get("http://" + ln.Addr().String() + "/agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, 0, sup.Manager().Count())
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:xxxxx@h/db", redactDSN("postgres://u:secret@h/db"))
	assert.Equal(t, "/tmp/h.db", redactDSN("/tmp/h.db"))
}

func TestWatchConfigReloadsAllowList(t *testing.T) {
	cfg := testConfig(t, "")
	sup, err := New(cfg, nil)
	require.NoError(t, err)
	defer sup.Shutdown(context.Background())
	require.NoError(t, sup.WatchConfig())

	body, err := os.ReadFile(cfg.Source())
	require.NoError(t, err)
	edited := strings.Replace(string(body), `allowed_commands = ["sh", "sleep"]`, `allowed_commands = ["sleep"]`, 1)
	require.NoError(t, os.WriteFile(cfg.Source(), []byte(edited), 0o600))

	assert.Eventually(t, func() bool {
		_, err := sup.Manager().Spawn(SpawnRequest{JobID: "reload-probe", Command: "sh", Args: []string{"-c", "true"}})
		return errors.Is(err, manager.ErrInvalidCommand)
	}, 5*time.Second, 50*time.Millisecond)
}
