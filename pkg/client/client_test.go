//go:build !windows

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
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
)

func newDaemon(t *testing.T) (*Client, *events.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	st, err := state.Open(filepath.Join(root, "state.json"), nil)
	require.NoError(t, err)
	dir, err := jobdir.New(filepath.Join(root, "jobs"))
	require.NoError(t, err)
	hub := events.NewHub()
	mgr := manager.New(st, dir, hub, manager.Options{AllowedCommands: []string{"sh", "sleep"}})
	srv := httptest.NewServer(server.NewRouter(mgr, hub, "/api", server.Options{}).Handler())
	t.Cleanup(func() {
		for _, j := range mgr.ListActive() {
			_, _ = mgr.ForceKill(j.JobID)
		}
		hub.Close()
		srv.Close()
	})
	return New(Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second}), hub
}

func TestClientLifecycle(t *testing.T) {
	c, hub := newDaemon(t)
	ctx := context.Background()
	require.True(t, c.IsReachable(ctx))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	completed := make(chan CompletedEvent, 1)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- c.Events(ctx, func(e Event) error {
			if e.Type != EventCompleted {
				return nil
			}
			ce, err := e.Completed()
			if err != nil {
				return err
			}
			completed <- ce
			return ErrStop
		})
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, err := c.Spawn(ctx, SpawnRequest{JobID: "c1", Command: "sh", Args: []string{"-c", "echo from-client"}})
	require.NoError(t, err)
	assert.Equal(t, "c1", res.JobID)

	select {
	case ce := <-completed:
		assert.Equal(t, "c1", ce.JobID)
		assert.True(t, ce.Success)
	case <-ctx.Done():
		t.Fatal("no completed event")
	}
	require.NoError(t, <-streamErr)

	out, err := c.Output(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "from-client\n", out)
}

func TestClientJobOperations(t *testing.T) {
	c, _ := newDaemon(t)
	ctx := context.Background()

	_, err := c.Spawn(ctx, SpawnRequest{JobID: "long", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	run, err := c.Run(ctx, RunRequest{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)

	jobs, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	st, err := c.Stats(ctx, "long")
	require.NoError(t, err)
	assert.True(t, st.Alive)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ActiveJobCount)
	assert.Equal(t, 1, h.ActiveRunCount)

	kr, err := c.Kill(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "SIGKILL", kr.Signal)

	require.NoError(t, c.Terminate(ctx, run.RunID))
	n, err := c.TerminateAll(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 1)
}

func TestClientErrors(t *testing.T) {
	c, _ := newDaemon(t)
	ctx := context.Background()

	_, err := c.Stats(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.Spawn(ctx, SpawnRequest{JobID: "x", Command: "rm"})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, server.CodeInvalidCommand, ae.Code)
}

func TestIsReachableFalse(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestEventDecodeWrongType(t *testing.T) {
	e := Event{Type: EventOutput, Data: []byte(`{"text":"hi"}`)}
	_, err := e.Completed()
	assert.Error(t, err)
	o, err := e.Output()
	require.NoError(t, err)
	assert.Equal(t, "hi", o.Text)
}
