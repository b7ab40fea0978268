package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiercefairy/PortOS-sub006/internal/history"
)

func TestSinkSendIndexesByJob(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotUser   string
		gotBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(Options{BaseURL: server.URL + "/", Index: "jobs", Username: "admin", Password: "pw"})
	rec := history.Record{JobID: "j1", PID: 12345, ExitCode: 2}
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventCompleted, OccurredAt: time.Now().UTC(), Record: rec}))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/jobs/_doc/j1:completed", gotPath)
	assert.Equal(t, "admin", gotUser)

	var body map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "completed", body["type"])
	record, ok := body["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "j1", record["jobId"])
	assert.Equal(t, float64(2), record["exitCode"])
}

func TestSinkSendWithoutAuth(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, hasAuth = r.BasicAuth()
	}))
	defer server.Close()

	e := history.Event{Type: history.EventOrphaned, Record: history.Record{JobID: "o"}}
	require.NoError(t, New(Options{BaseURL: server.URL, Index: "jobs"}).Send(context.Background(), e))
	assert.False(t, hasAuth)
	assert.Equal(t, "o:orphaned", DocumentID(e))
}

func TestSinkSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(Options{BaseURL: server.URL, Index: "jobs"}).Send(context.Background(), history.Event{Type: history.EventCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch sink status 400")
}
