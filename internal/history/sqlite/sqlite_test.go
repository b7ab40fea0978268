package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiercefairy/PortOS-sub006/internal/history"
)

func TestSQLiteSinkSend(t *testing.T) {
	sink, err := New("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	rec := history.Record{JobID: "j1", TaskID: "t1", Kind: "agent", PID: 4242, ExitCode: 0, Success: true, DurationMs: 1500, OutputByteSize: 5, StartedAt: now.Add(-2 * time.Second), CompletedAt: now}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventCompleted, OccurredAt: now, Record: rec}))

	orphan := history.Record{JobID: "j2", PID: 9, ExitCode: -1, Orphaned: true}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventOrphaned, OccurredAt: now, Record: orphan}))

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_history").Scan(&count))
	assert.Equal(t, 2, count)

	var event string
	var exitCode int
	var success bool
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT event, exit_code, success FROM job_history WHERE job_id = ?", "j2").Scan(&event, &exitCode, &success))
	assert.Equal(t, "orphaned", event)
	assert.Equal(t, -1, exitCode)
	assert.False(t, success)
}

func TestSQLiteSinkMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventCompleted, OccurredAt: time.Now(), Record: history.Record{JobID: "m"}}))
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
