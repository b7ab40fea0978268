package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fiercefairy/PortOS-sub006/internal/history"
)

func setupClickHouse(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword(""),
		tcclickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("terminate clickhouse container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func TestClickHouseSinkIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	addr := setupClickHouse(ctx, t)

	sink, err := New(Options{Addr: addr, Table: "job_history"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	require.NoError(t, sink.EnsureTable(ctx))

	now := time.Now().UTC()
	rec := history.Record{JobID: "ch-1", Kind: "run", PID: 77, ExitCode: -1, Signal: "SIGKILL", DurationMs: 900}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventCompleted, OccurredAt: now, Record: rec}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventOrphaned, OccurredAt: now, Record: history.Record{JobID: "ch-1", Orphaned: true, ExitCode: -1}}))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM job_history WHERE job_id = ?", "ch-1").Scan(&count))
	assert.Equal(t, uint64(2), count)
}

func TestClickHouseSinkConnectionError(t *testing.T) {
	_, err := New(Options{Addr: "invalid-host.invalid:9000"})
	assert.Error(t, err)
}
