package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := Open(path, nil)
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, Version, snap.Version)
	assert.Empty(t, snap.Processes)
	assert.Equal(t, Stats{}, snap.Stats)
}

func TestOpenCorruptFileIsQuarantined(t *testing.T) {
	for name, content := range map[string]string{
		"doubled braces": "{{}}",
		"truncated":      `{"version":1,"processes":{"a":{"pid":`,
		"empty":          "",
		"future version": `{"version":7,"processes":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "state.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			s, err := Open(path, nil)
			require.NoError(t, err)
			assert.Empty(t, s.Processes())

			matches, err := filepath.Glob(path + ".corrupt-*")
			require.NoError(t, err)
			require.Len(t, matches, 1)
			b, err := os.ReadFile(matches[0])
			require.NoError(t, err)
			assert.Equal(t, content, string(b))

			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestMutationsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, nil)
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordSpawn("j1", Entry{PID: 100, TaskID: "t1", Kind: "agent", StartedAt: started, StartUnix: 42}))
	require.NoError(t, s.RecordSpawn("j2", Entry{PID: 200, Kind: "run", StartedAt: started}))
	require.NoError(t, s.RecordCompletion("j1", 100, true))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Spawned: 2, Completed: 1, Failed: 1}, loaded.Stats)
	require.Contains(t, loaded.Processes, "j2")
	assert.NotContains(t, loaded.Processes, "j1")
	assert.Equal(t, 200, loaded.Processes["j2"].PID)

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, loaded, reopened.Snapshot())
}

func TestRecordCompletionIgnoresReusedJobID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordSpawn("j", Entry{PID: 2}))
	require.NoError(t, s.RecordCompletion("j", 1, false))
	assert.Contains(t, s.Processes(), "j")
	assert.Equal(t, int64(1), s.Stats().Completed)

	require.NoError(t, s.RemoveProcess("j", 2))
	assert.Empty(t, s.Processes())
}

func TestRecordOrphansSingleRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, nil)
	require.NoError(t, err)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordSpawn(id, Entry{PID: 1000 + i}))
	}
	removed, err := s.RecordOrphans(map[string]int{"a": 1000, "c": 1002})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, removed)
	removed, err = s.RecordOrphans(nil)
	require.NoError(t, err)
	assert.Empty(t, removed)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Stats.Orphaned)
	assert.Len(t, loaded.Processes, 1)
	assert.Contains(t, loaded.Processes, "b")
}

func TestRecordOrphansKeepsRespawnedEntry(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordSpawn("dead", Entry{PID: 10}))
	require.NoError(t, s.RecordSpawn("reused", Entry{PID: 11}))
	// "reused" was checked while it held PID 11 and has since been spawned again.
	require.NoError(t, s.RecordSpawn("reused", Entry{PID: 42}))

	removed, err := s.RecordOrphans(map[string]int{"dead": 10, "reused": 11, "gone": 12})
	require.NoError(t, err)
	assert.Equal(t, []string{"dead"}, removed)
	require.Contains(t, s.Processes(), "reused")
	assert.Equal(t, 42, s.Processes()["reused"].PID)
	assert.Equal(t, int64(1), s.Stats().Orphaned)
}

func TestLoadRepairsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"processes":{"ok":{"pid":5},"bad":{"pid":0}},"stats":{"spawned":3}}`), 0o600))
	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Version, st.Version)
	assert.Len(t, st.Processes, 1)
	assert.Equal(t, int64(3), st.Stats.Spawned)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordSpawn("x", Entry{PID: 1}))
	snap := s.Snapshot()
	delete(snap.Processes, "x")
	assert.Contains(t, s.Processes(), "x")
}

func TestConcurrentMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('a'+i/26))
			_ = s.RecordSpawn(id, Entry{PID: i + 1})
			_ = s.RecordCompletion(id, i+1, i%2 == 0)
		}(i)
	}
	wg.Wait()

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(50), loaded.Stats.Spawned)
	assert.Equal(t, int64(50), loaded.Stats.Completed)
	assert.Equal(t, int64(25), loaded.Stats.Failed)
	assert.Empty(t, loaded.Processes)
}
