package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayHeader = "block,energy_kwh,occupancy,temperature,ts\n"

func writeStream(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func appendStream(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestReplay_ReadsAppendedRowsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.csv")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeStream(t, path, replayHeader+
		"block_a,9.0,50,27,2026-02-26T10:00:00Z\n"+
		"block_a,9.1,52,27,2026-02-26T10:00:05Z\n", base)

	r := NewReplay(path, nil)

	events := r.Poll()
	require.Len(t, events, 2)
	assert.Equal(t, "csv", events[0].Source)
	assert.Equal(t, "block_a", events[0].Reading.ZoneID)
	assert.InDelta(t, 9.0, events[0].Reading.EnergyKWh, 0.001)
	assert.Equal(t, time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC), events[0].Reading.TS)

	// Unchanged file yields nothing.
	assert.Empty(t, r.Poll())

	appendStream(t, path, "block_a,12.5,10,26,2026-02-26T10:00:30Z\n", base.Add(2*time.Second))

	events = r.Poll()
	require.Len(t, events, 1)
	assert.InDelta(t, 12.5, events[0].Reading.EnergyKWh, 0.001)
}

func TestReplay_RotationRestartsFromTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.csv")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeStream(t, path, replayHeader+
		"block_a,9.0,50,27,2026-02-26T10:00:00Z\n"+
		"block_a,9.1,52,27,2026-02-26T10:00:05Z\n"+
		"block_a,9.2,51,27,2026-02-26T10:00:10Z\n", base)

	r := NewReplay(path, nil)
	require.Len(t, r.Poll(), 3)

	// Shorter rewrite means the stored offset is past the end.
	writeStream(t, path, replayHeader+
		"block_b,7.5,30,25,2026-02-26T11:00:00Z\n", base.Add(2*time.Second))

	events := r.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, "block_b", events[0].Reading.ZoneID)
	assert.InDelta(t, 7.5, events[0].Reading.EnergyKWh, 0.001)
}

func TestReplay_SkipsRowsWithoutBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.csv")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeStream(t, path, replayHeader+
		",9.0,50,27,2026-02-26T10:00:00Z\n"+
		"block_a,bad,50,27,2026-02-26T10:00:00Z\n"+
		"block_a,9.1,52,27,2026-02-26T10:00:05Z\n", base)

	r := NewReplay(path, nil)

	events := r.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, "block_a", events[0].Reading.ZoneID)
	assert.InDelta(t, 9.1, events[0].Reading.EnergyKWh, 0.001)
}

func TestReplay_MissingFile(t *testing.T) {
	r := NewReplay(filepath.Join(t.TempDir(), "absent.csv"), nil)
	assert.Empty(t, r.Poll())
}
