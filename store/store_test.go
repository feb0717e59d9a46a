package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahsin716/pimc"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)

	s, err := Open(filepath.Join(t.TempDir(), "history.sqlite3"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func runResult(id string, samples, hits uint64) pimc.RunResult {
	return pimc.RunResult{
		RunID:            id,
		Backend:          "cpu",
		PiEstimate:       float64(hits) / float64(samples) * 4,
		HitsInside:       hits,
		TotalSamples:     samples,
		RequestedSamples: samples,
		ElapsedMillis:    10,
		Accuracy:         1_000,
		Tier:             pimc.TierEven,
		CapExceeded:      true,
		Workers:          make([]pimc.WorkerStats, 4),
	}
}

func TestStore_Open_CreatesTable(t *testing.T) {
	s := setupTestStore(t)

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='runs';").Scan(&name)
	require.NoError(t, err, "Table should be created")
	assert.Equal(t, "runs", name)

	_, err = os.Stat(s.Path())
	assert.NoError(t, err, "Database file should exist")
}

func TestStore_RecordAndList(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Record(runResult("a", 1_000, 785), nil))
	require.NoError(t, s.Record(runResult("b", 2_000, 1_571), pimc.ErrTimeout))

	records, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]Record{}
	for _, r := range records {
		byID[r.RunID] = r
	}

	a := byID["a"]
	assert.Equal(t, int64(1_000), a.Samples)
	assert.Equal(t, int64(785), a.Hits)
	assert.Equal(t, int64(4), a.Workers)
	assert.Equal(t, "even", a.Tier)
	assert.True(t, a.CapExceeded)
	assert.False(t, a.Partial)
	assert.Empty(t, a.Error)
	assert.InDelta(t, 3.14, a.Pi(), 1e-9)

	assert.Equal(t, "pimc: run timed out", byID["b"].Error)
}

func TestStore_ListNewestFirstWithLimit(t *testing.T) {
	s := setupTestStore(t)

	base := time.Now().UnixMilli()
	for i, id := range []string{"old", "mid", "new"} {
		rec := NewRecord(runResult(id, 10, 7), nil)
		rec.StartedAt = base + int64(i)*1_000
		require.NoError(t, s.Insert(rec))
	}

	records, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].RunID)
	assert.Equal(t, "mid", records[1].RunID)
}

func TestStore_FlushesWhenBatchFills(t *testing.T) {
	s := setupTestStore(t, WithBatchSize(2))

	require.NoError(t, s.Record(runResult("a", 10, 7), nil))
	assert.Len(t, s.pending, 1)

	require.NoError(t, s.Record(runResult("b", 10, 7), nil))
	assert.Empty(t, s.pending)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite3")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(runResult("kept", 10, 7), nil))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].RunID)
}

func TestStore_Closed(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, errors.Is(s.Insert(Record{}), ErrClosed))
	_, err := s.List(1)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, s.Flush())
}

func TestRecord_EmptyRun(t *testing.T) {
	rec := NewRecord(pimc.RunResult{PiEstimate: math.NaN()}, nil)

	assert.True(t, math.IsNaN(rec.Pi()))
	assert.Equal(t, "single", rec.Tier)
	assert.WithinDuration(t, time.Now(), rec.Started(), time.Second)
}

func TestOpen_DefaultName(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	assert.Regexp(t, `^pimc_runs_[0-9a-v]{20}\.sqlite3$`, s.Path())
}
