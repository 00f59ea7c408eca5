package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqworkbench/dqsync/pkg/types"
)

func openStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(i int) types.RunSummary {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	return types.RunSummary{
		ID:         fmt.Sprintf("run-%02d", i),
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Counters:   types.Counters{Valid: i},
		Stages:     []types.StageSummary{{Name: "anc", Kind: "min_max"}},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t, 10)
	ctx := context.Background()

	in := run(1)
	in.FirstError = "anc: boom"
	require.NoError(t, s.Record(ctx, in))

	got, ok, err := s.Get(ctx, "run-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, 1, got.Counters.Valid)
	assert.Equal(t, "anc: boom", got.FirstError)
	assert.True(t, in.StartedAt.Equal(got.StartedAt))

	_, ok, err = s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecent_NewestFirstAndPruned(t *testing.T) {
	s := openStore(t, 3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Record(ctx, run(i)))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "run-05", recent[0].ID)
	assert.Equal(t, "run-03", recent[2].ID)

	recent, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecord_Replace(t *testing.T) {
	s := openStore(t, 5)
	ctx := context.Background()
	r := run(1)
	require.NoError(t, s.Record(ctx, r))
	r.Counters.Valid = 99
	require.NoError(t, s.Record(ctx, r))

	got, ok, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 99, got.Counters.Valid)
}
