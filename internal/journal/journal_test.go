package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tally/internal/db"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, d.Migrate())
	t.Cleanup(func() { d.Close() })
	return NewStore(d)
}

func TestBeginFinishRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Begin(ctx, "r1", "how much did I spend", "spending"))
	require.NoError(t, store.Begin(ctx, "r2", "monthly overview", "overview"))
	require.NoError(t, store.Finish(ctx, "r1", StatusCompleted, "You spent 42."))

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	require.Equal(t, StatusCompleted, byID["r1"].Status)
	require.Equal(t, "You spent 42.", byID["r1"].Answer)
	require.NotNil(t, byID["r1"].FinishedAt)
	require.Equal(t, StatusRunning, byID["r2"].Status)
	require.Nil(t, byID["r2"].FinishedAt)
}

func TestRecentLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Begin(ctx, id, "q", "overview"))
	}

	runs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
