package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tally/internal/db"
	"tally/internal/event"
	"tally/internal/runstate"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	require.NoError(t, d.Migrate())
	t.Cleanup(func() { d.Close() })
	return NewStore(d)
}

func TestSaveLoadClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	snap := Snapshot{
		Step:            "Reviewing your month",
		ToolNames:       []string{"charts.summary", "kpis"},
		ActiveToolNames: []string{"kpis"},
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, &snap, loaded)

	// Saving again overwrites the single slot.
	snap.ActiveToolNames = nil
	require.NoError(t, store.Save(ctx, snap))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.ActiveToolNames)

	require.NoError(t, store.Clear(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestObserverMirrorsAndClears(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	obs := NewObserver(store)

	s := runstate.New()
	planner, err := event.New(event.TypePlanner, event.Planner{
		Step:  "Digging into spending",
		Tools: []string{"kpis"},
	})
	require.NoError(t, err)
	s.Apply(planner)
	obs.StateChanged(ctx, s)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "Digging into spending", loaded.Step)
	require.Equal(t, []string{"kpis"}, loaded.ToolNames)

	finished, err := event.New(event.TypeRunFinished, event.RunFinished{TS: 1})
	require.NoError(t, err)
	s.Apply(finished)
	obs.StateChanged(ctx, s)

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestObserverClearsOnNewRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	obs := NewObserver(store)

	require.NoError(t, store.Save(ctx, Snapshot{Step: "stale"}))
	obs.RunStarting(ctx)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}
