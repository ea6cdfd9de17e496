package snapshot

import (
	"context"
	"log/slog"

	"tally/internal/runstate"
)

// Observer subscribes to run-state transitions and mirrors them to the
// store. Keeping persistence out here leaves the fold itself pure.
type Observer struct {
	store *Store
}

func NewObserver(store *Store) *Observer {
	return &Observer{store: store}
}

// RunStarting clears any stale snapshot left behind by a previous run.
func (o *Observer) RunStarting(ctx context.Context) {
	if err := o.store.Clear(ctx); err != nil {
		slog.Warn("clearing stale thinking snapshot", "error", err)
	}
}

// StateChanged mirrors the state after one fold. Terminal (including
// cancelled) deletes the snapshot; anything else overwrites it.
func (o *Observer) StateChanged(ctx context.Context, s *runstate.State) {
	if s.Terminal() {
		if err := o.store.Clear(ctx); err != nil {
			slog.Warn("clearing thinking snapshot", "error", err)
		}
		return
	}
	if err := o.store.Save(ctx, FromState(s)); err != nil {
		slog.Warn("saving thinking snapshot", "error", err)
	}
}
