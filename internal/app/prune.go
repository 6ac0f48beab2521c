package app

import (
	"context"
	"errors"
	"time"
)

// Prune deletes persisted samples older than the given age.
func (a *App) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("retention must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, errors.New("database not configured; nothing to prune")
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.Logger.Info().Time("cutoff", cutoff).Int64("deleted", deleted).Msg("pruned samples")
	return deleted, nil
}
