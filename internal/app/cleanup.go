package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Cleanup removes ended schedules older than the retention window.
func (a *App) Cleanup(ctx context.Context, opts CleanupOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot cleanup")
	}
	if closeStore != nil {
		defer closeStore()
	}

	schedules := a.newScheduleService(store, nil, nil)
	removed, err := schedules.CleanupOld(ctx, opts.Days)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "removed %d ended schedules\n", removed)
	return nil
}
