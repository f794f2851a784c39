package app

import (
	"context"
	"errors"
)

// SyncOnce runs a single token sync and schedule derivation pass, then
// exits. Intended for cron-driven deployments without the long-running
// service.
func (a *App) SyncOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sync")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alpha := a.newAlphaService(store)
	result, err := alpha.SyncToDatabase(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("source", result.Source).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("errors", result.Errors).
		Msg("token sync finished")

	schedules := a.newScheduleService(store, alpha, nil)
	outcome, err := schedules.SyncFromAlpha(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("advanced", outcome.Advanced).
		Int("errors", outcome.Errors).
		Msg("schedule sync finished")
	return nil
}
