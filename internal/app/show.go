package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recently synced tokens.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show tokens")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListTokens(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no tokens found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tName\tChain\tStatus\tType\tEst.Value\tPoints\tx\tUpdated (UTC)")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			record.Symbol,
			sanitizeInline(record.Name),
			record.Chain,
			record.Status,
			record.Type,
			formatDecimal(record.EstimatedValue, 2),
			record.RequiredPoints,
			record.Multiplier,
			record.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}

// ShowSchedules prints upcoming schedules within the given day window.
func (a *App) ShowSchedules(ctx context.Context, opts ScheduleShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show schedules")
	}
	if closeStore != nil {
		defer closeStore()
	}

	schedules := a.newScheduleService(store, nil, nil)
	records, err := schedules.UpcomingSchedules(ctx, opts.Days)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no schedules found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Token\tScheduled (UTC)\tStatus\tType\tPoints\tEst.Value\tNotified")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\t%t\n",
			record.Token,
			record.ScheduledTime.UTC().Format(time.RFC3339),
			record.Status,
			record.Type,
			record.Points,
			formatDecimal(record.EstimatedValue, 2),
			record.Notified,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
