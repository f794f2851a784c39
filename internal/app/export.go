package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"alphawatch/internal/storage"
)

// Export renders sync history as CSV and/or a PNG chart of per-run
// created/updated/error counts.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Sync.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	logs, err := store.ListSyncLogsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		a.Logger.Info().Msg("no sync logs found for export window")
		return nil
	}

	downsampled := downsampleLogs(logs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(logs)).Int("exported", len(downsampled)).Msg("exporting sync logs")

	if opts.CSVPath != "" {
		if err := writeLogsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeLogsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleLogs(logs []storage.SyncLogRecord, max int) []storage.SyncLogRecord {
	if max <= 0 || len(logs) <= max {
		return logs
	}

	result := make([]storage.SyncLogRecord, 0, max)
	step := float64(len(logs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(logs) {
			idx = len(logs) - 1
		}
		result = append(result, logs[idx])
	}
	return result
}

func writeLogsCSV(path string, logs []storage.SyncLogRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ran_at", "kind", "source", "created", "updated", "unchanged", "errors", "duration_ms"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, log := range logs {
		record := []string{
			log.RanAt.UTC().Format(time.RFC3339),
			log.Kind,
			log.Source,
			strconv.Itoa(log.Created),
			strconv.Itoa(log.Updated),
			strconv.Itoa(log.Unchanged),
			strconv.Itoa(log.Errors),
			strconv.FormatInt(log.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeLogsPNG(path string, logs []storage.SyncLogRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(logs))
	created := make([]float64, len(logs))
	updated := make([]float64, len(logs))
	failures := make([]float64, len(logs))

	for i, log := range logs {
		x[i] = log.RanAt
		created[i] = float64(log.Created)
		updated[i] = float64(log.Updated)
		failures[i] = float64(log.Errors)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Records per sync",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Created",
				XValues: x,
				YValues: created,
			},
			chart.TimeSeries{
				Name:    "Updated",
				XValues: x,
				YValues: updated,
			},
			chart.TimeSeries{
				Name:    "Errors",
				XValues: x,
				YValues: failures,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
