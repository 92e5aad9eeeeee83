package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"hostpay/internal/storage"
)

// Export renders sweep history as CSV and/or PNG.
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
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Sweep.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	runs, err := store.ListSweepRunsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.Logger.Info().Msg("no sweep runs found for export window")
		return nil
	}

	downsampled := downsampleRuns(runs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(runs)).Int("exported", len(downsampled)).Msg("exporting sweep runs")

	if opts.CSVPath != "" {
		if err := writeRunsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRunsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRuns(runs []storage.SweepRun, max int) []storage.SweepRun {
	if max <= 0 || len(runs) <= max {
		return runs
	}

	result := make([]storage.SweepRun, 0, max)
	step := float64(len(runs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(runs) {
			idx = len(runs) - 1
		}
		result = append(result, runs[idx])
	}
	return result
}

func writeRunsCSV(path string, runs []storage.SweepRun) error {
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

	header := []string{"started_at", "finished_at", "scanned", "funded", "swept_amount", "failures", "txids"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, run := range runs {
		record := []string{
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(run.Scanned),
			strconv.Itoa(run.Funded),
			run.SweptAmount.String(),
			strconv.Itoa(run.Failures),
			strings.Join(run.TxIDs, " "),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRunsPNG(path string, runs []storage.SweepRun) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(runs))
	swept := make([]float64, len(runs))
	failures := make([]float64, len(runs))

	for i, run := range runs {
		x[i] = run.StartedAt
		swept[i] = run.SweptAmount.InexactFloat64()
		failures[i] = float64(run.Failures)
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Swept (smallest units)",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Failures",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Swept",
				XValues: x,
				YValues: swept,
			},
			chart.TimeSeries{
				Name:    "Failures",
				XValues: x,
				YValues: failures,
				YAxis:   chart.YAxisSecondary,
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
