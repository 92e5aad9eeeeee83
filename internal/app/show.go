package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"hostpay/internal/storage"
)

type sweepRunLister interface {
	ListRecentSweepRuns(ctx context.Context, limit int) ([]storage.SweepRun, error)
}

type fileLister interface {
	ListFiles(ctx context.Context, limit int) ([]storage.FileRecord, error)
}

// Show prints recent sweep runs, or recent file records with Files set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	if opts.Files {
		return a.showFiles(ctx, store, opts.Limit)
	}
	return a.showSweepRuns(ctx, store, opts.Limit)
}

func (a *App) showSweepRuns(ctx context.Context, store sweepRunLister, limit int) error {
	runs, err := store.ListRecentSweepRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no sweep runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tElapsed\tScanned\tFunded\tSwept\tFailures\tTxIDs")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%s\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.Scanned,
			run.Funded,
			run.SweptAmount.String(),
			run.Failures,
			strings.Join(run.TxIDs, ","),
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showFiles(ctx context.Context, store fileLister, limit int) error {
	records, err := store.ListFiles(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no file records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSize\tAddress\tCost\tCreated (UTC)\tRev\tComplete")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%d\t%t\n",
			record.ID,
			record.SizeBytes,
			record.PaymentAddress,
			record.HostingCost.String(),
			record.CreatedAt.UTC().Format(time.RFC3339),
			record.UpdateIndex,
			record.UploadComplete,
		)
	}

	writer.Flush()
	return nil
}
