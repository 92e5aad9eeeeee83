package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hostpay/internal/alerting"
	"hostpay/internal/explorer"
	"hostpay/internal/storage"
	"hostpay/internal/wallet"
)

// Wallet is the slice of the wallet store the sweeper needs.
type Wallet interface {
	SweepAddress(ctx context.Context, chain explorer.Service, opts wallet.SweepOptions) (wallet.SweepReceipt, error)
}

// Options parameterise consolidation runs.
type Options struct {
	Treasury     string
	FeeRateSatVb int64
}

// Sweeper walks every derived deposit address and consolidates spendable
// balances into the treasury. A run is best effort: one failing address
// never stops the rest of the batch.
type Sweeper struct {
	wallet   Wallet
	chain    explorer.Service
	addrs    storage.AddressBook
	runs     storage.SweepLog
	notifier alerting.Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	// Held for the duration of a run so overlapping firings are skipped
	// instead of queued.
	mu sync.Mutex
}

// New constructs a Sweeper. runs and notifier may be nil.
func New(w Wallet, chain explorer.Service, addrs storage.AddressBook, runs storage.SweepLog, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		wallet:   w,
		chain:    chain,
		addrs:    addrs,
		runs:     runs,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

// RunOnce executes a single consolidation pass over all derived
// addresses. If a previous pass is still in flight the call returns
// immediately without doing anything.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if s.opts.Treasury == "" {
		return fmt.Errorf("sweeper: treasury address is not configured")
	}
	if !s.mu.TryLock() {
		s.logger.Debug().Msg("previous sweep still in flight, skipping")
		return nil
	}
	defer s.mu.Unlock()

	started := s.now().UTC()
	addresses, err := s.addrs.ListDerivedAddresses(ctx)
	if err != nil {
		return fmt.Errorf("list derived addresses: %w", err)
	}

	run := storage.SweepRun{
		StartedAt:   started,
		Scanned:     len(addresses),
		SweptAmount: decimal.Zero,
		// A nil slice binds as SQL NULL against the not-null txids
		// column; a zero-funded run must still persist.
		TxIDs: []string{},
	}

	for _, addr := range addresses {
		receipt, err := s.wallet.SweepAddress(ctx, s.chain, wallet.SweepOptions{
			Index:        uint32(addr.Index),
			Treasury:     s.opts.Treasury,
			FeeRateSatVb: s.opts.FeeRateSatVb,
		})
		if err != nil {
			run.Failures++
			s.logger.Warn().Err(err).
				Int64("index", addr.Index).
				Str("address", addr.Address).
				Msg("sweep failed for address")
			continue
		}
		if !receipt.Swept {
			continue
		}
		run.Funded++
		run.SweptAmount = run.SweptAmount.Add(decimal.NewFromInt(receipt.Amount))
		run.TxIDs = append(run.TxIDs, receipt.TxID)
	}

	run.FinishedAt = s.now().UTC()

	if s.runs != nil {
		if err := s.runs.InsertSweepRun(ctx, run); err != nil {
			s.logger.Error().Err(err).Msg("persist sweep run")
		}
	}

	if run.Failures > 0 && s.notifier != nil {
		note := alerting.Notification{
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Scanned:     run.Scanned,
			Funded:      run.Funded,
			SweptAmount: run.SweptAmount,
			Failures:    run.Failures,
			TxIDs:       run.TxIDs,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("deliver sweep alert")
		}
	}

	s.logger.Info().
		Int("scanned", run.Scanned).
		Int("funded", run.Funded).
		Int("failures", run.Failures).
		Str("swept_amount", run.SweptAmount.String()).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("sweep run complete")
	return nil
}
