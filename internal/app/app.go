package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"hostpay/internal/alerting"
	"hostpay/internal/config"
	"hostpay/internal/explorer"
	"hostpay/internal/fees"
	"hostpay/internal/files"
	"hostpay/internal/maintenance"
	"hostpay/internal/pricefeed"
	"hostpay/internal/scheduler"
	"hostpay/internal/storage"
	"hostpay/internal/sweeper"
	"hostpay/internal/wallet"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openWallet opens the durable wallet, creating it on first boot. A
// wallet that already exists on disk is loaded, never recreated, so the
// seed and the derivation counter survive restarts.
func (a *App) openWallet() (*wallet.Store, error) {
	params := wallet.Params{
		Network:  a.Config.Wallet.Network,
		CoinType: a.Config.Wallet.CoinType,
	}

	w, err := wallet.Create(a.Config.Wallet.Path, params)
	if err == nil {
		a.Logger.Info().Str("path", a.Config.Wallet.Path).Msg("wallet created")
		return w, nil
	}
	if !errors.Is(err, wallet.ErrWalletExists) {
		return nil, err
	}

	a.Logger.Info().Str("path", a.Config.Wallet.Path).Msg("wallet already exists, loading")
	return wallet.Load(a.Config.Wallet.Path, params)
}

func (a *App) newQuoter() (fees.Quoter, error) {
	if a.Config.Fees.FixedEnabled {
		return fees.NewFixedQuoter(decimal.NewFromInt(a.Config.Fees.FixedSmallestUnit))
	}

	feed := pricefeed.NewFeed(pricefeed.FeedOptions{
		Endpoints: a.Config.PriceFeed.Endpoints,
		Timeout:   a.Config.PriceFeed.RequestTimeout,
	}, a.Logger)
	oracle := pricefeed.NewOracle(feed, pricefeed.OracleOptions{
		CacheTTL:        a.Config.PriceFeed.CacheTTL,
		StalenessWindow: a.Config.PriceFeed.StalenessWindow,
	}, a.Logger)

	return fees.NewCalculator(fees.CalculatorOptions{
		PerMb:        decimal.NewFromFloat(a.Config.Fees.PerMb),
		FloorMb:      decimal.NewFromInt(a.Config.Fees.FloorMb),
		UnitsPerCoin: decimal.NewFromInt(a.Config.Wallet.UnitsPerCoin),
	}, oracle)
}

func (a *App) newExplorer() *explorer.Esplora {
	return explorer.NewEsplora(explorer.EsploraOptions{
		BaseURL: a.Config.Explorer.BaseURL,
		Timeout: a.Config.Explorer.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newSweeper(w *wallet.Store, store *storage.Store) *sweeper.Sweeper {
	return sweeper.New(w, a.newExplorer(), store, store, a.newNotifier(), sweeper.Options{
		Treasury:     a.Config.Wallet.TreasuryAddress,
		FeeRateSatVb: a.Config.Explorer.FeeRateSatVb,
	}, a.Logger)
}

// Run executes the long-running settlement service: the sweep job and the
// maintenance job on their own cadences until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	w, err := a.openWallet()
	if err != nil {
		return err
	}

	sw := a.newSweeper(w, store)
	janitor := maintenance.New(store, a.Config.Maintenance.Retention, a.Logger)

	sweepSched := scheduler.New(scheduler.Options{
		Name:         "sweep",
		Interval:     a.Config.Sweep.Interval,
		StartupDelay: a.Config.Sweep.StartupDelay,
	}, a.Logger)
	maintSched := scheduler.New(scheduler.Options{
		Name:     "maintenance",
		Interval: a.Config.Maintenance.Interval,
	}, a.Logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sweepSched.Run(ctx, sw.RunOnce)
	})
	group.Go(func() error {
		return maintSched.Run(ctx, janitor.RunOnce)
	})

	a.Logger.Info().Msg("starting settlement service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("settlement service stopped")
	return nil
}

// AdmitOptions hold parameters for admitting a file record.
type AdmitOptions struct {
	SchemaVersion int64
	SizeBytes     int64
	UserID        string
	MetaJSON      string
}

// Admit creates one file record bound to a fee quote and a fresh deposit
// address, the same path the hosting API takes for an upload.
func (a *App) Admit(ctx context.Context, opts AdmitOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot admit files")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	w, err := a.openWallet()
	if err != nil {
		return err
	}
	quoter, err := a.newQuoter()
	if err != nil {
		return err
	}

	svc := files.New(store, store, w, quoter, a.Logger)
	input := files.CreateInput{
		SchemaVersion: opts.SchemaVersion,
		Size:          opts.SizeBytes,
		UserID:        opts.UserID,
	}
	if opts.MetaJSON != "" {
		input.Meta = json.RawMessage(opts.MetaJSON)
	}

	record, err := svc.Create(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "id: %s\naddress: %s\nindex: %d\ncost: %s units (%s fiat @ %s)\n",
		record.ID, record.PaymentAddress, record.DerivationIndex,
		record.HostingCost.String(), record.FiatAmount.StringFixed(2), record.RateUsed.String())
	return nil
}

// Quote prices a hypothetical file without persisting anything.
func (a *App) Quote(ctx context.Context, sizeBytes int64) error {
	quoter, err := a.newQuoter()
	if err != nil {
		return err
	}

	quote, err := quoter.Quote(ctx, sizeBytes)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "size: %d bytes\nfiat: %s\ncoin: %s\nunits: %s\nrate: %s\nquoted: %s\n",
		quote.SizeBytes, quote.FiatAmount.StringFixed(2), quote.CoinAmount.String(),
		quote.SmallestUnit.String(), quote.RateUsed.String(),
		quote.QuotedAt.UTC().Format(time.RFC3339))
	return nil
}

// ShowAddress derives and prints the deposit address at a given index
// without touching the reservation counter.
func (a *App) ShowAddress(ctx context.Context, index uint32) error {
	w, err := a.openWallet()
	if err != nil {
		return err
	}

	address, err := w.DeriveAddress(index)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "index: %d\naddress: %s\nnetwork: %s\n", index, address, w.Network().Name)
	return nil
}

// SweepOnce runs a single consolidation pass and exits.
func (a *App) SweepOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sweep")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	w, err := a.openWallet()
	if err != nil {
		return err
	}

	return a.newSweeper(w, store).RunOnce(ctx)
}

// MaintainOnce runs a single cleanup pass and exits.
func (a *App) MaintainOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot run maintenance")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	return maintenance.New(store, a.Config.Maintenance.Retention, a.Logger).RunOnce(ctx)
}

// ExportOptions hold parameters for exporting sweep history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Files bool
}
