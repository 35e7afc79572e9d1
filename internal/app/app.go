package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poly-copy-trader/internal/alerting"
	"poly-copy-trader/internal/clob"
	"poly-copy-trader/internal/config"
	"poly-copy-trader/internal/engine"
	"poly-copy-trader/internal/fetcher"
	"poly-copy-trader/internal/monitor"
	"poly-copy-trader/internal/storage"
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

func (a *App) newFeed() fetcher.FeedFetcher {
	return fetcher.NewDataAPI(fetcher.DataAPIOptions{
		BaseURL:   a.Config.DataAPI.BaseURL,
		Timeout:   a.Config.DataAPI.RequestTimeout,
		UserAgent: a.Config.DataAPI.UserAgent,
	}, a.Logger)
}

func (a *App) newBalance() fetcher.BalanceFetcher {
	return fetcher.NewBalance(fetcher.BalanceOptions{
		RPCURL:      a.Config.Polygon.RPCURL,
		USDCAddress: a.Config.Polygon.USDCAddress,
		Timeout:     a.Config.Polygon.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newSubmitter(feed fetcher.FeedFetcher) (engine.OrderSubmitter, error) {
	execOpts := clob.ExecutorOptions{
		ProxyWallet:  a.Config.Executor.ProxyWallet,
		Multiplier:   decimal.NewFromFloat(a.Config.Executor.Multiplier),
		MinOrderUSDC: decimal.NewFromFloat(a.Config.Executor.MinOrderUSDC),
	}

	if a.Config.Executor.DryRun {
		return clob.NewDryRunSubmitter(execOpts, a.Logger), nil
	}

	auth, err := clob.NewAuth(a.Config.Clob.PrivateKey, 137)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}

	client := clob.NewClient(clob.ClientOptions{
		BaseURL:       a.Config.Clob.BaseURL,
		FunderAddress: a.Config.Clob.FunderAddress,
		SignatureType: a.Config.Clob.SignatureType,
		Timeout:       a.Config.Clob.RequestTimeout,
	}, auth, a.Logger)

	return clob.NewExecutor(execOpts, client, feed, a.Logger), nil
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

// Run executes the copy-trading service: the activity synchronizer and the
// execution engine as two loops over the shared store.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the copy trader")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Scheduler.AdvisoryLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		return errors.New("another copy-trader instance holds the lock on this database")
	}
	defer unlock()

	if a.Config.Monitor.TrackedAddress == "" {
		return errors.New("monitor.tracked_address is required")
	}
	if a.Config.Executor.ProxyWallet == "" {
		return errors.New("executor.proxy_wallet is required")
	}

	feed := a.newFeed()

	submitter, err := a.newSubmitter(feed)
	if err != nil {
		return err
	}

	syncer := monitor.New(monitor.Options{
		TrackedAddress:  a.Config.Monitor.TrackedAddress,
		FreshnessWindow: a.Config.Monitor.FreshnessWindow,
		Interval:        a.Config.Monitor.Interval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, feed, store, store, a.Logger)

	if err := syncer.Init(ctx); err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		ProxyWallet:  a.Config.Executor.ProxyWallet,
		RetryLimit:   a.Config.Executor.RetryLimit,
		IdleInterval: a.Config.Executor.IdleInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, store, a.newBalance(), submitter, a.newNotifier(), a.Logger)

	a.Logger.Info().
		Str("tracked", a.Config.Monitor.TrackedAddress).
		Bool("dry_run", a.Config.Executor.DryRun).
		Msg("starting copy-trading service")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- syncer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		errs <- eng.Run(ctx)
	}()
	wg.Wait()
	close(errs)

	for loopErr := range errs {
		if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
			a.Logger.Error().Err(loopErr).Msg("service terminated with error")
			return loopErr
		}
	}

	a.Logger.Info().Msg("copy-trading service stopped")
	return nil
}

// ExportOptions hold parameters for exporting activity history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit     int
	Positions bool
}
