package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"poly-copy-trader/internal/alerting"
	"poly-copy-trader/internal/fetcher"
	"poly-copy-trader/internal/storage"
)

// OrderSubmitter places the follower-side order for a classified trade.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, action Action, trade storage.Activity) error
}

// Options parameterise the copy-execution engine.
type Options struct {
	ProxyWallet  string
	RetryLimit   int
	IdleInterval time.Duration
	StartupDelay time.Duration
}

// Engine drains pending trades from the store and mirrors them. Every
// pending trade ends in exactly one of: executed, deferred with an attempt
// burned, or terminally abandoned once the retry limit is reached.
type Engine struct {
	opts      Options
	store     storage.ActivityStore
	balance   fetcher.BalanceFetcher
	submitter OrderSubmitter
	notifier  alerting.Notifier
	logger    zerolog.Logger
}

// New constructs an Engine. notifier may be nil when alerting is disabled.
func New(opts Options, store storage.ActivityStore, balance fetcher.BalanceFetcher, submitter OrderSubmitter, notifier alerting.Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		opts:      opts,
		store:     store,
		balance:   balance,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Run polls for pending trades until ctx is cancelled. A non-empty batch
// triggers an immediate re-poll so bursts drain quickly; an empty one waits
// out the idle interval.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.StartupDelay > 0 {
		timer := time.NewTimer(e.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		processed, err := e.RunCycle(ctx)
		if err != nil {
			e.logger.Error().Err(err).Msg("execution cycle failed")
		}
		if processed > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(e.opts.IdleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle processes one batch of pending trades and returns how many it
// handled. Per-trade failures burn an attempt and do not abort the batch.
func (e *Engine) RunCycle(ctx context.Context) (int, error) {
	trades, err := e.store.ListPendingTrades(ctx, e.opts.RetryLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending trades: %w", err)
	}

	for _, trade := range trades {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		e.processTrade(ctx, trade)
	}
	return len(trades), nil
}

func (e *Engine) processTrade(ctx context.Context, trade storage.Activity) {
	action := Classify(trade)

	logger := e.logger.With().
		Str("tx", trade.TransactionHash).
		Str("action", string(action)).
		Str("title", trade.Title).
		Logger()

	if action == ActionUnsupported {
		// Nothing will ever make this executable; close it out.
		if err := e.store.MarkExecuted(ctx, trade.TransactionHash); err != nil {
			logger.Error().Err(err).Msg("failed to close unsupported activity")
			return
		}
		logger.Info().Str("type", trade.Type).Str("side", trade.Side).Msg("unsupported activity skipped")
		return
	}

	if action == ActionBuy {
		balance := e.balance.FetchBalance(ctx, e.opts.ProxyWallet)
		if !balance.IsPositive() {
			e.deferTrade(ctx, trade, action, "no spendable balance")
			return
		}
	}

	if err := e.submitter.SubmitOrder(ctx, action, trade); err != nil {
		e.deferTrade(ctx, trade, action, err.Error())
		return
	}

	if err := e.store.MarkExecuted(ctx, trade.TransactionHash); err != nil {
		logger.Error().Err(err).Msg("order placed but state update failed")
		return
	}
	logger.Info().
		Str("usdc_size", trade.UsdcSize.String()).
		Str("price", trade.Price.String()).
		Msg("trade copied")
}

// deferTrade burns one attempt. If that pushes the trade to its retry limit
// the store flips the terminal flag in the same statement and the trade is
// abandoned for good, which is worth an alert.
func (e *Engine) deferTrade(ctx context.Context, trade storage.Activity, action Action, reason string) {
	attempts, terminal, err := e.store.IncrementAttempt(ctx, trade.TransactionHash, e.opts.RetryLimit)
	if err != nil {
		e.logger.Error().Err(err).Str("tx", trade.TransactionHash).Msg("failed to record attempt")
		return
	}

	logger := e.logger.With().
		Str("tx", trade.TransactionHash).
		Str("action", string(action)).
		Int("attempts", attempts).
		Logger()

	if !terminal {
		logger.Warn().Str("reason", reason).Msg("trade deferred")
		return
	}

	logger.Warn().Str("reason", reason).Msg("retry limit reached, trade abandoned")
	if e.notifier == nil {
		return
	}
	note := alerting.Notification{
		TransactionHash: trade.TransactionHash,
		Title:           trade.Title,
		Action:          string(action),
		Side:            trade.Side,
		UsdcSize:        trade.UsdcSize,
		Price:           trade.Price,
		Attempts:        attempts,
		Status:          "abandoned",
		Reason:          reason,
		At:              time.Now(),
	}
	if err := e.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to send abandonment alert")
	}
}
