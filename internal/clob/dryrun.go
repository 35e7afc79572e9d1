package clob

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poly-copy-trader/internal/engine"
	"poly-copy-trader/internal/storage"
)

// DryRunSubmitter logs the orders it would place instead of sending them.
// Useful for watching the pipeline against a live feed with no key at risk.
type DryRunSubmitter struct {
	opts   ExecutorOptions
	logger zerolog.Logger
}

// NewDryRunSubmitter constructs a DryRunSubmitter.
func NewDryRunSubmitter(opts ExecutorOptions, logger zerolog.Logger) *DryRunSubmitter {
	return &DryRunSubmitter{
		opts:   opts,
		logger: logger.With().Str("component", "executor_dryrun").Logger(),
	}
}

// SubmitOrder records the intended order and reports success.
func (d *DryRunSubmitter) SubmitOrder(_ context.Context, action engine.Action, trade storage.Activity) error {
	notional := trade.UsdcSize.Mul(d.opts.Multiplier)
	if action == engine.ActionBuy && notional.LessThan(d.opts.MinOrderUSDC) {
		notional = d.opts.MinOrderUSDC
	}
	if action != engine.ActionBuy {
		notional = decimal.Zero
	}

	d.logger.Info().
		Str("tx", trade.TransactionHash).
		Str("action", string(action)).
		Str("asset", trade.Asset).
		Str("title", trade.Title).
		Str("copied_usdc", trade.UsdcSize.String()).
		Str("order_usdc", notional.StringFixed(2)).
		Str("price", trade.Price.String()).
		Msg("dry run: order not sent")
	return nil
}

var _ engine.OrderSubmitter = (*DryRunSubmitter)(nil)
