package clob

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poly-copy-trader/internal/engine"
	"poly-copy-trader/internal/fetcher"
	"poly-copy-trader/internal/storage"
)

// limitPriceFloor is the price above which exits go out as limit orders at
// the copied price. Near-resolution books are thin and a market exit there
// crosses the spread for almost nothing in return.
var limitPriceFloor = decimal.NewFromFloat(0.96)

// ExecutorOptions size the follower-side orders.
type ExecutorOptions struct {
	ProxyWallet  string
	Multiplier   decimal.Decimal
	MinOrderUSDC decimal.Decimal
}

// Executor turns classified copy actions into CLOB orders. Buys are scaled
// down by the multiplier; sells and merges exit the follower's own position
// rather than mirroring the tracked trader's size.
type Executor struct {
	opts   ExecutorOptions
	client *Client
	feed   fetcher.FeedFetcher
	logger zerolog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(opts ExecutorOptions, client *Client, feed fetcher.FeedFetcher, logger zerolog.Logger) *Executor {
	return &Executor{
		opts:   opts,
		client: client,
		feed:   feed,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// SubmitOrder places the follower-side order for one classified trade.
func (e *Executor) SubmitOrder(ctx context.Context, action engine.Action, trade storage.Activity) error {
	switch action {
	case engine.ActionBuy:
		return e.submitBuy(ctx, trade)
	case engine.ActionSell:
		return e.submitSell(ctx, trade)
	case engine.ActionMerge:
		return e.submitMerge(ctx, trade)
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}

func (e *Executor) submitBuy(ctx context.Context, trade storage.Activity) error {
	notional := trade.UsdcSize.Mul(e.opts.Multiplier)
	if notional.LessThan(e.opts.MinOrderUSDC) {
		notional = e.opts.MinOrderUSDC
	}

	negRisk := e.lookupNegRisk(ctx, trade.ConditionID)

	resp, err := e.client.PlaceMarketOrder(ctx, trade.Asset, SideBuy, notional, negRisk)
	if err != nil {
		return fmt.Errorf("place buy order: %w", err)
	}

	e.logger.Info().
		Str("tx", trade.TransactionHash).
		Str("order_id", resp.OrderID).
		Str("status", resp.Status).
		Str("notional_usdc", notional.StringFixed(2)).
		Msg("buy order placed")
	return nil
}

func (e *Executor) submitSell(ctx context.Context, trade storage.Activity) error {
	position, ok, err := e.findPosition(ctx, func(p storage.Position) bool {
		return p.Asset == trade.Asset
	})
	if err != nil {
		return err
	}
	if !ok || !position.Size.IsPositive() {
		// Nothing of ours to exit; the copy is complete by definition.
		e.logger.Info().Str("tx", trade.TransactionHash).Str("asset", trade.Asset).Msg("no position to sell")
		return nil
	}

	var resp *OrderResponse
	if trade.Price.GreaterThanOrEqual(limitPriceFloor) {
		resp, err = e.client.PlaceLimitOrder(ctx, trade.Asset, SideSell, position.Size, trade.Price, position.NegativeRisk)
	} else {
		notional := position.Size.Mul(trade.Price)
		resp, err = e.client.PlaceMarketOrder(ctx, trade.Asset, SideSell, notional, position.NegativeRisk)
	}
	if err != nil {
		return fmt.Errorf("place sell order: %w", err)
	}

	e.logger.Info().
		Str("tx", trade.TransactionHash).
		Str("order_id", resp.OrderID).
		Str("status", resp.Status).
		Str("size", position.Size.StringFixed(2)).
		Msg("sell order placed")
	return nil
}

// submitMerge exits every follower position in the merged condition. The
// tracked trader combined opposing outcomes back into collateral; without
// operator access to the CTF contract the equivalent here is a full exit.
func (e *Executor) submitMerge(ctx context.Context, trade storage.Activity) error {
	positions, err := e.listPositions(ctx)
	if err != nil {
		return err
	}

	exited := 0
	for _, position := range positions {
		if position.ConditionID != trade.ConditionID || !position.Size.IsPositive() {
			continue
		}
		notional := position.Size.Mul(position.CurPrice)
		if !notional.IsPositive() {
			continue
		}
		if _, err := e.client.PlaceMarketOrder(ctx, position.Asset, SideSell, notional, position.NegativeRisk); err != nil {
			return fmt.Errorf("exit merged position %s: %w", position.Asset, err)
		}
		exited++
	}

	e.logger.Info().
		Str("tx", trade.TransactionHash).
		Str("condition", trade.ConditionID).
		Int("exited", exited).
		Msg("merge copied as position exit")
	return nil
}

func (e *Executor) lookupNegRisk(ctx context.Context, conditionID string) bool {
	position, ok, err := e.findPosition(ctx, func(p storage.Position) bool {
		return p.ConditionID == conditionID
	})
	if err != nil || !ok {
		return false
	}
	return position.NegativeRisk
}

func (e *Executor) findPosition(ctx context.Context, match func(storage.Position) bool) (storage.Position, bool, error) {
	positions, err := e.listPositions(ctx)
	if err != nil {
		return storage.Position{}, false, err
	}
	for _, position := range positions {
		if match(position) {
			return position, true, nil
		}
	}
	return storage.Position{}, false, nil
}

func (e *Executor) listPositions(ctx context.Context) ([]storage.Position, error) {
	if strings.TrimSpace(e.opts.ProxyWallet) == "" {
		return nil, fmt.Errorf("proxy wallet not configured")
	}
	raws, err := e.feed.FetchPositions(ctx, e.opts.ProxyWallet)
	if err != nil {
		return nil, fmt.Errorf("fetch follower positions: %w", err)
	}
	positions := make([]storage.Position, 0, len(raws))
	for _, raw := range raws {
		positions = append(positions, fetcher.BuildPosition(raw))
	}
	return positions, nil
}

var _ engine.OrderSubmitter = (*Executor)(nil)
