package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// FeedFetcher retrieves the tracked trader's public feed.
type FeedFetcher interface {
	FetchActivities(ctx context.Context, address string) ([]RawActivity, error)
	FetchPositions(ctx context.Context, address string) ([]RawPosition, error)
}

// BalanceFetcher retrieves the follower wallet's spendable USDC balance.
// Implementations return zero on failure rather than an error so a flaky
// RPC endpoint degrades to "skip the buy" instead of aborting a cycle.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, address string) decimal.Decimal
}
