package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity is one observed trade or merge event from the tracked trader,
// uniquely keyed by transaction hash.
type Activity struct {
	TransactionHash string
	ProxyWallet     string
	Timestamp       int64
	ConditionID     string
	Type            string
	Side            string
	Asset           string
	Size            decimal.Decimal
	UsdcSize        decimal.Decimal
	Price           decimal.Decimal
	OutcomeIndex    int

	Title     string
	Slug      string
	Icon      string
	EventSlug string
	Outcome   string

	Name                  string
	Pseudonym             string
	Bio                   string
	ProfileImage          string
	ProfileImageOptimized string

	// Execution state. BotExecuted is terminal: once set the record is
	// never reconsidered. BotExecutedTime counts attempts and only moves
	// through the atomic increment.
	BotExecuted     bool
	BotExecutedTime int

	CreatedAt time.Time
}

// Position is the latest snapshot for an (asset, conditionId) pair.
// Full overwrite semantics; no history retained.
type Position struct {
	ProxyWallet string
	Asset       string
	ConditionID string

	Size               decimal.Decimal
	AvgPrice           decimal.Decimal
	InitialValue       decimal.Decimal
	CurrentValue       decimal.Decimal
	CashPnl            decimal.Decimal
	PercentPnl         decimal.Decimal
	TotalBought        decimal.Decimal
	RealizedPnl        decimal.Decimal
	PercentRealizedPnl decimal.Decimal
	CurPrice           decimal.Decimal

	Redeemable   bool
	Mergeable    bool
	NegativeRisk bool

	Title           string
	Slug            string
	Icon            string
	EventSlug       string
	Outcome         string
	OutcomeIndex    int
	OppositeOutcome string
	OppositeAsset   string
	EndDate         string

	UpdatedAt time.Time
}
