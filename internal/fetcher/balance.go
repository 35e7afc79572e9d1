package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	erc20ABIJSON = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	// USDC on Polygon uses 6 decimals.
	usdcDecimals = 6
)

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// BalanceOptions parameterise the on-chain balance fetcher.
type BalanceOptions struct {
	RPCURL      string
	USDCAddress string
	Timeout     time.Duration
}

// Balance reads the follower wallet's USDC balance via Polygon RPC.
type Balance struct {
	opts      BalanceOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewBalance builds a new balance fetcher.
func NewBalance(opts BalanceOptions, logger zerolog.Logger) *Balance {
	return &Balance{opts: opts, logger: logger.With().Str("component", "balance_fetcher").Logger()}
}

// FetchBalance returns the spendable USDC balance, or zero when the lookup
// fails for any reason. Failures are logged, not propagated, so a degraded
// RPC endpoint causes skipped buys rather than an aborted cycle.
func (b *Balance) FetchBalance(ctx context.Context, address string) decimal.Decimal {
	balance, err := b.fetchBalance(ctx, address)
	if err != nil {
		b.logger.Warn().Err(err).Str("wallet", address).Msg("balance lookup failed, assuming zero")
		return decimal.Zero
	}
	return balance
}

func (b *Balance) fetchBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if b.opts.RPCURL == "" {
		return decimal.Decimal{}, errors.New("polygon rpc url not configured")
	}
	if b.opts.USDCAddress == "" {
		return decimal.Decimal{}, errors.New("usdc contract address not configured")
	}
	if strings.TrimSpace(address) == "" {
		return decimal.Decimal{}, errors.New("wallet address required")
	}

	timeout := b.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := b.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	token := common.HexToAddress(b.opts.USDCAddress)
	payload, err := erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Decimal{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	outputs, err := erc20ABI.Unpack("balanceOf", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, errors.New("unexpected balanceOf response")
	}

	atoms, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode balanceOf output")
	}

	return decimal.NewFromBigInt(atoms, -usdcDecimals), nil
}

func (b *Balance) getClient(ctx context.Context) (*ethclient.Client, error) {
	b.clientMux.Lock()
	defer b.clientMux.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	client, err := ethclient.DialContext(ctx, b.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

var _ BalanceFetcher = (*Balance)(nil)
