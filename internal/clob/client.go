package clob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	polygonChainID = 137

	ctfExchangeAddress     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

var decimal1e6 = decimal.NewFromInt(1_000_000)

// APICreds holds derived L2 API credentials.
type APICreds struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// OrderBook is the resting book for one outcome token.
type OrderBook struct {
	Market    string           `json:"market"`
	AssetID   string           `json:"asset_id"`
	Hash      string           `json:"hash"`
	Timestamp string           `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// OrderBookLevel is one price level.
type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderType selects matching semantics.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK"
	OrderTypeGTC OrderType = "GTC"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a signed exchange order.
type Order struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`

	sideInt int
}

type orderRequest struct {
	Order     Order     `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

// OrderResponse is the exchange's answer to an order submission.
type OrderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderId"`
	OrderHashes []string `json:"orderHashes"`
	Status      string   `json:"status"`
}

// ClientOptions parameterise the CLOB client.
type ClientOptions struct {
	BaseURL       string
	FunderAddress string
	SignatureType int
	Timeout       time.Duration
}

// Client talks to the Polymarket CLOB: credential management, order books,
// and signed order submission.
type Client struct {
	opts     ClientOptions
	baseURL  string
	client   *http.Client
	auth     *Auth
	apiCreds *APICreds
	funder   common.Address
	logger   zerolog.Logger
}

// NewClient constructs a CLOB client. The funder defaults to the signer
// address; proxy wallets set it to the profile address holding the USDC.
func NewClient(opts ClientOptions, auth *Auth, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}

	funder := auth.GetAddress()
	if opts.FunderAddress != "" {
		funder = common.HexToAddress(opts.FunderAddress)
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		auth:    auth,
		funder:  funder,
		logger:  logger.With().Str("component", "clob_client").Logger(),
	}
}

// EnsureAPICreds lazily derives L2 credentials. Creation is tried first; an
// already-registered key falls back to derivation.
func (c *Client) EnsureAPICreds(ctx context.Context) error {
	if c.apiCreds != nil {
		return nil
	}

	creds, createErr := c.requestAPICreds(ctx, http.MethodPost)
	if createErr == nil {
		c.apiCreds = creds
		c.logger.Info().Msg("created api credentials")
		return nil
	}

	creds, deriveErr := c.requestAPICreds(ctx, http.MethodGet)
	if deriveErr != nil {
		return fmt.Errorf("derive api creds: %w (create also failed: %v)", deriveErr, createErr)
	}
	c.apiCreds = creds
	c.logger.Info().Msg("derived existing api credentials")
	return nil
}

func (c *Client) requestAPICreds(ctx context.Context, method string) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("sign auth request: %w", err)
	}

	endpoint := c.baseURL + "/auth/api-key"
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(fmt.Sprintf(`{"nonce":%d}`, time.Now().UnixNano()))
	} else {
		endpoint = c.baseURL + "/auth/derive-api-key"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api creds request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var creds APICreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode api creds: %w", err)
	}
	return &creds, nil
}

// GetOrderBook fetches the book for an outcome token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	values := url.Values{}
	values.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/book?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get order book failed: %d %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var book OrderBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("decode order book: %w", err)
	}
	return &book, nil
}

// PlaceMarketOrder walks the book to price a notional USDC amount and
// submits the resulting order fill-or-kill, so a stale book cannot leave
// a partial fill resting.
func (c *Client) PlaceMarketOrder(ctx context.Context, tokenID string, side Side, amountUSDC decimal.Decimal, negRisk bool) (*OrderResponse, error) {
	if err := c.EnsureAPICreds(ctx); err != nil {
		return nil, err
	}

	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get order book: %w", err)
	}

	fill := CalculateOptimalFill(book, side, amountUSDC)
	if !fill.Size.IsPositive() {
		return nil, fmt.Errorf("no liquidity on %s side of book for token %s", side, tokenID)
	}

	c.logger.Info().
		Str("token", tokenID).
		Str("side", string(side)).
		Str("filled_usdc", fill.FilledUSDC.StringFixed(4)).
		Str("avg_price", fill.AvgPrice.StringFixed(4)).
		Str("size", fill.Size.StringFixed(4)).
		Msg("pricing market order against book")

	order, err := c.createSignedOrder(tokenID, side, fill.Size, fill.AvgPrice, negRisk)
	if err != nil {
		return nil, fmt.Errorf("create signed order: %w", err)
	}
	return c.postOrder(ctx, order, OrderTypeFOK)
}

// PlaceLimitOrder submits a GTC order at an explicit price.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side Side, size, price decimal.Decimal, negRisk bool) (*OrderResponse, error) {
	if err := c.EnsureAPICreds(ctx); err != nil {
		return nil, err
	}

	order, err := c.createSignedOrder(tokenID, side, size, price, negRisk)
	if err != nil {
		return nil, fmt.Errorf("create signed order: %w", err)
	}
	return c.postOrder(ctx, order, OrderTypeGTC)
}

func (c *Client) createSignedOrder(tokenID string, side Side, size, price decimal.Decimal, negRisk bool) (*Order, error) {
	// Tick size is 0.01 on standard markets; sizes settle in hundredths.
	price = price.Round(2)
	size = size.Round(2)

	minSize := decimal.New(1, -2)
	if size.LessThan(minSize) {
		size = minSize
	}

	// Both USDC and outcome tokens settle in 6 decimals. Maker amount is
	// what we give, taker amount is what we receive.
	tokenUnits := size.Mul(decimal1e6).Truncate(0)
	usdcUnits := size.Mul(price).Mul(decimal1e6).Truncate(0)

	var makerAmount, takerAmount decimal.Decimal
	sideInt := 0
	if side == SideBuy {
		makerAmount = usdcUnits
		takerAmount = tokenUnits
	} else {
		makerAmount = tokenUnits
		takerAmount = usdcUnits
		sideInt = 1
	}

	order := &Order{
		Salt:          generateSalt(),
		Maker:         c.funder.Hex(),
		Signer:        c.auth.GetAddress().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(side),
		SignatureType: c.opts.SignatureType,
		sideInt:       sideInt,
	}

	signature, err := c.signOrder(order, negRisk)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	order.Signature = signature
	return order, nil
}

func (c *Client) signOrder(order *Order, negRisk bool) (string, error) {
	verifyingContract := ctfExchangeAddress
	if negRisk {
		verifyingContract = negRiskExchangeAddress
	}

	toBig := func(s string) *big.Int {
		value := new(big.Int)
		value.SetString(s, 10)
		return value
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(polygonChainID),
			VerifyingContract: verifyingContract,
		},
		Message: map[string]interface{}{
			"salt":          big.NewInt(order.Salt),
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       toBig(order.TokenID),
			"makerAmount":   toBig(order.MakerAmount),
			"takerAmount":   toBig(order.TakerAmount),
			"expiration":    toBig(order.Expiration),
			"nonce":         toBig(order.Nonce),
			"feeRateBps":    toBig(order.FeeRateBps),
			"side":          big.NewInt(int64(order.sideInt)),
			"signatureType": big.NewInt(int64(order.SignatureType)),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, c.auth.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign hash: %w", err)
	}
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

func (c *Client) postOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error) {
	payload := orderRequest{
		Order:     *order,
		Owner:     c.apiCreds.APIKey,
		OrderType: orderType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.addL2Headers(req, body)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post order failed: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(respBody, &orderResp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if !orderResp.Success {
		return &orderResp, fmt.Errorf("order rejected: %s", orderResp.ErrorMsg)
	}
	return &orderResp, nil
}

// addL2Headers attaches the HMAC authentication headers. The signed message
// is timestamp + method + path + body.
func (c *Client) addL2Headers(req *http.Request, body []byte) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + req.Method + req.URL.Path + string(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_ADDRESS", c.auth.GetAddress().Hex())
	req.Header.Set("POLY_API_KEY", c.apiCreds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", c.apiCreds.APIPassphrase)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_SIGNATURE", hmacSign(message, c.apiCreds.APISecret))
}

// hmacSign computes the URL-safe base64 HMAC-SHA256 over the message. The
// secret is base64 in either alphabet; a non-base64 secret is used raw.
func hmacSign(message, secret string) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(secret)
		if err != nil {
			key = []byte(secret)
		}
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func generateSalt() int64 {
	return time.Now().UnixNano() % 1_000_000_000
}

// Fill summarises what a notional amount buys or sells against a book.
type Fill struct {
	Size       decimal.Decimal
	AvgPrice   decimal.Decimal
	FilledUSDC decimal.Decimal
}

// CalculateOptimalFill walks the relevant side of the book and reports how
// much token flow a USDC notional achieves and at what average price.
func CalculateOptimalFill(book *OrderBook, side Side, amountUSDC decimal.Decimal) Fill {
	levels := book.Bids
	if side == SideBuy {
		levels = book.Asks
	}

	remaining := amountUSDC
	totalSize := decimal.Zero
	totalCost := decimal.Zero

	for _, level := range levels {
		price, err := decimal.NewFromString(level.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(level.Size)
		if err != nil {
			continue
		}

		levelValue := size.Mul(price)
		if levelValue.LessThanOrEqual(remaining) {
			totalSize = totalSize.Add(size)
			totalCost = totalCost.Add(levelValue)
			remaining = remaining.Sub(levelValue)
		} else {
			totalSize = totalSize.Add(remaining.Div(price))
			totalCost = totalCost.Add(remaining)
			remaining = decimal.Zero
		}

		if !remaining.IsPositive() {
			break
		}
	}

	fill := Fill{Size: totalSize, FilledUSDC: amountUSDC.Sub(remaining), AvgPrice: decimal.Zero}
	if totalSize.IsPositive() {
		fill.AvgPrice = totalCost.Div(totalSize)
	}
	return fill
}
