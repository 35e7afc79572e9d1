package clob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// newOrderTestServer serves the minimal CLOB surface an order placement
// touches: credential creation, the book, and order submission. Submitted
// order payloads are appended to captured.
func newOrderTestServer(t *testing.T, captured *[]orderRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/api-key" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(APICreds{
				APIKey:        "key-1",
				APISecret:     "c2VjcmV0",
				APIPassphrase: "pass",
			})
		case r.URL.Path == "/book":
			json.NewEncoder(w).Encode(OrderBook{
				AssetID: r.URL.Query().Get("token_id"),
				Asks:    []OrderBookLevel{{Price: "0.50", Size: "100"}},
				Bids:    []OrderBookLevel{{Price: "0.45", Size: "100"}},
			})
		case r.URL.Path == "/order" && r.Method == http.MethodPost:
			if r.Header.Get("POLY_API_KEY") == "" || r.Header.Get("POLY_SIGNATURE") == "" {
				t.Error("order submission missing L2 headers")
			}
			var req orderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode order request: %v", err)
			}
			*captured = append(*captured, req)
			json.NewEncoder(w).Encode(OrderResponse{Success: true, OrderID: "o-1", Status: "matched"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	auth, err := NewAuth(devPrivateKey, polygonChainID)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return NewClient(ClientOptions{BaseURL: baseURL}, auth, zerolog.Nop())
}

func TestPlaceMarketOrderSubmitsFillOrKill(t *testing.T) {
	var captured []orderRequest
	server := newOrderTestServer(t, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.PlaceMarketOrder(context.Background(), "7000", SideBuy, decimal.NewFromInt(10), false)
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected accepted order, got %+v", resp)
	}

	if len(captured) != 1 {
		t.Fatalf("expected 1 submitted order, got %d", len(captured))
	}
	if captured[0].OrderType != OrderTypeFOK {
		t.Fatalf("market order type = %s, want FOK", captured[0].OrderType)
	}
	if captured[0].Order.Side != string(SideBuy) {
		t.Fatalf("order side = %s, want BUY", captured[0].Order.Side)
	}
}

func TestPlaceLimitOrderSubmitsGoodTilCancelled(t *testing.T) {
	var captured []orderRequest
	server := newOrderTestServer(t, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.PlaceLimitOrder(context.Background(), "7000", SideSell, decimal.NewFromInt(20), decimal.RequireFromString("0.97"), false); err != nil {
		t.Fatalf("PlaceLimitOrder: %v", err)
	}

	if len(captured) != 1 {
		t.Fatalf("expected 1 submitted order, got %d", len(captured))
	}
	if captured[0].OrderType != OrderTypeGTC {
		t.Fatalf("limit order type = %s, want GTC", captured[0].OrderType)
	}
}

func TestCalculateOptimalFillBuyWalksAsks(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{
			{Price: "0.50", Size: "10"}, // 5 USDC of depth
			{Price: "0.60", Size: "10"}, // 6 USDC of depth
		},
		Bids: []OrderBookLevel{
			{Price: "0.40", Size: "100"},
		},
	}

	fill := CalculateOptimalFill(book, SideBuy, decimal.NewFromInt(8))

	// 5 USDC clears the first level (10 tokens), the remaining 3 buys
	// 5 tokens at 0.60.
	if fill.Size.String() != "15" {
		t.Fatalf("size = %s, want 15", fill.Size)
	}
	if fill.FilledUSDC.String() != "8" {
		t.Fatalf("filled = %s, want 8", fill.FilledUSDC)
	}
	wantAvg := decimal.NewFromInt(8).Div(decimal.NewFromInt(15))
	if !fill.AvgPrice.Sub(wantAvg).Abs().LessThan(decimal.New(1, -9)) {
		t.Fatalf("avg price = %s, want %s", fill.AvgPrice, wantAvg)
	}
}

func TestCalculateOptimalFillSellWalksBids(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{{Price: "0.90", Size: "5"}},
		Bids: []OrderBookLevel{{Price: "0.40", Size: "20"}},
	}

	fill := CalculateOptimalFill(book, SideSell, decimal.NewFromInt(4))

	if fill.Size.String() != "10" {
		t.Fatalf("size = %s, want 10", fill.Size)
	}
	if fill.AvgPrice.String() != "0.4" {
		t.Fatalf("avg price = %s, want 0.4", fill.AvgPrice)
	}
}

func TestCalculateOptimalFillInsufficientLiquidity(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{{Price: "0.50", Size: "2"}}, // only 1 USDC of depth
	}

	fill := CalculateOptimalFill(book, SideBuy, decimal.NewFromInt(10))

	if fill.Size.String() != "2" {
		t.Fatalf("size = %s, want 2", fill.Size)
	}
	if fill.FilledUSDC.String() != "1" {
		t.Fatalf("filled = %s, want 1", fill.FilledUSDC)
	}
}

func TestCalculateOptimalFillEmptyBook(t *testing.T) {
	fill := CalculateOptimalFill(&OrderBook{}, SideBuy, decimal.NewFromInt(10))
	if fill.Size.IsPositive() {
		t.Fatalf("empty book should fill nothing, got %s", fill.Size)
	}
	if fill.FilledUSDC.IsPositive() {
		t.Fatalf("empty book should spend nothing, got %s", fill.FilledUSDC)
	}
}

func TestCalculateOptimalFillSkipsBadLevels(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{
			{Price: "garbage", Size: "10"},
			{Price: "0", Size: "10"},
			{Price: "0.25", Size: "4"},
		},
	}

	fill := CalculateOptimalFill(book, SideBuy, decimal.NewFromInt(1))
	if fill.Size.String() != "4" {
		t.Fatalf("size = %s, want 4", fill.Size)
	}
}
