package fetcher

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"poly-copy-trader/internal/storage"
)

// msThreshold separates second-precision epochs from millisecond ones. Any
// value above it is treated as milliseconds and scaled down.
const msThreshold = int64(1_000_000_000_000)

// RawActivity mirrors one element of the public activity feed. Timestamps
// and numeric fields arrive as either JSON numbers or strings depending on
// the endpoint version, so they decode into any and are normalised later.
type RawActivity struct {
	TransactionHash       string `json:"transactionHash"`
	ProxyWallet           string `json:"proxyWallet"`
	Timestamp             any    `json:"timestamp"`
	ConditionID           string `json:"conditionId"`
	Type                  string `json:"type"`
	Side                  string `json:"side"`
	Asset                 string `json:"asset"`
	Size                  any    `json:"size"`
	UsdcSize              any    `json:"usdcSize"`
	Price                 any    `json:"price"`
	OutcomeIndex          int    `json:"outcomeIndex"`
	Title                 string `json:"title"`
	Slug                  string `json:"slug"`
	Icon                  string `json:"icon"`
	EventSlug             string `json:"eventSlug"`
	Outcome               string `json:"outcome"`
	Name                  string `json:"name"`
	Pseudonym             string `json:"pseudonym"`
	Bio                   string `json:"bio"`
	ProfileImage          string `json:"profileImage"`
	ProfileImageOptimized string `json:"profileImageOptimized"`
}

// RawPosition mirrors one element of the public positions feed.
type RawPosition struct {
	ProxyWallet        string `json:"proxyWallet"`
	Asset              string `json:"asset"`
	ConditionID        string `json:"conditionId"`
	Size               any    `json:"size"`
	AvgPrice           any    `json:"avgPrice"`
	InitialValue       any    `json:"initialValue"`
	CurrentValue       any    `json:"currentValue"`
	CashPnl            any    `json:"cashPnl"`
	PercentPnl         any    `json:"percentPnl"`
	TotalBought        any    `json:"totalBought"`
	RealizedPnl        any    `json:"realizedPnl"`
	PercentRealizedPnl any    `json:"percentRealizedPnl"`
	CurPrice           any    `json:"curPrice"`
	Redeemable         bool   `json:"redeemable"`
	Mergeable          bool   `json:"mergeable"`
	NegativeRisk       bool   `json:"negativeRisk"`
	Title              string `json:"title"`
	Slug               string `json:"slug"`
	Icon               string `json:"icon"`
	EventSlug          string `json:"eventSlug"`
	Outcome            string `json:"outcome"`
	OutcomeIndex       int    `json:"outcomeIndex"`
	OppositeOutcome    string `json:"oppositeOutcome"`
	OppositeAsset      string `json:"oppositeAsset"`
	EndDate            string `json:"endDate"`
}

// DecodeList unwraps a feed payload into its element list. The API returns
// either a bare JSON array or an object wrapping the array under one of a
// few known keys; anything else decodes to an empty list. Malformed payloads
// must never poison an ingestion cycle, so this cannot fail.
func DecodeList(payload []byte, keys ...string) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err == nil {
		return items
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil
	}

	for _, key := range keys {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items
		}
	}

	return nil
}

// NormalizeTimestamp converts a feed timestamp to epoch seconds. Accepts
// numeric or string encodings; millisecond-precision values are scaled down.
func NormalizeTimestamp(value any) (int64, bool) {
	var ts int64
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		ts = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		ts = parsed
	case int64:
		ts = v
	case int:
		ts = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, false
		}
		ts = parsed
	default:
		return 0, false
	}

	if ts <= 0 {
		return 0, false
	}
	if ts > msThreshold {
		ts /= 1000
	}
	return ts, true
}

// ValidateActivity reports whether a raw feed entry is well formed and fresh
// enough to ingest. Cutoff is an epoch-seconds lower bound; entries at or
// after it pass. Only TRADE and MERGE events are executable; TRADE entries
// additionally need a side, while MERGE entries carry none.
func ValidateActivity(raw RawActivity, cutoff int64) bool {
	if strings.TrimSpace(raw.TransactionHash) == "" {
		return false
	}
	if strings.TrimSpace(raw.Asset) == "" {
		return false
	}
	ts, ok := NormalizeTimestamp(raw.Timestamp)
	if !ok || ts < cutoff {
		return false
	}
	switch strings.ToUpper(raw.Type) {
	case "MERGE":
		return true
	case "TRADE":
		return raw.Side != ""
	default:
		return false
	}
}

// BuildActivity converts a validated raw entry into its stored form.
// Execution state starts pending; the store preserves existing state on
// conflict so rebuilding the same entry is harmless.
func BuildActivity(raw RawActivity) storage.Activity {
	ts, _ := NormalizeTimestamp(raw.Timestamp)
	return storage.Activity{
		TransactionHash:       raw.TransactionHash,
		ProxyWallet:           raw.ProxyWallet,
		Timestamp:             ts,
		ConditionID:           raw.ConditionID,
		Type:                  strings.ToUpper(raw.Type),
		Side:                  strings.ToUpper(raw.Side),
		Asset:                 raw.Asset,
		Size:                  toDecimal(raw.Size),
		UsdcSize:              toDecimal(raw.UsdcSize),
		Price:                 toDecimal(raw.Price),
		OutcomeIndex:          raw.OutcomeIndex,
		Title:                 raw.Title,
		Slug:                  raw.Slug,
		Icon:                  raw.Icon,
		EventSlug:             raw.EventSlug,
		Outcome:               raw.Outcome,
		Name:                  raw.Name,
		Pseudonym:             raw.Pseudonym,
		Bio:                   raw.Bio,
		ProfileImage:          raw.ProfileImage,
		ProfileImageOptimized: raw.ProfileImageOptimized,
		BotExecuted:           false,
		BotExecutedTime:       0,
	}
}

// BuildPosition converts a raw position snapshot into its stored form.
func BuildPosition(raw RawPosition) storage.Position {
	return storage.Position{
		ProxyWallet:        raw.ProxyWallet,
		Asset:              raw.Asset,
		ConditionID:        raw.ConditionID,
		Size:               toDecimal(raw.Size),
		AvgPrice:           toDecimal(raw.AvgPrice),
		InitialValue:       toDecimal(raw.InitialValue),
		CurrentValue:       toDecimal(raw.CurrentValue),
		CashPnl:            toDecimal(raw.CashPnl),
		PercentPnl:         toDecimal(raw.PercentPnl),
		TotalBought:        toDecimal(raw.TotalBought),
		RealizedPnl:        toDecimal(raw.RealizedPnl),
		PercentRealizedPnl: toDecimal(raw.PercentRealizedPnl),
		CurPrice:           toDecimal(raw.CurPrice),
		Redeemable:         raw.Redeemable,
		Mergeable:          raw.Mergeable,
		NegativeRisk:       raw.NegativeRisk,
		Title:              raw.Title,
		Slug:               raw.Slug,
		Icon:               raw.Icon,
		EventSlug:          raw.EventSlug,
		Outcome:            raw.Outcome,
		OutcomeIndex:       raw.OutcomeIndex,
		OppositeOutcome:    raw.OppositeOutcome,
		OppositeAsset:      raw.OppositeAsset,
		EndDate:            raw.EndDate,
	}
}

func toDecimal(value any) decimal.Decimal {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return parsed
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return parsed
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	default:
		return decimal.Zero
	}
}
