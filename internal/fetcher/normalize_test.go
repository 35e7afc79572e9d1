package fetcher

import (
	"encoding/json"
	"testing"
)

func TestNormalizeTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"seconds float", float64(1_700_000_000), 1_700_000_000, true},
		{"milliseconds float", float64(1_700_000_000_000), 1_700_000_000, true},
		{"seconds string", "1700000000", 1_700_000_000, true},
		{"milliseconds string", "1700000000000", 1_700_000_000, true},
		{"json number", json.Number("1700000000"), 1_700_000_000, true},
		{"garbage string", "abc", 0, false},
		{"zero", float64(0), 0, false},
		{"negative", float64(-5), 0, false},
		{"nil", nil, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tc.value)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestValidateActivity(t *testing.T) {
	base := RawActivity{
		TransactionHash: "0xabc",
		Asset:           "123",
		Timestamp:       float64(1_700_000_000),
		Type:            "TRADE",
		Side:            "BUY",
	}

	t.Run("valid trade passes", func(t *testing.T) {
		if !ValidateActivity(base, 1_600_000_000) {
			t.Fatal("expected valid trade to pass")
		}
	})

	t.Run("missing hash rejected", func(t *testing.T) {
		raw := base
		raw.TransactionHash = "  "
		if ValidateActivity(raw, 0) {
			t.Fatal("expected empty hash to be rejected")
		}
	})

	t.Run("trade without side rejected", func(t *testing.T) {
		raw := base
		raw.Side = ""
		if ValidateActivity(raw, 0) {
			t.Fatal("expected TRADE without side to be rejected")
		}
	})

	t.Run("merge without side accepted", func(t *testing.T) {
		raw := base
		raw.Type = "MERGE"
		raw.Side = ""
		if !ValidateActivity(raw, 0) {
			t.Fatal("expected MERGE without side to pass")
		}
	})

	t.Run("stale entry rejected", func(t *testing.T) {
		if ValidateActivity(base, 1_700_000_001) {
			t.Fatal("expected entry before cutoff to be rejected")
		}
	})

	t.Run("unparseable timestamp rejected", func(t *testing.T) {
		raw := base
		raw.Timestamp = "not-a-number"
		if ValidateActivity(raw, 0) {
			t.Fatal("expected bad timestamp to be rejected")
		}
	})

	t.Run("missing type rejected", func(t *testing.T) {
		raw := base
		raw.Type = ""
		if ValidateActivity(raw, 0) {
			t.Fatal("expected missing type to be rejected")
		}
	})

	t.Run("missing asset rejected", func(t *testing.T) {
		raw := base
		raw.Asset = ""
		if ValidateActivity(raw, 0) {
			t.Fatal("expected missing asset to be rejected")
		}
	})

	t.Run("non-trade event type rejected", func(t *testing.T) {
		raw := base
		raw.Type = "REDEEM"
		if ValidateActivity(raw, 0) {
			t.Fatal("expected REDEEM event to be rejected")
		}
	})

	t.Run("lowercase type accepted", func(t *testing.T) {
		raw := base
		raw.Type = "trade"
		if !ValidateActivity(raw, 0) {
			t.Fatal("expected lowercase trade type to pass")
		}
	})
}

func TestDecodeListShapes(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		items := DecodeList([]byte(`[{"a":1},{"a":2}]`), "data")
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
	})

	t.Run("wrapped under first key", func(t *testing.T) {
		items := DecodeList([]byte(`{"data":[{"a":1}]}`), "data", "activities")
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
	})

	t.Run("wrapped under fallback key", func(t *testing.T) {
		items := DecodeList([]byte(`{"activities":[{"a":1},{"a":2},{"a":3}]}`), "data", "activities")
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
	})

	// Malformed payloads decode to an empty list, never an error: one bad
	// response must not abort an ingestion cycle.
	t.Run("unknown wrapper key is empty", func(t *testing.T) {
		if items := DecodeList([]byte(`{"unknown":[{"a":1}]}`), "data", "activities", "results"); len(items) != 0 {
			t.Fatalf("expected empty list, got %d items", len(items))
		}
	})

	t.Run("bare scalar is empty", func(t *testing.T) {
		if items := DecodeList([]byte(`"oops"`), "data"); len(items) != 0 {
			t.Fatalf("expected empty list, got %d items", len(items))
		}
	})

	t.Run("wrapper with non-array value is empty", func(t *testing.T) {
		if items := DecodeList([]byte(`{"data":"oops"}`), "data"); len(items) != 0 {
			t.Fatalf("expected empty list, got %d items", len(items))
		}
	})

	t.Run("invalid json is empty", func(t *testing.T) {
		if items := DecodeList([]byte(`{{`), "data"); len(items) != 0 {
			t.Fatalf("expected empty list, got %d items", len(items))
		}
	})
}

func TestBuildActivityNumericCoercion(t *testing.T) {
	raw := RawActivity{
		TransactionHash: "0xabc",
		Asset:           "123",
		Timestamp:       "1700000000000",
		Type:            "trade",
		Side:            "sell",
		Size:            "12.5",
		UsdcSize:        float64(6.25),
		Price:           "0.5",
	}

	activity := BuildActivity(raw)

	if activity.Timestamp != 1_700_000_000 {
		t.Fatalf("timestamp = %d, want 1700000000", activity.Timestamp)
	}
	if activity.Type != "TRADE" || activity.Side != "SELL" {
		t.Fatalf("type/side should be uppercased, got %s/%s", activity.Type, activity.Side)
	}
	if activity.Size.String() != "12.5" {
		t.Fatalf("size = %s, want 12.5", activity.Size)
	}
	if activity.UsdcSize.String() != "6.25" {
		t.Fatalf("usdc size = %s, want 6.25", activity.UsdcSize)
	}
	if activity.BotExecuted || activity.BotExecutedTime != 0 {
		t.Fatalf("execution state should start pending, got executed=%v attempts=%d", activity.BotExecuted, activity.BotExecutedTime)
	}
}
