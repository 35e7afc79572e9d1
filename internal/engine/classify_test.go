package engine

import (
	"testing"

	"poly-copy-trader/internal/storage"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		activity storage.Activity
		want     Action
	}{
		{"trade buy", storage.Activity{Type: "TRADE", Side: "BUY"}, ActionBuy},
		{"trade sell", storage.Activity{Type: "TRADE", Side: "SELL"}, ActionSell},
		{"merge type", storage.Activity{Type: "MERGE"}, ActionMerge},
		{"merge type wins over side", storage.Activity{Type: "MERGE", Side: "BUY"}, ActionMerge},
		{"merge side", storage.Activity{Type: "TRADE", Side: "MERGE"}, ActionMerge},
		{"trade with odd side", storage.Activity{Type: "TRADE", Side: "SHORT"}, ActionUnsupported},
		{"empty", storage.Activity{}, ActionUnsupported},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.activity); got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}
