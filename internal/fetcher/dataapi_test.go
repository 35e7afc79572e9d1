package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDataAPIFetchActivities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activity" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("user") != "0xdead" {
			t.Fatalf("missing user query param, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"transactionHash":"0x1","timestamp":1700000000,"type":"TRADE","side":"BUY","usdcSize":"10.5","price":0.45},
			{"transactionHash":"0x2","timestamp":"1700000001000","type":"MERGE"}
		]}`))
	}))
	defer srv.Close()

	client := NewDataAPI(DataAPIOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	activities, err := client.FetchActivities(context.Background(), "0xdead")
	if err != nil {
		t.Fatalf("FetchActivities: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(activities))
	}
	if activities[0].TransactionHash != "0x1" || activities[0].Side != "BUY" {
		t.Fatalf("unexpected first activity: %+v", activities[0])
	}
	if activities[1].Type != "MERGE" {
		t.Fatalf("unexpected second activity: %+v", activities[1])
	}
}

func TestDataAPIFetchPositionsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"asset":"123","conditionId":"0xc1","size":"40","curPrice":0.6,"negativeRisk":true}]`))
	}))
	defer srv.Close()

	client := NewDataAPI(DataAPIOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	positions, err := client.FetchPositions(context.Background(), "0xdead")
	if err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].Asset != "123" || !positions[0].NegativeRisk {
		t.Fatalf("unexpected position: %+v", positions[0])
	}
}

func TestDataAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client := NewDataAPI(DataAPIOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := client.FetchActivities(context.Background(), "0xdead"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestDataAPIRequiresAddress(t *testing.T) {
	client := NewDataAPI(DataAPIOptions{BaseURL: "http://127.0.0.1:0"}, noopLogger())
	if _, err := client.FetchActivities(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank address")
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
