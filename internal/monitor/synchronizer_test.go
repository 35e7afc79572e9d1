package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"poly-copy-trader/internal/fetcher"
	"poly-copy-trader/internal/storage"
)

type fakeFeed struct {
	activities []fetcher.RawActivity
	positions  []fetcher.RawPosition
}

func (f *fakeFeed) FetchActivities(context.Context, string) ([]fetcher.RawActivity, error) {
	return f.activities, nil
}

func (f *fakeFeed) FetchPositions(context.Context, string) ([]fetcher.RawPosition, error) {
	return f.positions, nil
}

// upsertStore mimics the insert-only execution-state semantics of the real
// store: feed fields overwrite, execution state survives.
type upsertStore struct {
	rows    map[string]storage.Activity
	upserts int
}

func newUpsertStore() *upsertStore {
	return &upsertStore{rows: make(map[string]storage.Activity)}
}

func (s *upsertStore) UpsertActivity(_ context.Context, activity storage.Activity) error {
	s.upserts++
	if existing, ok := s.rows[activity.TransactionHash]; ok {
		activity.BotExecuted = existing.BotExecuted
		activity.BotExecutedTime = existing.BotExecutedTime
	}
	s.rows[activity.TransactionHash] = activity
	return nil
}

func (s *upsertStore) GetActivity(_ context.Context, hash string) (storage.Activity, error) {
	return s.rows[hash], nil
}

func (s *upsertStore) ListAllActivities(context.Context) ([]storage.Activity, error) {
	all := make([]storage.Activity, 0, len(s.rows))
	for _, activity := range s.rows {
		all = append(all, activity)
	}
	return all, nil
}

func (s *upsertStore) ListPendingTrades(context.Context, int) ([]storage.Activity, error) {
	return nil, nil
}

func (s *upsertStore) IncrementAttempt(context.Context, string, int) (int, bool, error) {
	return 0, false, nil
}

func (s *upsertStore) MarkExecuted(context.Context, string) error { return nil }

type positionSink struct {
	upserts []storage.Position
}

func (p *positionSink) UpsertPosition(_ context.Context, position storage.Position) error {
	p.upserts = append(p.upserts, position)
	return nil
}

var testNow = time.Unix(1_700_100_000, 0)

func newTestSynchronizer(feed *fakeFeed, store *upsertStore, positions *positionSink) *Synchronizer {
	s := New(Options{
		TrackedAddress:  "0xdead",
		FreshnessWindow: 24 * time.Hour,
	}, feed, store, positions, zerolog.Nop())
	s.now = func() time.Time { return testNow }
	return s
}

func rawTrade(hash string, ts int64) fetcher.RawActivity {
	return fetcher.RawActivity{
		TransactionHash: hash,
		Asset:           "123",
		Timestamp:       float64(ts),
		Type:            "TRADE",
		Side:            "BUY",
		UsdcSize:        "10",
		Price:           "0.5",
	}
}

func TestRunCycleIngestsFreshActivities(t *testing.T) {
	feed := &fakeFeed{activities: []fetcher.RawActivity{
		rawTrade("0x1", testNow.Unix()-60),
		rawTrade("0x2", testNow.Unix()-25*3600), // older than the window
		{TransactionHash: "0x3", Asset: "123", Timestamp: float64(testNow.Unix()), Type: "TRADE"}, // no side
	}}
	store := newUpsertStore()
	sync := newTestSynchronizer(feed, store, &positionSink{})

	if err := sync.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", store.upserts)
	}
	if _, ok := store.rows["0x1"]; !ok {
		t.Fatal("fresh trade should be ingested")
	}
}

func TestRepeatedCyclesPreserveExecutionState(t *testing.T) {
	feed := &fakeFeed{activities: []fetcher.RawActivity{rawTrade("0x1", testNow.Unix()-60)}}
	store := newUpsertStore()
	sync := newTestSynchronizer(feed, store, &positionSink{})

	ctx := context.Background()
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// The engine marks the trade terminal between cycles; later passes over
	// the same feed entry must leave that state alone.
	row := store.rows["0x1"]
	row.BotExecuted = true
	row.BotExecutedTime = 1
	store.rows["0x1"] = row

	for i := 0; i < 2; i++ {
		if err := sync.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle %d: %v", i, err)
		}
	}

	if got := store.rows["0x1"]; !got.BotExecuted || got.BotExecutedTime != 1 {
		t.Fatalf("execution state clobbered by re-synchronisation: %+v", got)
	}
}

func TestRunCycleRefreshesFeedFields(t *testing.T) {
	first := rawTrade("0x1", testNow.Unix()-60)
	first.Title = "old title"
	feed := &fakeFeed{activities: []fetcher.RawActivity{first}}
	store := newUpsertStore()
	sync := newTestSynchronizer(feed, store, &positionSink{})

	ctx := context.Background()
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// The feed later serves the same transaction with corrected metadata;
	// the next cycle must persist it even though the hash is already known.
	second := first
	second.Title = "corrected title"
	feed.activities = []fetcher.RawActivity{second}
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if got := store.rows["0x1"].Title; got != "corrected title" {
		t.Fatalf("title = %q, want corrected title", got)
	}
}

func TestInitSeedsWorkingSetFromStore(t *testing.T) {
	store := newUpsertStore()
	store.rows["0x1"] = storage.Activity{
		TransactionHash: "0x1",
		Timestamp:       testNow.Unix() - 60,
		Type:            "TRADE",
		Side:            "BUY",
		BotExecuted:     true,
		BotExecutedTime: 1,
	}

	feed := &fakeFeed{activities: []fetcher.RawActivity{rawTrade("0x1", testNow.Unix()-60)}}
	sync := newTestSynchronizer(feed, store, &positionSink{})

	ctx := context.Background()
	if err := sync.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if sync.set.Len() != 1 {
		t.Fatalf("working set should hold the persisted trade, len = %d", sync.set.Len())
	}
	if !store.rows["0x1"].BotExecuted {
		t.Fatal("execution state must survive re-synchronisation")
	}
}

func TestWorkingSetPruneAndResurrect(t *testing.T) {
	old := testNow.Unix() - 60
	feed := &fakeFeed{activities: []fetcher.RawActivity{rawTrade("0x1", old)}}
	store := newUpsertStore()
	sync := newTestSynchronizer(feed, store, &positionSink{})

	ctx := context.Background()
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sync.set.Len() != 1 {
		t.Fatalf("working set should track the trade, len = %d", sync.set.Len())
	}

	// Time passes beyond the freshness window and the feed no longer
	// carries the entry: it must fall out of the working set.
	sync.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	feed.activities = nil
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sync.set.Len() != 0 {
		t.Fatalf("stale absent entry should be evicted, len = %d", sync.set.Len())
	}

	// An old entry still present in the feed is kept, not evicted.
	sync.set.Add("0x2", old)
	feed.activities = []fetcher.RawActivity{rawTrade("0x2", sync.now().Unix() - 60)}
	if err := sync.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !sync.set.Has("0x2") {
		t.Fatal("entry still present in the feed must stay tracked")
	}
}

func TestRunCycleIngestsPositions(t *testing.T) {
	feed := &fakeFeed{positions: []fetcher.RawPosition{
		{Asset: "123", ConditionID: "0xc1", Size: "40", CurPrice: 0.6},
		{Asset: "", ConditionID: "0xc2"}, // malformed, skipped
	}}
	positions := &positionSink{}
	sync := newTestSynchronizer(feed, newUpsertStore(), positions)

	if err := sync.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(positions.upserts) != 1 {
		t.Fatalf("expected 1 position upsert, got %d", len(positions.upserts))
	}
	if positions.upserts[0].Asset != "123" || positions.upserts[0].Size.String() != "40" {
		t.Fatalf("unexpected position: %+v", positions.upserts[0])
	}
}
