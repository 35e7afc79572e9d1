package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"poly-copy-trader/internal/fetcher"
	"poly-copy-trader/internal/scheduler"
	"poly-copy-trader/internal/storage"
)

// Options parameterise the activity synchronizer.
type Options struct {
	TrackedAddress  string
	FreshnessWindow time.Duration
	Interval        time.Duration
	StartupDelay    time.Duration
}

// Synchronizer mirrors the tracked trader's public feed into the store.
// Each cycle fetches activities and positions, validates and normalises
// feed entries, and upserts every valid one. Execution state on existing
// rows is never touched here.
type Synchronizer struct {
	opts       Options
	feed       fetcher.FeedFetcher
	activities storage.ActivityStore
	positions  storage.PositionStore
	logger     zerolog.Logger
	set        *workingSet
	now        func() time.Time
}

// New constructs a Synchronizer.
func New(opts Options, feed fetcher.FeedFetcher, activities storage.ActivityStore, positions storage.PositionStore, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		opts:       opts,
		feed:       feed,
		activities: activities,
		positions:  positions,
		logger:     logger.With().Str("component", "monitor").Logger(),
		set:        newWorkingSet(),
		now:        time.Now,
	}
}

// Init seeds the working set from persisted history so a restart does not
// re-ingest everything the store already holds.
func (s *Synchronizer) Init(ctx context.Context) error {
	stored, err := s.activities.ListAllActivities(ctx)
	if err != nil {
		return fmt.Errorf("load persisted activities: %w", err)
	}
	for _, activity := range stored {
		s.set.Add(activity.TransactionHash, activity.Timestamp)
	}
	s.logger.Info().Int("tracked", s.set.Len()).Msg("working set initialised")
	return nil
}

// Run drives RunCycle on the configured interval until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Interval:     s.opts.Interval,
		StartupDelay: s.opts.StartupDelay,
	}, s.logger)
	return sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return s.RunCycle(ctx)
	})
}

// RunCycle performs one synchronisation pass. The two feed fetches run
// concurrently; a failure on one side does not block persisting the other.
func (s *Synchronizer) RunCycle(ctx context.Context) error {
	var (
		wg           sync.WaitGroup
		rawActs      []fetcher.RawActivity
		rawPositions []fetcher.RawPosition
		actErr       error
		posErr       error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		rawActs, actErr = s.feed.FetchActivities(ctx, s.opts.TrackedAddress)
	}()
	go func() {
		defer wg.Done()
		rawPositions, posErr = s.feed.FetchPositions(ctx, s.opts.TrackedAddress)
	}()
	wg.Wait()

	if actErr == nil {
		actErr = s.ingestActivities(ctx, rawActs)
	} else {
		actErr = fmt.Errorf("fetch activities: %w", actErr)
	}
	if posErr == nil {
		posErr = s.ingestPositions(ctx, rawPositions)
	} else {
		posErr = fmt.Errorf("fetch positions: %w", posErr)
	}

	return errors.Join(actErr, posErr)
}

func (s *Synchronizer) ingestActivities(ctx context.Context, raws []fetcher.RawActivity) error {
	cutoff := s.now().Add(-s.opts.FreshnessWindow).Unix()

	fresh := make(map[string]struct{}, len(raws))
	valid := make([]fetcher.RawActivity, 0, len(raws))
	for _, raw := range raws {
		if !fetcher.ValidateActivity(raw, cutoff) {
			continue
		}
		fresh[raw.TransactionHash] = struct{}{}
		valid = append(valid, raw)
	}

	evicted := s.set.Prune(cutoff, fresh)

	ingested := 0
	for _, raw := range valid {
		// Every valid entry is upserted each cycle so that corrected feed
		// fields on a known record still reach the store; the upsert never
		// touches execution state on existing rows.
		activity := fetcher.BuildActivity(raw)
		if err := s.activities.UpsertActivity(ctx, activity); err != nil {
			return fmt.Errorf("ingest activity %s: %w", activity.TransactionHash, err)
		}
		if s.set.Has(activity.TransactionHash) {
			continue
		}

		// Track the persisted record, not the freshly built one: on
		// resurrection the stored row carries the authoritative
		// execution state and timestamp.
		stored, err := s.activities.GetActivity(ctx, activity.TransactionHash)
		if err != nil {
			return fmt.Errorf("read back activity %s: %w", activity.TransactionHash, err)
		}
		s.set.Add(stored.TransactionHash, stored.Timestamp)
		ingested++

		s.logger.Info().
			Str("tx", activity.TransactionHash).
			Str("type", activity.Type).
			Str("side", activity.Side).
			Str("title", activity.Title).
			Str("usdc_size", activity.UsdcSize.String()).
			Msg("new activity ingested")
	}

	if ingested > 0 || evicted > 0 {
		s.logger.Debug().
			Int("ingested", ingested).
			Int("evicted", evicted).
			Int("tracked", s.set.Len()).
			Msg("synchronisation cycle complete")
	}
	return nil
}

func (s *Synchronizer) ingestPositions(ctx context.Context, raws []fetcher.RawPosition) error {
	for _, raw := range raws {
		if strings.TrimSpace(raw.Asset) == "" || strings.TrimSpace(raw.ConditionID) == "" {
			continue
		}
		position := fetcher.BuildPosition(raw)
		if err := s.positions.UpsertPosition(ctx, position); err != nil {
			return fmt.Errorf("ingest position %s: %w", position.Asset, err)
		}
	}
	return nil
}
