package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const activityColumns = `
        transaction_hash,
        proxy_wallet,
        ts,
        condition_id,
        type,
        side,
        asset,
        size,
        usdc_size,
        price,
        outcome_index,
        title,
        slug,
        icon,
        event_slug,
        outcome,
        name,
        pseudonym,
        bio,
        profile_image,
        profile_image_optimized,
        bot_executed,
        bot_executed_time,
        created_at`

const (
	upsertActivitySQL = `INSERT INTO activities (
        transaction_hash,
        proxy_wallet,
        ts,
        condition_id,
        type,
        side,
        asset,
        size,
        usdc_size,
        price,
        outcome_index,
        title,
        slug,
        icon,
        event_slug,
        outcome,
        name,
        pseudonym,
        bio,
        profile_image,
        profile_image_optimized,
        bot_executed,
        bot_executed_time
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
    )
    ON CONFLICT (transaction_hash) DO UPDATE
    SET
        proxy_wallet            = EXCLUDED.proxy_wallet,
        ts                      = EXCLUDED.ts,
        condition_id            = EXCLUDED.condition_id,
        type                    = EXCLUDED.type,
        side                    = EXCLUDED.side,
        asset                   = EXCLUDED.asset,
        size                    = EXCLUDED.size,
        usdc_size               = EXCLUDED.usdc_size,
        price                   = EXCLUDED.price,
        outcome_index           = EXCLUDED.outcome_index,
        title                   = EXCLUDED.title,
        slug                    = EXCLUDED.slug,
        icon                    = EXCLUDED.icon,
        event_slug              = EXCLUDED.event_slug,
        outcome                 = EXCLUDED.outcome,
        name                    = EXCLUDED.name,
        pseudonym               = EXCLUDED.pseudonym,
        bio                     = EXCLUDED.bio,
        profile_image           = EXCLUDED.profile_image,
        profile_image_optimized = EXCLUDED.profile_image_optimized;`

	getActivitySQL = `SELECT` + activityColumns + `
    FROM activities
    WHERE transaction_hash = $1;`

	listAllActivitiesSQL = `SELECT` + activityColumns + `
    FROM activities
    ORDER BY ts;`

	listPendingTradesSQL = `SELECT` + activityColumns + `
    FROM activities
    WHERE NOT bot_executed
      AND bot_executed_time < $1
    ORDER BY ts;`

	listRecentActivitiesSQL = `SELECT` + activityColumns + `
    FROM activities
    ORDER BY ts DESC
    LIMIT $1;`

	listActivitiesBetweenSQL = `SELECT` + activityColumns + `
    FROM activities
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	incrementAttemptSQL = `UPDATE activities
    SET bot_executed_time = bot_executed_time + 1,
        bot_executed      = bot_executed OR bot_executed_time + 1 >= $2
    WHERE transaction_hash = $1
    RETURNING bot_executed_time, bot_executed;`

	markExecutedSQL = `UPDATE activities
    SET bot_executed = TRUE
    WHERE transaction_hash = $1;`

	countActivitiesSQL = `SELECT COUNT(*) FROM activities;`

	upsertPositionSQL = `INSERT INTO positions (
        asset,
        condition_id,
        proxy_wallet,
        size,
        avg_price,
        initial_value,
        current_value,
        cash_pnl,
        percent_pnl,
        total_bought,
        realized_pnl,
        percent_realized_pnl,
        cur_price,
        redeemable,
        mergeable,
        negative_risk,
        title,
        slug,
        icon,
        event_slug,
        outcome,
        outcome_index,
        opposite_outcome,
        opposite_asset,
        end_date,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,now()
    )
    ON CONFLICT (asset, condition_id) DO UPDATE
    SET
        proxy_wallet         = EXCLUDED.proxy_wallet,
        size                 = EXCLUDED.size,
        avg_price            = EXCLUDED.avg_price,
        initial_value        = EXCLUDED.initial_value,
        current_value        = EXCLUDED.current_value,
        cash_pnl             = EXCLUDED.cash_pnl,
        percent_pnl          = EXCLUDED.percent_pnl,
        total_bought         = EXCLUDED.total_bought,
        realized_pnl         = EXCLUDED.realized_pnl,
        percent_realized_pnl = EXCLUDED.percent_realized_pnl,
        cur_price            = EXCLUDED.cur_price,
        redeemable           = EXCLUDED.redeemable,
        mergeable            = EXCLUDED.mergeable,
        negative_risk        = EXCLUDED.negative_risk,
        title                = EXCLUDED.title,
        slug                 = EXCLUDED.slug,
        icon                 = EXCLUDED.icon,
        event_slug           = EXCLUDED.event_slug,
        outcome              = EXCLUDED.outcome,
        outcome_index        = EXCLUDED.outcome_index,
        opposite_outcome     = EXCLUDED.opposite_outcome,
        opposite_asset       = EXCLUDED.opposite_asset,
        end_date             = EXCLUDED.end_date,
        updated_at           = now();`

	listPositionsSQL = `SELECT
        asset,
        condition_id,
        proxy_wallet,
        size,
        avg_price,
        initial_value,
        current_value,
        cash_pnl,
        percent_pnl,
        total_bought,
        realized_pnl,
        percent_realized_pnl,
        cur_price,
        redeemable,
        mergeable,
        negative_risk,
        title,
        slug,
        icon,
        event_slug,
        outcome,
        outcome_index,
        opposite_outcome,
        opposite_asset,
        end_date,
        updated_at
    FROM positions
    ORDER BY updated_at DESC;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ActivityStore defines the activity persistence operations the two loops
// depend on. All mutations are single-row and atomic.
type ActivityStore interface {
	UpsertActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, transactionHash string) (Activity, error)
	ListAllActivities(ctx context.Context) ([]Activity, error)
	ListPendingTrades(ctx context.Context, retryLimit int) ([]Activity, error)
	IncrementAttempt(ctx context.Context, transactionHash string, retryLimit int) (attempts int, terminal bool, err error)
	MarkExecuted(ctx context.Context, transactionHash string) error
}

// PositionStore defines position snapshot persistence.
type PositionStore interface {
	UpsertPosition(ctx context.Context, position Position) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to activities and positions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. The run command holds it for its lifetime so a second trading
// process cannot execute against the same history.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; releasing the session drops the lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertActivity persists an activity. Non-execution fields are always
// overwritten; bot_executed and bot_executed_time take effect only when the
// row is first inserted, so re-observing a tracked trade never resets its
// attempt counter or terminal flag.
func (s *Store) UpsertActivity(ctx context.Context, activity Activity) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertActivitySQL,
		activity.TransactionHash,
		activity.ProxyWallet,
		activity.Timestamp,
		activity.ConditionID,
		activity.Type,
		activity.Side,
		activity.Asset,
		activity.Size.String(),
		activity.UsdcSize.String(),
		activity.Price.String(),
		activity.OutcomeIndex,
		activity.Title,
		activity.Slug,
		activity.Icon,
		activity.EventSlug,
		activity.Outcome,
		activity.Name,
		activity.Pseudonym,
		activity.Bio,
		activity.ProfileImage,
		activity.ProfileImageOptimized,
		activity.BotExecuted,
		activity.BotExecutedTime,
	)
	if execErr != nil {
		return fmt.Errorf("upsert activity: %w", execErr)
	}
	return nil
}

// GetActivity loads one activity by transaction hash.
func (s *Store) GetActivity(ctx context.Context, transactionHash string) (Activity, error) {
	pool, err := s.getPool()
	if err != nil {
		return Activity{}, err
	}

	activity, scanErr := scanActivity(pool.QueryRow(ctx, getActivitySQL, transactionHash))
	if scanErr != nil {
		return Activity{}, fmt.Errorf("get activity: %w", scanErr)
	}
	return activity, nil
}

// ListAllActivities loads the full persisted history.
func (s *Store) ListAllActivities(ctx context.Context) ([]Activity, error) {
	return s.queryActivities(ctx, listAllActivitiesSQL)
}

// ListPendingTrades lists activities still eligible for execution: not yet
// terminal and under the retry limit. Classification happens downstream.
func (s *Store) ListPendingTrades(ctx context.Context, retryLimit int) ([]Activity, error) {
	return s.queryActivities(ctx, listPendingTradesSQL, retryLimit)
}

// ListRecentActivities lists the most recent activities by feed timestamp.
func (s *Store) ListRecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	return s.queryActivities(ctx, listRecentActivitiesSQL, limit)
}

// ListActivitiesBetween lists activities within a feed-timestamp window.
func (s *Store) ListActivitiesBetween(ctx context.Context, from, to time.Time) ([]Activity, error) {
	return s.queryActivities(ctx, listActivitiesBetweenSQL, from.Unix(), to.Unix())
}

func (s *Store) queryActivities(ctx context.Context, sql string, args ...any) ([]Activity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query activities: %w", queryErr)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		activity, scanErr := scanActivity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		activities = append(activities, activity)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return activities, nil
}

// IncrementAttempt atomically bumps the attempt counter and flips the
// terminal flag in the same statement when the counter reaches the retry
// limit. Returns the post-increment state.
func (s *Store) IncrementAttempt(ctx context.Context, transactionHash string, retryLimit int) (int, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}

	var attempts int
	var terminal bool
	if scanErr := pool.QueryRow(ctx, incrementAttemptSQL, transactionHash, retryLimit).Scan(&attempts, &terminal); scanErr != nil {
		return 0, false, fmt.Errorf("increment attempt: %w", scanErr)
	}
	return attempts, terminal, nil
}

// MarkExecuted flips the terminal flag. Used for executed trades and for
// unsupported actions that can never become executable.
func (s *Store) MarkExecuted(ctx context.Context, transactionHash string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markExecutedSQL, transactionHash)
	if execErr != nil {
		return fmt.Errorf("mark executed: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountActivities counts stored activities.
func (s *Store) CountActivities(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countActivitiesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count activities: %w", scanErr)
	}
	return count, nil
}

// UpsertPosition persists a position snapshot with last-write-wins semantics.
func (s *Store) UpsertPosition(ctx context.Context, position Position) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPositionSQL,
		position.Asset,
		position.ConditionID,
		position.ProxyWallet,
		position.Size.String(),
		position.AvgPrice.String(),
		position.InitialValue.String(),
		position.CurrentValue.String(),
		position.CashPnl.String(),
		position.PercentPnl.String(),
		position.TotalBought.String(),
		position.RealizedPnl.String(),
		position.PercentRealizedPnl.String(),
		position.CurPrice.String(),
		position.Redeemable,
		position.Mergeable,
		position.NegativeRisk,
		position.Title,
		position.Slug,
		position.Icon,
		position.EventSlug,
		position.Outcome,
		position.OutcomeIndex,
		position.OppositeOutcome,
		position.OppositeAsset,
		position.EndDate,
	)
	if execErr != nil {
		return fmt.Errorf("upsert position: %w", execErr)
	}
	return nil
}

// ListPositions lists stored position snapshots, most recently updated first.
func (s *Store) ListPositions(ctx context.Context) ([]Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPositionsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list positions: %w", queryErr)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		position, scanErr := scanPosition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		positions = append(positions, position)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return positions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (Activity, error) {
	var (
		activity Activity
		sizeStr  string
		usdcStr  string
		priceStr string
	)

	if err := row.Scan(
		&activity.TransactionHash,
		&activity.ProxyWallet,
		&activity.Timestamp,
		&activity.ConditionID,
		&activity.Type,
		&activity.Side,
		&activity.Asset,
		&sizeStr,
		&usdcStr,
		&priceStr,
		&activity.OutcomeIndex,
		&activity.Title,
		&activity.Slug,
		&activity.Icon,
		&activity.EventSlug,
		&activity.Outcome,
		&activity.Name,
		&activity.Pseudonym,
		&activity.Bio,
		&activity.ProfileImage,
		&activity.ProfileImageOptimized,
		&activity.BotExecuted,
		&activity.BotExecutedTime,
		&activity.CreatedAt,
	); err != nil {
		return Activity{}, err
	}

	var convErr error
	activity.Size, convErr = decimal.NewFromString(sizeStr)
	if convErr != nil {
		return Activity{}, fmt.Errorf("parse size: %w", convErr)
	}
	activity.UsdcSize, convErr = decimal.NewFromString(usdcStr)
	if convErr != nil {
		return Activity{}, fmt.Errorf("parse usdc size: %w", convErr)
	}
	activity.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return Activity{}, fmt.Errorf("parse price: %w", convErr)
	}

	return activity, nil
}

func scanPosition(row rowScanner) (Position, error) {
	var (
		position Position
		numStrs  [10]string
	)

	if err := row.Scan(
		&position.Asset,
		&position.ConditionID,
		&position.ProxyWallet,
		&numStrs[0],
		&numStrs[1],
		&numStrs[2],
		&numStrs[3],
		&numStrs[4],
		&numStrs[5],
		&numStrs[6],
		&numStrs[7],
		&numStrs[8],
		&numStrs[9],
		&position.Redeemable,
		&position.Mergeable,
		&position.NegativeRisk,
		&position.Title,
		&position.Slug,
		&position.Icon,
		&position.EventSlug,
		&position.Outcome,
		&position.OutcomeIndex,
		&position.OppositeOutcome,
		&position.OppositeAsset,
		&position.EndDate,
		&position.UpdatedAt,
	); err != nil {
		return Position{}, err
	}

	targets := []*decimal.Decimal{
		&position.Size,
		&position.AvgPrice,
		&position.InitialValue,
		&position.CurrentValue,
		&position.CashPnl,
		&position.PercentPnl,
		&position.TotalBought,
		&position.RealizedPnl,
		&position.PercentRealizedPnl,
		&position.CurPrice,
	}
	for i, target := range targets {
		value, err := decimal.NewFromString(numStrs[i])
		if err != nil {
			return Position{}, fmt.Errorf("parse position numeric: %w", err)
		}
		*target = value
	}

	return position, nil
}
