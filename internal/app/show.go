package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"poly-copy-trader/internal/storage"
)

type activityLister interface {
	ListRecentActivities(ctx context.Context, limit int) ([]storage.Activity, error)
}

type positionLister interface {
	ListPositions(ctx context.Context) ([]storage.Position, error)
}

// Show prints recent activities, or current position snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	if opts.Positions {
		return a.showPositions(ctx, store)
	}
	return a.showActivities(ctx, store, opts.Limit)
}

func (a *App) showActivities(ctx context.Context, store activityLister, limit int) error {
	activities, err := store.ListRecentActivities(ctx, limit)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		fmt.Fprintln(os.Stdout, "no activities found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tType\tSide\tUSDC\tPrice\tAttempts\tDone\tMarket")

	for _, activity := range activities {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			time.Unix(activity.Timestamp, 0).UTC().Format(time.RFC3339),
			activity.Type,
			activity.Side,
			formatDecimal(activity.UsdcSize, 2),
			formatDecimal(activity.Price, 3),
			activity.BotExecutedTime,
			activity.BotExecuted,
			sanitizeInline(activity.Title),
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showPositions(ctx context.Context, store positionLister) error {
	positions, err := store.ListPositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintln(os.Stdout, "no positions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Updated (UTC)\tOutcome\tSize\tAvg\tCur\tPnL\tMarket")

	for _, position := range positions {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			position.UpdatedAt.UTC().Format(time.RFC3339),
			position.Outcome,
			formatDecimal(position.Size, 2),
			formatDecimal(position.AvgPrice, 3),
			formatDecimal(position.CurPrice, 3),
			formatDecimal(position.CashPnl, 2),
			sanitizeInline(position.Title),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
