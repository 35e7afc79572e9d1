package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"poly-copy-trader/internal/storage"
)

// Export renders activity history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-a.Config.Monitor.FreshnessWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	activities, err := store.ListActivitiesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		a.Logger.Info().Msg("no activities found for export window")
		return nil
	}

	downsampled := downsampleActivities(activities, opts.MaxPoints)
	a.Logger.Info().Int("total", len(activities)).Int("exported", len(downsampled)).Msg("exporting activities")

	if opts.CSVPath != "" {
		if err := writeActivitiesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeActivitiesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleActivities(activities []storage.Activity, max int) []storage.Activity {
	if max <= 0 || len(activities) <= max {
		return activities
	}

	result := make([]storage.Activity, 0, max)
	step := float64(len(activities)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(activities) {
			idx = len(activities) - 1
		}
		result = append(result, activities[idx])
	}
	return result
}

func writeActivitiesCSV(path string, activities []storage.Activity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"time", "transaction_hash", "type", "side", "size", "usdc_size", "price", "outcome", "title", "attempts", "executed"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, activity := range activities {
		executed := "false"
		if activity.BotExecuted {
			executed = "true"
		}
		record := []string{
			time.Unix(activity.Timestamp, 0).UTC().Format(time.RFC3339),
			activity.TransactionHash,
			activity.Type,
			activity.Side,
			activity.Size.String(),
			activity.UsdcSize.String(),
			activity.Price.String(),
			activity.Outcome,
			sanitizeInline(activity.Title),
			formatDecimal(decimal.NewFromInt(int64(activity.BotExecutedTime)), 0),
			executed,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeActivitiesPNG(path string, activities []storage.Activity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(activities))
	price := make([]float64, len(activities))
	notional := make([]float64, len(activities))

	for i, activity := range activities {
		x[i] = time.Unix(activity.Timestamp, 0).UTC()
		price[i] = activity.Price.InexactFloat64()
		notional[i] = activity.UsdcSize.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Trade price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Notional (USDC)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Notional",
				XValues: x,
				YValues: notional,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
