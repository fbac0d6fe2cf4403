package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"habitstock/internal/analysis/aggregate"
	"habitstock/internal/analysis/indicators"
	"habitstock/internal/chart"
	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

// Moving average windows overlaid on the chart.
var maWindows = []int{5, 20, 60}

func newChartCmd(app *App) *cobra.Command {
	var period string
	var from, to string
	var friend string
	var zoom float64
	var pan int

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show the price chart",
		Long: `Renders the aggregated price history as a candle table with moving
average overlays (5, 20 and 60 periods).

The viewport starts at the widest allowed window anchored on the newest data;
--zoom pinches it (>1 zooms in) and --pan scrolls it (negative moves toward
older data). Moving averages are computed over the full history and sliced to
the viewport, so overlay values do not change as you pan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			p := models.Period(period)
			bars, err := app.chartBars(cmd, friend, from, to)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				output.Dim("No price history yet.")
				return nil
			}

			buckets, err := aggregate.Aggregate(bars, p)
			if err != nil {
				return err
			}

			closes := indicators.BucketCloses(buckets)
			overlays := make(map[int][]float64, len(maWindows))
			for _, w := range maWindows {
				overlays[w] = indicators.MovingAverage(closes, w)
			}

			view := chart.NewViewport(len(buckets))
			if zoom != 1.0 {
				view.Pinch(zoom)
			}
			if pan != 0 {
				view.Pan(pan)
			}

			visible := chart.Slice(view, buckets)
			if output.IsJSON() {
				return output.JSON(visible)
			}

			headers := []string{"PERIOD", "OPEN", "HIGH", "LOW", "CLOSE", "CHANGE", "VOL"}
			for _, w := range maWindows {
				headers = append(headers, fmt.Sprintf("MA%d", w))
			}
			table := NewTable(output, headers...)

			start, _ := view.Bounds()
			for i, b := range visible {
				row := []string{
					b.Key,
					utils.FormatMoney(b.Open),
					utils.FormatMoney(b.High),
					utils.FormatMoney(b.Low),
					utils.FormatMoney(b.Close),
					output.FormatChange(utils.Round1(b.Close - b.Open)),
					fmt.Sprintf("%d", b.Volume),
				}
				for _, w := range maWindows {
					row = append(row, formatMA(overlays[w], start+i))
				}
				table.AddRow(row...)
			}
			table.Render()
			output.Dim("showing %d of %d %s buckets", len(visible), len(buckets), p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "day", "aggregation period (day|week|month)")
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD (default: first bar)")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&friend, "friend", "", "chart a followed user instead of yourself")
	cmd.Flags().Float64Var(&zoom, "zoom", 1.0, "pinch scale (>1 zooms in, <1 zooms out)")
	cmd.Flags().IntVar(&pan, "pan", 0, "scroll the viewport by N buckets (negative = older)")
	return cmd
}

// chartBars resolves the gap-free daily series to chart, either the user's
// own ledger or a friend's cached snapshot.
func (app *App) chartBars(cmd *cobra.Command, friend, from, to string) ([]models.StockBar, error) {
	for _, d := range []string{from, to} {
		if d != "" && !utils.ValidDate(d) {
			return nil, apperrors.Wrapf(apperrors.ErrInputValidation, "invalid date %q, want YYYY-MM-DD", d)
		}
	}
	if to == "" {
		to = utils.Today()
	}

	if friend == "" {
		if from == "" {
			from = firstBarDate(app.Ledger.Bars(), to)
		}
		return app.Ledger.DenseBars(from, to), nil
	}

	if app.Social == nil {
		return nil, apperrors.Wrap(apperrors.ErrDataNotFound, "social features unavailable")
	}
	if err := app.Social.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	stock, err := app.Social.FriendBars(friend)
	if err != nil {
		return nil, err
	}
	if from == "" {
		from = firstBarDate(stock.Bars, to)
	}
	return aggregate.FillGaps(stock.Bars, from, to, app.Config.User.InitialPrice), nil
}

func firstBarDate(bars map[string]models.StockBar, fallback string) string {
	if len(bars) == 0 {
		return fallback
	}
	dates := make([]string, 0, len(bars))
	for d := range bars {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates[0]
}

func formatMA(series []float64, i int) string {
	if i >= len(series) || !indicators.HasValue(series[i]) {
		return "-"
	}
	return utils.FormatMoney(series[i])
}

func newPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Show the current stock price",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			price := app.Ledger.CurrentPrice()
			today := utils.Today()
			bar, ok := app.Ledger.Bars()[today]

			if output.IsJSON() {
				payload := map[string]interface{}{"price": price, "date": today}
				if ok {
					payload["bar"] = bar
				}
				return output.JSON(payload)
			}

			output.Printf("%s  %s\n", app.Config.User.ID, utils.FormatMoney(price))
			if ok {
				output.Printf("today: %s (%s)  vol %d\n",
					output.FormatChange(bar.ChangePrice), utils.FormatPercent(bar.ChangeRate), bar.Volume)
			} else {
				output.Dim("no activity today")
			}
			return nil
		},
	}
}
