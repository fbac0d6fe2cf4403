// Package aggregate folds daily price bars into day, week or month buckets
// for charting.
package aggregate

import (
	"sort"

	"habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

// Aggregate converts a set of daily bars into sorted buckets for the given
// period. Day is a lossless sorted pass-through. Weeks are anchored on the
// Sunday that begins each bar's week; months are keyed "YYYY-MM".
//
// Input order is not assumed: members are sorted by date inside each bucket
// before taking the first bar's open and the last bar's close. High and low
// are the extrema across the bucket and volume is the sum.
func Aggregate(bars []models.StockBar, period models.Period) ([]models.Bucket, error) {
	keyFn, err := bucketKey(period)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]models.StockBar)
	for _, bar := range bars {
		key := keyFn(bar.Date)
		groups[key] = append(groups[key], bar)
	}

	buckets := make([]models.Bucket, 0, len(groups))
	for key, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			return members[i].Date < members[j].Date
		})
		b := models.Bucket{
			Key:    key,
			Open:   members[0].Open,
			Close:  members[len(members)-1].Close,
			High:   members[0].High,
			Low:    members[0].Low,
		}
		for _, m := range members {
			if m.High > b.High {
				b.High = m.High
			}
			if m.Low < b.Low {
				b.Low = m.Low
			}
			b.Volume += m.Volume
		}
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Key < buckets[j].Key
	})
	return buckets, nil
}

// AggregateMap is a convenience wrapper over a date-keyed bar map.
func AggregateMap(bars map[string]models.StockBar, period models.Period) ([]models.Bucket, error) {
	list := make([]models.StockBar, 0, len(bars))
	for _, bar := range bars {
		list = append(list, bar)
	}
	return Aggregate(list, period)
}

func bucketKey(period models.Period) (func(date string) string, error) {
	switch period {
	case models.PeriodDay:
		return func(date string) string { return date }, nil
	case models.PeriodWeek:
		return utils.WeekStart, nil
	case models.PeriodMonth:
		return utils.MonthKey, nil
	default:
		return nil, errors.ErrInvalidPeriod
	}
}

// FillGaps returns a dense, date-sorted series from from to to inclusive.
// Dates with no bar materialize as a flat zero-volume bar pinned to the
// previous close so the chart has no gaps. A leading gap pins to the close
// of the latest bar before the range; initialPrice applies only when no
// earlier history exists.
func FillGaps(bars map[string]models.StockBar, from, to string, initialPrice float64) []models.StockBar {
	if from > to {
		return nil
	}

	prev := initialPrice
	var prevDate string
	for date, bar := range bars {
		if date < from && date > prevDate {
			prevDate = date
			prev = bar.Close
		}
	}

	var out []models.StockBar
	for date := from; date <= to; date = utils.NextDay(date) {
		bar, ok := bars[date]
		if !ok {
			bar = models.FlatBar(date, prev)
		}
		out = append(out, bar)
		prev = bar.Close

		// Guard against a date that fails to advance.
		if next := utils.NextDay(date); next == date {
			break
		}
	}
	return out
}
