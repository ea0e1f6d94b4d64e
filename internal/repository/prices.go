package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/eduszlak/zipline/types"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:     "1 minute",
	types.FiveMinutes:   "5 minutes",
	types.ThirtyMinutes: "30 minute",
	types.Hour:          "1 hour",
	types.FourHours:     "4 hours",
	types.Day:           "1 day",
	types.Week:          "1 week",
}

// LoadFrame fetches the close-price series of every instrument concurrently
// and assembles them into one frame for a run. The frame index is the union
// of bucket timestamps, clipped so it starts once every instrument has traded.
func (db *Database) LoadFrame(ctx context.Context, sids []types.SID, interval types.Interval, start, end time.Time) (*types.PriceFrame, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, ErrIntervalNotSupported
	}

	series := make([][]closeRow, len(sids))
	g, ctx := errgroup.WithContext(ctx)
	for i, sid := range sids {
		i, sid := i, sid
		g.Go(func() error {
			rows, err := db.prices.GetCloseSeries(ctx, closeSeriesParams{
				TimeBucket: bucket,
				AssetID:    int32(sid),
				StartTime:  start,
				EndTime:    end,
			})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("sid %d: %w", sid, ErrNoPrices)
				}
				return fmt.Errorf("sid %d: %w", sid, err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("sid %d: %w", sid, ErrNoPrices)
			}
			series[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assembleFrame(sids, series)
}

// assembleFrame builds a dense frame from per-instrument close series. An
// instrument without its own bucket at an index timestamp carries the previous
// close forward, so the index starts at the latest first observation.
func assembleFrame(sids []types.SID, series [][]closeRow) (*types.PriceFrame, error) {
	var frameStart time.Time
	for i, s := range series {
		if len(s) == 0 {
			return nil, fmt.Errorf("sid %d: %w", sids[i], ErrNoPrices)
		}
		if s[0].Bucket.After(frameStart) {
			frameStart = s[0].Bucket
		}
	}

	union := make(map[int64]time.Time)
	for _, s := range series {
		for _, row := range s {
			if !row.Bucket.Before(frameStart) {
				union[row.Bucket.UnixNano()] = row.Bucket
			}
		}
	}
	times := make([]time.Time, 0, len(union))
	for _, t := range union {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	prices := make(map[types.SID][]decimal.Decimal, len(sids))
	for i, sid := range sids {
		col := make([]decimal.Decimal, 0, len(times))
		var last decimal.Decimal
		j := 0
		for _, t := range times {
			for j < len(series[i]) && !series[i][j].Bucket.After(t) {
				last = series[i][j].Close
				j++
			}
			col = append(col, last)
		}
		prices[sid] = col
	}
	return types.NewPriceFrame(times, prices)
}
