package types

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var ErrFrameShape = errors.New("price series length does not match frame index")

// PriceFrame is tabular market data: one timestamp index shared by a
// per-instrument column of prices. It is the in-memory input format for
// frame-driven runs; ordering of the index is checked at run time, not here.
type PriceFrame struct {
	times  []time.Time
	prices map[SID][]decimal.Decimal
}

// NewPriceFrame validates the frame shape: every price series must be exactly
// as long as the index. An empty index is allowed and yields an empty frame.
func NewPriceFrame(times []time.Time, prices map[SID][]decimal.Decimal) (*PriceFrame, error) {
	for sid, series := range prices {
		if len(series) != len(times) {
			return nil, fmt.Errorf("sid %d: %d prices for %d timestamps: %w", sid, len(series), len(times), ErrFrameShape)
		}
	}
	return &PriceFrame{times: times, prices: prices}, nil
}

func (f *PriceFrame) Len() int {
	return len(f.times)
}

func (f *PriceFrame) Times() []time.Time {
	return f.times
}

// SIDs returns the frame's instruments in ascending order.
func (f *PriceFrame) SIDs() []SID {
	sids := make([]SID, 0, len(f.prices))
	for sid := range f.prices {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	return sids
}

func (f *PriceFrame) Price(i int, sid SID) (decimal.Decimal, bool) {
	series, ok := f.prices[sid]
	if !ok || i < 0 || i >= len(series) {
		return decimal.Zero, false
	}
	return series[i], true
}

// Row copies the i-th cross-section of the frame into a fresh price map.
func (f *PriceFrame) Row(i int) map[SID]decimal.Decimal {
	row := make(map[SID]decimal.Decimal, len(f.prices))
	for sid, series := range f.prices {
		if i >= 0 && i < len(series) {
			row[sid] = series[i]
		}
	}
	return row
}
