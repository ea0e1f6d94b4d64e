package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is one period of market data emitted by a data source.
type Event struct {
	Time   time.Time
	Prices map[SID]decimal.Decimal
}

// BarData is the per-period view handed to strategy code: current prices plus
// the values of every warm registered transform, keyed by tag then instrument.
type BarData struct {
	Time       time.Time
	Prices     map[SID]decimal.Decimal
	Transforms map[string]map[SID]decimal.Decimal
}

func (b BarData) Price(sid SID) (decimal.Decimal, bool) {
	price, ok := b.Prices[sid]
	return price, ok
}

// Transform looks up one transform value. The second return is false until
// the transform has seen enough data for this instrument.
func (b BarData) Transform(tag string, sid SID) (decimal.Decimal, bool) {
	values, ok := b.Transforms[tag]
	if !ok {
		return decimal.Zero, false
	}
	value, ok := values[sid]
	return value, ok
}
