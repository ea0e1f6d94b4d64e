package sim

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

// perfTracker accumulates the equity curve and per-period returns while a
// simulation runs, emits one DailySnapshot per period, and reduces to the
// closing SummarySnapshot.
type perfTracker struct {
	startValue   decimal.Decimal
	lastValue    decimal.Decimal
	equity       []decimal.Decimal
	returns      []decimal.Decimal
	transactions int
}

func newPerfTracker(initialCash decimal.Decimal) *perfTracker {
	return &perfTracker{
		startValue: initialCash,
		lastValue:  initialCash,
	}
}

func (t *perfTracker) observePeriod(periodClose time.Time, p *portfolio, fills int) types.DailySnapshot {
	value := p.value()

	ret := decimal.Zero
	if t.lastValue.GreaterThan(decimal.Zero) {
		ret = value.Div(t.lastValue).Sub(decimal.NewFromInt(1))
	}
	pnl := value.Sub(t.lastValue)

	t.equity = append(t.equity, value)
	t.returns = append(t.returns, ret)
	t.transactions += fills
	t.lastValue = value

	var fields types.Fields
	fields.Set("returns", ret)
	fields.Set("pnl", pnl)
	fields.Set("portfolio_value", value)
	fields.Set("positions_value", value.Sub(p.cash))
	fields.Set("cash", p.cash)
	fields.Set("transactions", decimal.NewFromInt(int64(fills)))

	return types.DailySnapshot{PeriodClose: periodClose, Fields: fields}
}

func (t *perfTracker) summarize() types.SummarySnapshot {
	var totalReturn, maxDrawdown, sharpe decimal.Decimal

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		totalReturn = calcTotalReturn(t.startValue, t.lastValue, &wg)
	}()
	go func() {
		maxDrawdown = calcMaxDrawdown(t.equity, &wg)
	}()
	go func() {
		sharpe = calcSharpeRatio(t.returns, &wg)
	}()
	wg.Wait()

	var fields types.Fields
	fields.Set("total_return", totalReturn)
	fields.Set("max_drawdown", maxDrawdown)
	fields.Set("sharpe_ratio", sharpe)
	fields.Set("total_transactions", decimal.NewFromInt(int64(t.transactions)))
	fields.Set("num_periods", decimal.NewFromInt(int64(len(t.equity))))

	return types.SummarySnapshot{Fields: fields}
}

func calcTotalReturn(start, end decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	// Not well-defined from a non-positive starting value.
	if !start.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return end.Div(start).Sub(decimal.NewFromInt(1))
}

func calcMaxDrawdown(equity []decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	peak := decimal.Zero
	maxDD := decimal.Zero

	for i, value := range equity {
		if i == 0 || value.GreaterThan(peak) || peak.IsZero() {
			peak = value
		}
		if peak.GreaterThan(decimal.Zero) {
			dd := peak.Sub(value).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// calcSharpeRatio annualizes the mean/stddev of per-period returns by
// sqrt(252), treating periods as trading days and the risk-free rate as
// zero.
func calcSharpeRatio(returns []decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	if len(returns) < 2 {
		// Need at least 2 periods to compute stddev
		return decimal.Zero
	}

	values := make([]float64, 0, len(returns))
	for _, r := range returns {
		values = append(values, r.InexactFloat64())
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var varianceSum float64
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(values)-1))
	if std == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(mean / std * math.Sqrt(252.0))
}
