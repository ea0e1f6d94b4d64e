package transform

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MovingAverage is a streaming simple moving average over Window prices.
func MovingAverage(cfg Config) (Transform, error) {
	if cfg.Window < 1 {
		return nil, fmt.Errorf("moving average window %d: %w", cfg.Window, ErrBadWindow)
	}
	return &movingAverage{window: cfg.Window}, nil
}

type movingAverage struct {
	window int
	prices []decimal.Decimal
	sum    decimal.Decimal
}

func (m *movingAverage) Update(price decimal.Decimal) {
	m.prices = append(m.prices, price)
	m.sum = m.sum.Add(price)
	if len(m.prices) > m.window {
		m.sum = m.sum.Sub(m.prices[0])
		m.prices = m.prices[1:]
	}
}

func (m *movingAverage) Value() (decimal.Decimal, bool) {
	if len(m.prices) < m.window {
		return decimal.Zero, false
	}
	return m.sum.Div(decimal.NewFromInt(int64(m.window))), true
}

// ExponentialMovingAverage is a streaming EMA seeded with the simple average
// of the first Window prices. Decay defaults to 2/(window+1).
func ExponentialMovingAverage(cfg Config) (Transform, error) {
	if cfg.Window < 1 {
		return nil, fmt.Errorf("ema window %d: %w", cfg.Window, ErrBadWindow)
	}
	decay := cfg.Decay
	if decay == 0 {
		decay = 2.0 / float64(cfg.Window+1)
	}
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("ema decay %v: %w", cfg.Decay, ErrBadDecay)
	}
	return &exponentialMovingAverage{
		window: cfg.Window,
		decay:  decimal.NewFromFloat(decay),
	}, nil
}

type exponentialMovingAverage struct {
	window    int
	decay     decimal.Decimal
	ema       decimal.Decimal
	warmupSum decimal.Decimal
	count     int
}

func (e *exponentialMovingAverage) Update(price decimal.Decimal) {
	if e.count < e.window {
		e.warmupSum = e.warmupSum.Add(price)
		e.count++
		if e.count == e.window {
			e.ema = e.warmupSum.Div(decimal.NewFromInt(int64(e.window)))
		}
		return
	}
	e.ema = e.ema.Add(price.Sub(e.ema).Mul(e.decay))
}

func (e *exponentialMovingAverage) Value() (decimal.Decimal, bool) {
	if e.count < e.window {
		return decimal.Zero, false
	}
	return e.ema, true
}

// Returns is the Window-lagged simple return: price(t)/price(t-window) - 1.
func Returns(cfg Config) (Transform, error) {
	if cfg.Window < 1 {
		return nil, fmt.Errorf("returns window %d: %w", cfg.Window, ErrBadWindow)
	}
	return &lagReturns{window: cfg.Window}, nil
}

type lagReturns struct {
	window int
	prices []decimal.Decimal
}

func (r *lagReturns) Update(price decimal.Decimal) {
	r.prices = append(r.prices, price)
	if len(r.prices) > r.window+1 {
		r.prices = r.prices[1:]
	}
}

func (r *lagReturns) Value() (decimal.Decimal, bool) {
	if len(r.prices) < r.window+1 {
		return decimal.Zero, false
	}
	base := r.prices[0]
	if base.IsZero() {
		return decimal.Zero, false
	}
	last := r.prices[len(r.prices)-1]
	return last.Div(base).Sub(decimal.NewFromInt(1)), true
}

// MovingStdDev is the sample standard deviation over Window prices. Window
// must be at least 2.
func MovingStdDev(cfg Config) (Transform, error) {
	if cfg.Window < 2 {
		return nil, fmt.Errorf("stddev window %d: %w", cfg.Window, ErrBadWindow)
	}
	return &movingStdDev{window: cfg.Window}, nil
}

type movingStdDev struct {
	window int
	prices []decimal.Decimal
}

func (s *movingStdDev) Update(price decimal.Decimal) {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.window {
		s.prices = s.prices[1:]
	}
}

func (s *movingStdDev) Value() (decimal.Decimal, bool) {
	if len(s.prices) < s.window {
		return decimal.Zero, false
	}

	sum := decimal.Zero
	for _, p := range s.prices {
		sum = sum.Add(p)
	}
	mean := sum.Div(decimal.NewFromInt(int64(s.window)))

	varianceSum := decimal.Zero
	for _, p := range s.prices {
		diff := p.Sub(mean)
		varianceSum = varianceSum.Add(diff.Mul(diff))
	}
	variance := varianceSum.Div(decimal.NewFromInt(int64(s.window - 1)))

	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())), true
}
