package smacross

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eduszlak/zipline/algo"
	"github.com/eduszlak/zipline/transform"
	"github.com/eduszlak/zipline/types"
)

// Tags the moving averages are registered under.
const (
	TagFast = "fast"
	TagSlow = "slow"
)

var ErrBadWindows = errors.New("slow window must be greater than fast window")

// Strategy trades one instrument on simple moving average crossovers: buy qty
// shares when the fast average crosses above the slow one while flat, sell
// them when it crosses back below while long.
type Strategy struct {
	sid  types.SID
	fast int
	slow int
	qty  decimal.Decimal

	known    bool
	wasAbove bool
}

// New builds a crossover strategy for sid with the given window lengths.
// Params keys "fast" and "slow" override the windows during Initialize.
func New(sid types.SID, fast, slow int, qty decimal.Decimal) *Strategy {
	return &Strategy{sid: sid, fast: fast, slow: slow, qty: qty}
}

func (s *Strategy) Initialize(a *algo.TradingAlgorithm, params algo.Params) error {
	if v, ok := params["fast"].(int); ok {
		s.fast = v
	}
	if v, ok := params["slow"].(int); ok {
		s.slow = v
	}
	if s.fast < 1 || s.slow <= s.fast {
		return fmt.Errorf("fast %d slow %d: %w", s.fast, s.slow, ErrBadWindows)
	}

	a.AddTransform(transform.MovingAverage, TagFast, transform.Config{Window: s.fast})
	a.AddTransform(transform.MovingAverage, TagSlow, transform.Config{Window: s.slow})
	return nil
}

func (s *Strategy) HandleData(a *algo.TradingAlgorithm, data types.BarData) error {
	fast, ok := data.Transform(TagFast, s.sid)
	if !ok {
		return nil
	}
	slow, ok := data.Transform(TagSlow, s.sid)
	if !ok {
		return nil
	}

	above := fast.GreaterThan(slow)
	crossedUp := s.known && above && !s.wasAbove
	crossedDown := s.known && !above && s.wasAbove
	s.known = true
	s.wasAbove = above

	held := s.position(a)
	switch {
	case crossedUp && held.IsZero():
		a.Logger().Debug("fast crossed above slow, buying",
			zap.Int("sid", int(s.sid)),
			zap.String("fast", fast.String()),
			zap.String("slow", slow.String()))
		return a.Order(s.sid, s.qty)
	case crossedDown && held.IsPositive():
		// A positive held amount means a portfolio view has been pushed.
		a.Logger().Debug("fast crossed below slow, selling",
			zap.Int("sid", int(s.sid)),
			zap.String("fast", fast.String()),
			zap.String("slow", slow.String()),
			zap.String("equity", a.Portfolio().Value().String()))
		return a.Order(s.sid, s.qty.Neg())
	}
	return nil
}

func (s *Strategy) position(a *algo.TradingAlgorithm) decimal.Decimal {
	view := a.Portfolio()
	if view == nil {
		return decimal.Zero
	}
	if pos, ok := view.Positions[s.sid]; ok {
		return pos.Amount
	}
	return decimal.Zero
}
