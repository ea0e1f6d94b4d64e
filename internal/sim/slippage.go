package sim

import (
	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

// CostModel decides the price an order actually fills at, given the market
// price of the fill period.
type CostModel interface {
	FillPrice(order types.Order, marketPrice decimal.Decimal) decimal.Decimal
}

// FixedSlippage widens every fill by half a fixed spread: buys pay more,
// sells receive less.
type FixedSlippage struct {
	spread decimal.Decimal
}

// NewFixedSlippage is the default cost model with a zero spread, so fills
// happen at the market price.
func NewFixedSlippage() FixedSlippage {
	return FixedSlippage{spread: decimal.Zero}
}

func NewFixedSlippageSpread(spread decimal.Decimal) FixedSlippage {
	return FixedSlippage{spread: spread}
}

func (s FixedSlippage) FillPrice(order types.Order, marketPrice decimal.Decimal) decimal.Decimal {
	half := s.spread.Div(decimal.NewFromInt(2))
	if order.Amount.IsNegative() {
		return marketPrice.Sub(half)
	}
	return marketPrice.Add(half)
}
