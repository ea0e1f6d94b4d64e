package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioView is the read-only portfolio state pushed to the algorithm
// every period. Amounts are signed: negative means short.
type PortfolioView struct {
	Cash      decimal.Decimal
	Positions map[SID]PositionView
	Time      time.Time
}

type PositionView struct {
	SID       SID
	Amount    decimal.Decimal
	CostBasis decimal.Decimal
	LastPrice decimal.Decimal
}

// Value is cash plus every position marked at its last seen price.
func (v PortfolioView) Value() decimal.Decimal {
	value := v.Cash
	for _, pos := range v.Positions {
		value = value.Add(pos.Amount.Mul(pos.LastPrice))
	}
	return value
}
