package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a request to change a position by Amount shares: positive buys,
// negative sells. Fill price is decided by the simulation's cost model.
type Order struct {
	SID      SID
	Amount   decimal.Decimal
	PlacedAt time.Time
}

func NewOrder(sid SID, amount decimal.Decimal, placedAt time.Time) Order {
	return Order{
		SID:      sid,
		Amount:   amount,
		PlacedAt: placedAt,
	}
}

// OrderFunc is the order intake a simulation installs on the algorithm.
type OrderFunc func(sid SID, amount decimal.Decimal) error
