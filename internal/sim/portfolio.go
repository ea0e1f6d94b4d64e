package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

// portfolio is the simulation's cash and position ledger. Amounts are
// signed, so shorts are just negative positions; there are no margin or
// solvency checks.
type portfolio struct {
	cash      decimal.Decimal
	positions map[types.SID]*position
}

type position struct {
	sid       types.SID
	amount    decimal.Decimal
	costBasis decimal.Decimal
	lastPrice decimal.Decimal
}

type fill struct {
	sid    types.SID
	amount decimal.Decimal
	price  decimal.Decimal
	time   time.Time
}

func newPortfolio(initialCash decimal.Decimal) *portfolio {
	return &portfolio{
		cash:      initialCash,
		positions: make(map[types.SID]*position),
	}
}

func (p *portfolio) applyFill(f fill) {
	pos := p.positions[f.sid]
	if pos == nil {
		pos = &position{sid: f.sid}
		p.positions[f.sid] = pos
	}

	p.cash = p.cash.Sub(f.price.Mul(f.amount))

	oldAmount := pos.amount
	newAmount := oldAmount.Add(f.amount)

	switch {
	case sameSide(oldAmount, newAmount):
		absOld := oldAmount.Abs()
		absNew := newAmount.Abs()
		absAdd := f.amount.Abs()
		if absNew.GreaterThan(absOld) && !absAdd.IsZero() {
			pos.costBasis = weightedAvg(pos.costBasis, absOld, f.price, absAdd)
		}
		pos.amount = newAmount

	case oldAmount.IsZero():
		pos.amount = newAmount
		pos.costBasis = f.price

	case newAmount.IsZero():
		pos.amount = decimal.Zero
		pos.costBasis = decimal.Zero

	default:
		// Crossed through zero: the leftover exposure opened at this fill.
		pos.amount = newAmount
		pos.costBasis = f.price
	}

	pos.lastPrice = f.price
}

// markPrices updates every held position's last price from the current
// period's data. Instruments without a price this period keep their last
// known mark.
func (p *portfolio) markPrices(prices map[types.SID]decimal.Decimal) {
	for sid, pos := range p.positions {
		if price, ok := prices[sid]; ok {
			pos.lastPrice = price
		}
	}
}

func (p *portfolio) value() decimal.Decimal {
	value := p.cash
	for _, pos := range p.positions {
		value = value.Add(pos.amount.Mul(pos.lastPrice))
	}
	return value
}

func (p *portfolio) view(t time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Cash:      p.cash,
		Positions: make(map[types.SID]types.PositionView, len(p.positions)),
		Time:      t,
	}
	for sid, pos := range p.positions {
		if pos.amount.IsZero() {
			continue
		}
		view.Positions[sid] = types.PositionView{
			SID:       sid,
			Amount:    pos.amount,
			CostBasis: pos.costBasis,
			LastPrice: pos.lastPrice,
		}
	}
	return view
}

func sameSide(a, b decimal.Decimal) bool {
	return (a.GreaterThan(decimal.Zero) && b.GreaterThan(decimal.Zero)) ||
		(a.LessThan(decimal.Zero) && b.LessThan(decimal.Zero))
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
