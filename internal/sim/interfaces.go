package sim

import (
	"time"

	"github.com/eduszlak/zipline/types"
)

// Algorithm is what the simulation needs back from the orchestration layer:
// a place to install its order intake, a sink for portfolio state, and the
// per-period callback.
type Algorithm interface {
	SetOrder(fn types.OrderFunc)
	SetPortfolio(view types.PortfolioView)
	HandleData(data types.BarData) error
}

// Source yields market data events in time order and reports the span it
// covers before iteration starts.
type Source interface {
	Start() time.Time
	End() time.Time
	Next() (types.Event, bool, error)
}
