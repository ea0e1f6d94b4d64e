package sim

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/transform"
	"github.com/eduszlak/zipline/types"
)

var ErrNoSources = errors.New("simulation needs at least one data source")
var ErrZeroAmountOrder = errors.New("order amount is zero")

// Simulation replays the sources' events in time order against one
// algorithm. Each Next call processes one period and yields its
// DailySnapshot; after the sources are exhausted one SummarySnapshot is
// yielded, then the stream reports done forever. A Simulation cannot be
// rewound.
type Simulation struct {
	sources    []Source
	transforms []*transform.Stateful
	algo       Algorithm
	env        Environment
	costModel  CostModel

	portfolio *portfolio
	tracker   *perfTracker

	heads   []types.Event
	headOK  []bool
	srcDone []bool

	pending []types.Order
	curTime time.Time
	done    bool
}

// New assembles a simulation and installs its order intake on the algorithm.
// Orders placed during a period fill at the next period's prices through the
// cost model.
func New(sources []Source, transforms []*transform.Stateful, algo Algorithm, env Environment, costModel CostModel, initialCash decimal.Decimal) (*Simulation, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if algo == nil {
		return nil, errors.New("nil algorithm")
	}
	if costModel == nil {
		costModel = NewFixedSlippage()
	}

	s := &Simulation{
		sources:    sources,
		transforms: transforms,
		algo:       algo,
		env:        env,
		costModel:  costModel,
		portfolio:  newPortfolio(initialCash),
		tracker:    newPerfTracker(initialCash),
		heads:      make([]types.Event, len(sources)),
		headOK:     make([]bool, len(sources)),
		srcDone:    make([]bool, len(sources)),
		curTime:    env.Start,
	}
	algo.SetOrder(s.placeOrder)
	return s, nil
}

func (s *Simulation) placeOrder(sid types.SID, amount decimal.Decimal) error {
	if amount.IsZero() {
		return fmt.Errorf("sid %d: %w", sid, ErrZeroAmountOrder)
	}
	s.pending = append(s.pending, types.NewOrder(sid, amount, s.curTime))
	return nil
}

// Next advances the simulation by one period.
func (s *Simulation) Next() (types.PerfSnapshot, bool, error) {
	if s.done {
		return nil, false, nil
	}

	event, ok, err := s.nextPeriod()
	if err != nil {
		s.done = true
		return nil, false, err
	}
	if !ok {
		// Pending orders that never saw another period are dropped.
		s.done = true
		return s.tracker.summarize(), true, nil
	}

	s.curTime = event.Time
	fills := s.fillPending(event)
	s.portfolio.markPrices(event.Prices)

	transformValues, err := s.applyTransforms(event)
	if err != nil {
		s.done = true
		return nil, false, err
	}

	s.algo.SetPortfolio(s.portfolio.view(event.Time))

	bar := types.BarData{
		Time:       event.Time,
		Prices:     event.Prices,
		Transforms: transformValues,
	}
	if err := s.algo.HandleData(bar); err != nil {
		s.done = true
		return nil, false, fmt.Errorf("handle data at %s: %w", event.Time.Format(time.RFC3339), err)
	}

	return s.tracker.observePeriod(event.Time, s.portfolio, fills), true, nil
}

// nextPeriod merges the next event across sources: the earliest head
// timestamp wins, and every source at that timestamp contributes its prices.
func (s *Simulation) nextPeriod() (types.Event, bool, error) {
	for i, src := range s.sources {
		if s.srcDone[i] || s.headOK[i] {
			continue
		}
		event, ok, err := src.Next()
		if err != nil {
			return types.Event{}, false, fmt.Errorf("source %d: %w", i, err)
		}
		if !ok {
			s.srcDone[i] = true
			continue
		}
		s.heads[i] = event
		s.headOK[i] = true
	}

	minIdx := -1
	for i := range s.heads {
		if !s.headOK[i] {
			continue
		}
		if minIdx == -1 || s.heads[i].Time.Before(s.heads[minIdx].Time) {
			minIdx = i
		}
	}
	if minIdx == -1 {
		return types.Event{}, false, nil
	}

	merged := types.Event{
		Time:   s.heads[minIdx].Time,
		Prices: make(map[types.SID]decimal.Decimal),
	}
	for i := range s.heads {
		if !s.headOK[i] || !s.heads[i].Time.Equal(merged.Time) {
			continue
		}
		for sid, price := range s.heads[i].Prices {
			merged.Prices[sid] = price
		}
		s.headOK[i] = false
	}
	return merged, true, nil
}

// fillPending fills every pending order that has a price this period and
// keeps the rest pending. Returns the number of fills.
func (s *Simulation) fillPending(event types.Event) int {
	if len(s.pending) == 0 {
		return 0
	}

	filled := 0
	remaining := s.pending[:0]
	for _, order := range s.pending {
		marketPrice, ok := event.Prices[order.SID]
		if !ok {
			remaining = append(remaining, order)
			continue
		}
		s.portfolio.applyFill(fill{
			sid:    order.SID,
			amount: order.Amount,
			price:  s.costModel.FillPrice(order, marketPrice),
			time:   event.Time,
		})
		filled++
	}
	s.pending = remaining
	return filled
}

func (s *Simulation) applyTransforms(event types.Event) (map[string]map[types.SID]decimal.Decimal, error) {
	if len(s.transforms) == 0 {
		return nil, nil
	}

	sids := make([]types.SID, 0, len(event.Prices))
	for sid := range event.Prices {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })

	out := make(map[string]map[types.SID]decimal.Decimal, len(s.transforms))
	for _, st := range s.transforms {
		values := make(map[types.SID]decimal.Decimal, len(sids))
		for _, sid := range sids {
			value, ok, err := st.Apply(sid, event.Prices[sid])
			if err != nil {
				return nil, err
			}
			if ok {
				values[sid] = value
			}
		}
		out[st.Tag] = values
	}
	return out, nil
}
