package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/transform"
	"github.com/eduszlak/zipline/types"
)

// sliceSource replays a fixed event slice.
type sliceSource struct {
	events []types.Event
	i      int
}

func (s *sliceSource) Start() time.Time {
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[0].Time
}

func (s *sliceSource) End() time.Time {
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[len(s.events)-1].Time
}

func (s *sliceSource) Next() (types.Event, bool, error) {
	if s.i >= len(s.events) {
		return types.Event{}, false, nil
	}
	event := s.events[s.i]
	s.i++
	return event, true, nil
}

// stubAlgo records everything the simulation pushes at it. onBar, when set,
// runs inside HandleData with the installed order intake.
type stubAlgo struct {
	orderFn types.OrderFunc
	views   []types.PortfolioView
	bars    []types.BarData
	onBar   func(bar types.BarData, order types.OrderFunc) error
}

func (a *stubAlgo) SetOrder(fn types.OrderFunc) { a.orderFn = fn }

func (a *stubAlgo) SetPortfolio(view types.PortfolioView) { a.views = append(a.views, view) }
func (a *stubAlgo) HandleData(bar types.BarData) error {
	a.bars = append(a.bars, bar)
	if a.onBar != nil {
		return a.onBar(bar, a.orderFn)
	}
	return nil
}

func day(d int) time.Time {
	return time.Date(2006, 1, d, 0, 0, 0, 0, time.UTC)
}

func eventOn(d int, prices map[types.SID]string) types.Event {
	event := types.Event{Time: day(d), Prices: make(map[types.SID]decimal.Decimal, len(prices))}
	for sid, p := range prices {
		event.Prices[sid] = dec(p)
	}
	return event
}

func envOver(days ...int) Environment {
	return Environment{Start: day(days[0]), End: day(days[len(days)-1])}
}

// drain pulls the simulation dry, splitting dailies from the summary.
func drain(t *testing.T, s *Simulation) ([]types.DailySnapshot, types.SummarySnapshot) {
	t.Helper()
	var dailies []types.DailySnapshot
	var summary types.SummarySnapshot
	sawSummary := false
	for {
		snap, ok, err := s.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			break
		}
		switch v := snap.(type) {
		case types.DailySnapshot:
			if sawSummary {
				t.Fatal("daily snapshot after summary")
			}
			dailies = append(dailies, v)
		case types.SummarySnapshot:
			if sawSummary {
				t.Fatal("second summary snapshot")
			}
			summary = v
			sawSummary = true
		default:
			t.Fatalf("unexpected snapshot type %T", snap)
		}
	}
	if !sawSummary {
		t.Fatal("simulation ended without a summary snapshot")
	}
	return dailies, summary
}

func TestSimulation_SnapshotSequence(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10", 2: "20"}),
		eventOn(2, map[types.SID]string{1: "11", 2: "21"}),
		eventOn(3, map[types.SID]string{1: "12", 2: "22"}),
	}}
	algo := &stubAlgo{}

	s, err := New([]Source{src}, nil, algo, envOver(1, 3), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dailies, summary := drain(t, s)

	if len(dailies) != 3 {
		t.Fatalf("daily snapshots = %d, want 3", len(dailies))
	}
	for i, snap := range dailies {
		if !snap.PeriodClose.Equal(day(i + 1)) {
			t.Errorf("daily %d period close = %s, want %s", i, snap.PeriodClose, day(i+1))
		}
		assertField(t, snap.Fields, "portfolio_value", "1000")
		assertField(t, snap.Fields, "returns", "0")
	}
	assertField(t, summary.Fields, "num_periods", "3")
	assertField(t, summary.Fields, "total_return", "0")

	if len(algo.bars) != 3 || len(algo.views) != 3 {
		t.Errorf("bars = %d views = %d, want 3 and 3", len(algo.bars), len(algo.views))
	}

	// Exhausted for good.
	for i := 0; i < 2; i++ {
		snap, ok, err := s.Next()
		if snap != nil || ok || err != nil {
			t.Fatalf("Next() after exhaustion = (%v, %v, %v), want (nil, false, nil)", snap, ok, err)
		}
	}
}

func TestSimulation_OrdersFillNextPeriod(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
		eventOn(2, map[types.SID]string{1: "20"}),
		eventOn(3, map[types.SID]string{1: "30"}),
	}}
	algo := &stubAlgo{
		onBar: func(bar types.BarData, order types.OrderFunc) error {
			if bar.Time.Equal(day(1)) {
				return order(1, decimal.NewFromInt(1))
			}
			return nil
		},
	}

	s, err := New([]Source{src}, nil, algo, envOver(1, 3), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dailies, summary := drain(t, s)
	if len(dailies) != 3 {
		t.Fatalf("daily snapshots = %d, want 3", len(dailies))
	}

	// Placed on day 1, filled at day 2's price.
	assertField(t, dailies[0].Fields, "transactions", "0")
	assertField(t, dailies[0].Fields, "cash", "1000")
	assertField(t, dailies[1].Fields, "transactions", "1")
	assertField(t, dailies[1].Fields, "cash", "980")
	assertField(t, dailies[1].Fields, "portfolio_value", "1000")
	// Mark-to-market at day 3.
	assertField(t, dailies[2].Fields, "portfolio_value", "1010")
	assertField(t, summary.Fields, "total_transactions", "1")
	assertField(t, summary.Fields, "total_return", "0.01")

	// The view during day 2 carries the new position.
	pos, ok := algo.views[1].Positions[1]
	if !ok {
		t.Fatal("day 2 view missing position 1")
	}
	if !pos.Amount.Equal(dec("1")) || !pos.LastPrice.Equal(dec("20")) {
		t.Errorf("day 2 position = %+v, want amount 1 at 20", pos)
	}
}

func TestSimulation_SlippageWidensFills(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
		eventOn(2, map[types.SID]string{1: "20"}),
		eventOn(3, map[types.SID]string{1: "30"}),
	}}
	algo := &stubAlgo{
		onBar: func(bar types.BarData, order types.OrderFunc) error {
			switch {
			case bar.Time.Equal(day(1)):
				return order(1, decimal.NewFromInt(1)) // fills day 2 at 21
			case bar.Time.Equal(day(2)):
				return order(1, decimal.NewFromInt(-1)) // fills day 3 at 29
			}
			return nil
		},
	}

	s, err := New([]Source{src}, nil, algo, envOver(1, 3), NewFixedSlippageSpread(dec("2")), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dailies, _ := drain(t, s)

	assertField(t, dailies[1].Fields, "cash", "979")
	assertField(t, dailies[2].Fields, "cash", "1008")
	assertField(t, dailies[2].Fields, "portfolio_value", "1008")
}

func TestSimulation_UnpricedOrderStaysPending(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10", 2: "5"}),
		eventOn(2, map[types.SID]string{1: "11"}),
		eventOn(3, map[types.SID]string{1: "12", 2: "8"}),
	}}
	algo := &stubAlgo{
		onBar: func(bar types.BarData, order types.OrderFunc) error {
			if bar.Time.Equal(day(1)) {
				return order(2, decimal.NewFromInt(1))
			}
			return nil
		},
	}

	s, err := New([]Source{src}, nil, algo, envOver(1, 3), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dailies, _ := drain(t, s)

	// No sid 2 price on day 2; the order waits for day 3.
	assertField(t, dailies[1].Fields, "transactions", "0")
	assertField(t, dailies[2].Fields, "transactions", "1")
	assertField(t, dailies[2].Fields, "cash", "992")
}

func TestSimulation_MergesSources(t *testing.T) {
	srcA := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
		eventOn(2, map[types.SID]string{1: "11"}),
	}}
	srcB := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{2: "20"}),
		eventOn(3, map[types.SID]string{2: "22"}),
	}}
	algo := &stubAlgo{}

	s, err := New([]Source{srcA, srcB}, nil, algo, envOver(1, 3), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dailies, _ := drain(t, s)
	if len(dailies) != 3 {
		t.Fatalf("daily snapshots = %d, want 3", len(dailies))
	}

	if len(algo.bars) != 3 {
		t.Fatalf("bars = %d, want 3", len(algo.bars))
	}
	// Same-timestamp events union their prices.
	if price, ok := algo.bars[0].Price(1); !ok || !price.Equal(dec("10")) {
		t.Errorf("day 1 sid 1 price = %s ok = %v, want 10", price, ok)
	}
	if price, ok := algo.bars[0].Price(2); !ok || !price.Equal(dec("20")) {
		t.Errorf("day 1 sid 2 price = %s ok = %v, want 20", price, ok)
	}
	if _, ok := algo.bars[1].Price(2); ok {
		t.Error("day 2 should not have a sid 2 price")
	}
	if !algo.bars[2].Time.Equal(day(3)) {
		t.Errorf("bar 3 time = %s, want %s", algo.bars[2].Time, day(3))
	}
}

func TestSimulation_TransformsReachBarData(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
		eventOn(2, map[types.SID]string{1: "20"}),
	}}
	algo := &stubAlgo{}

	mavg, err := transform.NewStateful(transform.MovingAverage, transform.Config{Window: 2})
	if err != nil {
		t.Fatalf("NewStateful() error = %v", err)
	}
	mavg.Tag = "mavg"

	s, err := New([]Source{src}, []*transform.Stateful{mavg}, algo, envOver(1, 2), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	drain(t, s)

	if _, ok := algo.bars[0].Transform("mavg", 1); ok {
		t.Error("transform should not be warm on day 1")
	}
	got, ok := algo.bars[1].Transform("mavg", 1)
	if !ok {
		t.Fatal("transform missing on day 2")
	}
	if !got.Equal(dec("15")) {
		t.Errorf("mavg = %s, want 15", got)
	}
}

func TestSimulation_HandleDataErrorStops(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
		eventOn(2, map[types.SID]string{1: "20"}),
	}}
	boom := errors.New("strategy blew up")
	algo := &stubAlgo{
		onBar: func(bar types.BarData, order types.OrderFunc) error {
			if bar.Time.Equal(day(2)) {
				return boom
			}
			return nil
		},
	}

	s, err := New([]Source{src}, nil, algo, envOver(1, 2), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, ok, err := s.Next(); !ok || err != nil {
		t.Fatalf("first Next() = (%v, %v), want daily snapshot", ok, err)
	}
	_, ok, err := s.Next()
	if ok || !errors.Is(err, boom) {
		t.Fatalf("second Next() = (%v, %v), want wrapped strategy error", ok, err)
	}
	// Dead after the error: no summary.
	if snap, ok, err := s.Next(); snap != nil || ok || err != nil {
		t.Fatalf("Next() after error = (%v, %v, %v), want (nil, false, nil)", snap, ok, err)
	}
}

func TestSimulation_RejectsZeroAmountOrders(t *testing.T) {
	src := &sliceSource{events: []types.Event{
		eventOn(1, map[types.SID]string{1: "10"}),
	}}
	var orderErr error
	algo := &stubAlgo{
		onBar: func(bar types.BarData, order types.OrderFunc) error {
			orderErr = order(1, decimal.Zero)
			return nil
		},
	}

	s, err := New([]Source{src}, nil, algo, envOver(1, 1), NewFixedSlippage(), dec("1000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	drain(t, s)

	if !errors.Is(orderErr, ErrZeroAmountOrder) {
		t.Errorf("order error = %v, want ErrZeroAmountOrder", orderErr)
	}
}

func TestNew_Validation(t *testing.T) {
	algo := &stubAlgo{}
	src := &sliceSource{events: []types.Event{eventOn(1, map[types.SID]string{1: "10"})}}

	if _, err := New(nil, nil, algo, envOver(1, 1), NewFixedSlippage(), dec("1000")); !errors.Is(err, ErrNoSources) {
		t.Errorf("New() with no sources error = %v, want ErrNoSources", err)
	}
	if _, err := New([]Source{src}, nil, nil, envOver(1, 1), NewFixedSlippage(), dec("1000")); err == nil {
		t.Error("New() with nil algorithm expected an error")
	}
}

func TestFixedSlippage_FillPrice(t *testing.T) {
	tests := []struct {
		name   string
		model  FixedSlippage
		amount string
		market string
		want   string
	}{
		{"zero spread buy", NewFixedSlippage(), "1", "100", "100"},
		{"zero spread sell", NewFixedSlippage(), "-1", "100", "100"},
		{"spread buy pays half more", NewFixedSlippageSpread(dec("2")), "5", "100", "101"},
		{"spread sell receives half less", NewFixedSlippageSpread(dec("2")), "-5", "100", "99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := types.NewOrder(1, dec(tt.amount), day(1))
			got := tt.model.FillPrice(order, dec(tt.market))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("FillPrice() = %s, want %s", got, tt.want)
			}
		})
	}
}
