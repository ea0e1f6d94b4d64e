package algo

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eduszlak/zipline/transform"
	"github.com/eduszlak/zipline/types"
)

var ErrNoOrderFunc = errors.New("no order intake installed, orders only work inside a run")
var ErrSlippageOverrideUnsupported = errors.New("per-algorithm slippage overrides are not supported yet")

// DefaultInitialCash is the starting capital of a run unless SetInitialCash
// says otherwise.
var DefaultInitialCash = decimal.NewFromInt(100000)

// Params carries strategy construction arguments through to Initialize.
// Strategies read the keys they understand.
type Params map[string]any

// Strategy is the abstraction users specialize: Initialize runs once at
// construction to configure the algorithm (register transforms, read
// params), HandleData runs once per simulated period.
type Strategy interface {
	Initialize(a *TradingAlgorithm, params Params) error
	HandleData(a *TradingAlgorithm, data types.BarData) error
}

// BaseStrategy provides the no-op Initialize. Embed it and implement
// HandleData.
type BaseStrategy struct{}

func (BaseStrategy) Initialize(a *TradingAlgorithm, params Params) error { return nil }

// TradingAlgorithm orchestrates backtest runs for one strategy: it keeps the
// tracked instruments and the transform registry, assembles a simulation per
// run, drives it, and reduces the snapshots to a daily report.
type TradingAlgorithm struct {
	strategy   Strategy
	sids       []types.SID
	registered map[string]transform.Descriptor

	orderFn     types.OrderFunc
	portfolio   *types.PortfolioView
	logger      *zap.Logger
	initialCash decimal.Decimal
	progress    bool

	frameCount int
	done       bool
}

// New builds the algorithm and runs the strategy's Initialize hook with
// params. The tracked sid set is copied and fixed for the algorithm's
// lifetime.
func New(strategy Strategy, sids []types.SID, params Params) (*TradingAlgorithm, error) {
	if strategy == nil {
		return nil, errors.New("nil strategy")
	}
	a := &TradingAlgorithm{
		strategy:    strategy,
		sids:        append([]types.SID(nil), sids...),
		registered:  make(map[string]transform.Descriptor),
		logger:      zap.NewNop(),
		initialCash: DefaultInitialCash,
	}
	if err := strategy.Initialize(a, params); err != nil {
		return nil, fmt.Errorf("initialize strategy: %w", err)
	}
	return a, nil
}

// AddTransform registers a transform constructor under tag. Registering an
// already-used tag replaces the earlier entry. Nothing is instantiated or
// validated here; that happens when a run is assembled.
func (a *TradingAlgorithm) AddTransform(ctor transform.Constructor, tag string, cfg transform.Config) {
	a.registered[tag] = transform.Descriptor{New: ctor, Config: cfg}
}

// Order requests a position change of amount shares (negative sells). It
// only works while a simulation is running, which is when an order intake is
// installed.
func (a *TradingAlgorithm) Order(sid types.SID, amount decimal.Decimal) error {
	if a.orderFn == nil {
		return ErrNoOrderFunc
	}
	return a.orderFn(sid, amount)
}

// HandleData is the per-period entry point a simulation calls. It counts the
// period and hands the bar to the strategy.
func (a *TradingAlgorithm) HandleData(data types.BarData) error {
	a.frameCount++
	return a.strategy.HandleData(a, data)
}

// SetOrder installs the order intake. Simulations call this during assembly.
func (a *TradingAlgorithm) SetOrder(fn types.OrderFunc) {
	a.orderFn = fn
}

// SetPortfolio replaces the algorithm's view of portfolio state. Simulations
// push an updated view every period.
func (a *TradingAlgorithm) SetPortfolio(view types.PortfolioView) {
	a.portfolio = &view
}

func (a *TradingAlgorithm) SetLogger(logger *zap.Logger) {
	a.logger = logger
}

// SetProgress toggles the progress bar printed while a run is driven.
func (a *TradingAlgorithm) SetProgress(enabled bool) {
	a.progress = enabled
}

// SetInitialCash sets the starting capital handed to the next run's
// portfolio.
func (a *TradingAlgorithm) SetInitialCash(cash decimal.Decimal) {
	a.initialCash = cash
}

// SetSlippageOverride is accepted for interface compatibility with cost
// model configuration, but overriding the fixed slippage model is not
// supported: it reports ErrSlippageOverrideUnsupported instead of silently
// ignoring the model.
func (a *TradingAlgorithm) SetSlippageOverride(model any) error {
	return ErrSlippageOverrideUnsupported
}

// GetSIDFilter is the tracked instrument set, for data-source layers that
// restrict what they load or stream.
func (a *TradingAlgorithm) GetSIDFilter() []types.SID {
	sids := make([]types.SID, len(a.sids))
	copy(sids, a.sids)
	return sids
}

// Portfolio is the latest pushed portfolio view, nil before the first
// simulated period.
func (a *TradingAlgorithm) Portfolio() *types.PortfolioView {
	return a.portfolio
}

func (a *TradingAlgorithm) Logger() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// Periods is the count of periods handled across all runs of this instance.
func (a *TradingAlgorithm) Periods() int {
	return a.frameCount
}

// Done reports whether the most recent run completed. It resets when a new
// run starts.
func (a *TradingAlgorithm) Done() bool {
	return a.done
}
