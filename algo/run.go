package algo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/eduszlak/zipline/internal/sim"
	"github.com/eduszlak/zipline/transform"
	"github.com/eduszlak/zipline/types"
)

// SnapshotStream is the lazy snapshot sequence of an assembled run: one
// daily snapshot per period, one summary snapshot after the last period,
// then done forever. A stream cannot be rewound.
type SnapshotStream interface {
	Next() (types.PerfSnapshot, bool, error)
}

// Run assembles one simulation over src, drives it to exhaustion, and
// reduces the emitted snapshots to daily statistics. Each call is an
// independent run with fresh transform and portfolio state; nothing is
// cached between calls and a failed run yields no partial result.
func (a *TradingAlgorithm) Run(src Source) (*DailyStats, error) {
	simulation, err := a.assemble(src)
	if err != nil {
		return nil, err
	}

	perfs, err := a.drive(simulation, sourceLen(src))
	if err != nil {
		return nil, err
	}

	stats, err := NewDailyStats(perfs)
	if err != nil {
		return nil, err
	}
	a.done = true
	return stats, nil
}

// RunFrame runs over tabular data. The frame's index must be strictly
// increasing, and only tracked instruments are streamed into the simulation.
func (a *TradingAlgorithm) RunFrame(frame *types.PriceFrame) (*DailyStats, error) {
	if frame == nil {
		return nil, errors.New("nil price frame")
	}
	feed, err := newFrameFeed(frame, a.GetSIDFilter())
	if err != nil {
		return nil, err
	}
	return a.Run(feed)
}

// Stream assembles a run like Run does but hands back the lazy snapshot
// sequence instead of driving it, for callers that want to consume very long
// simulations incrementally. The algorithm's done flag is only set by
// completed Run calls.
func (a *TradingAlgorithm) Stream(src Source) (SnapshotStream, error) {
	return a.assemble(src)
}

func (a *TradingAlgorithm) assemble(src Source) (*sim.Simulation, error) {
	if src == nil {
		return nil, errors.New("nil source")
	}
	a.done = false

	sources := []sim.Source{src}
	start, end := sim.GlobalTimeRange(sources)
	env, err := sim.ResolveEnvironment(start, end)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}

	transforms, err := a.materializeTransforms()
	if err != nil {
		return nil, err
	}

	a.Logger().Debug("assembled simulation",
		zap.Time("start", env.Start),
		zap.Time("end", env.End),
		zap.Int("transforms", len(transforms)),
		zap.Int("sids", len(a.sids)),
	)

	return sim.New(sources, transforms, a, env, sim.NewFixedSlippage(), a.initialCash)
}

// materializeTransforms instantiates every registered descriptor fresh for
// one run. Tags are materialized in sorted order so runs are deterministic.
func (a *TradingAlgorithm) materializeTransforms() ([]*transform.Stateful, error) {
	if len(a.registered) == 0 {
		return nil, nil
	}

	tags := make([]string, 0, len(a.registered))
	for tag := range a.registered {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	transforms := make([]*transform.Stateful, 0, len(tags))
	for _, tag := range tags {
		desc := a.registered[tag]
		st, err := transform.NewStateful(desc.New, desc.Config)
		if err != nil {
			return nil, fmt.Errorf("materialize transform %q: %w", tag, err)
		}
		st.Tag = tag
		transforms = append(transforms, st)
	}
	return transforms, nil
}

func (a *TradingAlgorithm) drive(stream SnapshotStream, total int) ([]types.PerfSnapshot, error) {
	var bar *progressbar.ProgressBar
	if a.progress {
		bar = initProgressBar(total)
	}

	var perfs []types.PerfSnapshot
	for {
		snap, ok, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		perfs = append(perfs, snap)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	a.Logger().Debug("simulation drained", zap.Int("snapshots", len(perfs)))
	return perfs, nil
}

// sourceLen sizes the progress bar: period count plus the summary snapshot
// when the source knows its length, indeterminate otherwise.
func sourceLen(src Source) int {
	if sized, ok := src.(interface{ Len() int }); ok {
		return sized.Len() + 1
	}
	return -1
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
