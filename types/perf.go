package types

import "time"

// PerfSnapshot is one emission from a simulation: either a per-period
// DailySnapshot or the closing SummarySnapshot. The two cases are the only
// implementations.
type PerfSnapshot interface {
	perfSnapshot()
}

// DailySnapshot carries the metrics of one completed simulation period.
type DailySnapshot struct {
	PeriodClose time.Time
	Fields      Fields
}

func (DailySnapshot) perfSnapshot() {}

// SummarySnapshot carries whole-run metrics, emitted once after the final
// period.
type SummarySnapshot struct {
	Fields Fields
}

func (SummarySnapshot) perfSnapshot() {}
