package sim

import (
	"errors"
	"fmt"
	"time"
)

var ErrEmptySpan = errors.New("simulation span is empty")

// Environment is the resolved time span of one run.
type Environment struct {
	Start time.Time
	End   time.Time
}

// GlobalTimeRange is the union span of all sources: earliest start to latest
// end. Zero times when there are no sources.
func GlobalTimeRange(sources []Source) (time.Time, time.Time) {
	if len(sources) == 0 {
		return time.Time{}, time.Time{}
	}

	minStart := sources[0].Start()
	maxEnd := sources[0].End()

	for _, src := range sources[1:] {
		if src.Start().Before(minStart) {
			minStart = src.Start()
		}
		if src.End().After(maxEnd) {
			maxEnd = src.End()
		}
	}
	return minStart, maxEnd
}

// ResolveEnvironment builds the environment for a run. A zero or inverted
// span means the sources have no periods to replay, which is fatal at
// assembly.
func ResolveEnvironment(start, end time.Time) (Environment, error) {
	if start.IsZero() || end.IsZero() {
		return Environment{}, ErrEmptySpan
	}
	if end.Before(start) {
		return Environment{}, fmt.Errorf("end %s before start %s: %w",
			end.Format(time.RFC3339), start.Format(time.RFC3339), ErrEmptySpan)
	}
	return Environment{Start: start, End: end}, nil
}
