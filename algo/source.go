package algo

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

var ErrUnorderedFrame = errors.New("frame index is not strictly increasing")

// Source yields market data events in time order and reports the span it
// covers. Run pulls a source exactly once, to exhaustion.
type Source interface {
	Start() time.Time
	End() time.Time
	Next() (types.Event, bool, error)
}

// SliceSource replays an in-memory event slice in the order given.
type SliceSource struct {
	events []types.Event
	i      int
}

func NewSliceSource(events []types.Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Len() int {
	return len(s.events)
}

func (s *SliceSource) Start() time.Time {
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[0].Time
}

func (s *SliceSource) End() time.Time {
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[len(s.events)-1].Time
}

func (s *SliceSource) Next() (types.Event, bool, error) {
	if s.i >= len(s.events) {
		return types.Event{}, false, nil
	}
	event := s.events[s.i]
	s.i++
	return event, true, nil
}

// frameFeed streams a price frame restricted to the tracked instruments.
// The frame's index must be strictly increasing; that is checked up front so
// a bad frame fails before any simulation work.
type frameFeed struct {
	frame *types.PriceFrame
	sids  []types.SID
	i     int
}

func newFrameFeed(frame *types.PriceFrame, sids []types.SID) (*frameFeed, error) {
	times := frame.Times()
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("index %d (%s) does not advance past %s: %w",
				i, times[i].Format(time.RFC3339), times[i-1].Format(time.RFC3339), ErrUnorderedFrame)
		}
	}
	return &frameFeed{frame: frame, sids: sids}, nil
}

func (f *frameFeed) Len() int {
	return f.frame.Len()
}

func (f *frameFeed) Start() time.Time {
	if f.frame.Len() == 0 {
		return time.Time{}
	}
	return f.frame.Times()[0]
}

func (f *frameFeed) End() time.Time {
	if f.frame.Len() == 0 {
		return time.Time{}
	}
	return f.frame.Times()[f.frame.Len()-1]
}

func (f *frameFeed) Next() (types.Event, bool, error) {
	if f.i >= f.frame.Len() {
		return types.Event{}, false, nil
	}
	prices := make(map[types.SID]decimal.Decimal, len(f.sids))
	for _, sid := range f.sids {
		if price, ok := f.frame.Price(f.i, sid); ok {
			prices[sid] = price
		}
	}
	event := types.Event{Time: f.frame.Times()[f.i], Prices: prices}
	f.i++
	return event, true, nil
}
