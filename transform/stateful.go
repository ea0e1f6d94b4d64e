package transform

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

// Stateful fans one registered transform out across instruments, keeping an
// independent Transform instance per SID. Instances are created lazily the
// first time an instrument shows up in the data.
type Stateful struct {
	// Tag is the registry name this transform was materialized under. The
	// assembler sets it right after construction.
	Tag string

	ctor  Constructor
	cfg   Config
	state map[types.SID]Transform
}

// NewStateful builds the fan-out and probes the constructor once, so bad
// arguments surface at assembly instead of mid-simulation.
func NewStateful(ctor Constructor, cfg Config) (*Stateful, error) {
	if ctor == nil {
		return nil, errors.New("nil transform constructor")
	}
	if _, err := ctor(cfg); err != nil {
		return nil, err
	}
	return &Stateful{
		ctor:  ctor,
		cfg:   cfg,
		state: make(map[types.SID]Transform),
	}, nil
}

// Apply feeds one price for one instrument and returns the transform's
// current value. ok stays false while the instrument's instance is warming
// up.
func (s *Stateful) Apply(sid types.SID, price decimal.Decimal) (decimal.Decimal, bool, error) {
	tr, ok := s.state[sid]
	if !ok {
		var err error
		tr, err = s.ctor(s.cfg)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("transform %q sid %d: %w", s.Tag, sid, err)
		}
		s.state[sid] = tr
	}
	tr.Update(price)
	value, ready := tr.Value()
	return value, ready, nil
}
