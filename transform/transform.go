package transform

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrBadWindow = errors.New("transform window must be at least 1")
var ErrBadDecay = errors.New("ema decay must be inside (0, 1]")

// Transform is streaming per-instrument state: feed prices in arrival order
// with Update, read the current value with Value. Value reports false until
// the transform has seen enough data.
type Transform interface {
	Update(price decimal.Decimal)
	Value() (decimal.Decimal, bool)
}

// Config carries the construction arguments of the built-in transforms.
// Constructors read the fields they understand and ignore the rest.
type Config struct {
	Window int
	// Decay overrides the EMA smoothing factor. Zero means 2/(window+1).
	Decay float64
}

// Constructor builds one fresh Transform from a config. Materialization is
// deferred until a run is assembled, so a registered constructor only fails
// then, not at registration.
type Constructor func(cfg Config) (Transform, error)

// Descriptor is a registry entry: the constructor plus the config it will be
// called with at assembly time.
type Descriptor struct {
	New    Constructor
	Config Config
}
