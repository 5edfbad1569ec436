package boost

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Floor is a per-core minimum frequency override in kHz.
type Floor uint64

const (
	// FloorUnset means no override is active for the core.
	FloorUnset Floor = 0
	// FloorUnbounded pins the floor to whatever the policy maximum is.
	FloorUnbounded Floor = math.MaxUint64
)

func (f Floor) String() string {
	switch f {
	case FloorUnset:
		return "unset"
	case FloorUnbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("%dkHz", uint64(f))
	}
}

// Kind identifies the boost episode currently in effect.
type Kind int32

const (
	KindNone Kind = iota
	KindOrdinary
	KindMax
)

func (k Kind) String() string {
	switch k {
	case KindOrdinary:
		return "ordinary"
	case KindMax:
		return "max"
	default:
		return "none"
	}
}

const (
	DefaultLowCoreFloor      Floor         = 1113600
	DefaultHighCoreFloor     Floor         = 1113600
	DefaultLowCoreCount      int           = 4
	DefaultBoostDuration     time.Duration = 150 * time.Millisecond
	DefaultKickRecencyWindow time.Duration = 5000 * time.Millisecond
)

var ErrInvalidOptions = errors.New("invalid boost options")

// BoostOpts holds the constants an episode controller is built with.
type BoostOpts struct {
	// LowCoreFloor applies to cores with id < LowCoreCount during an ordinary boost.
	LowCoreFloor Floor
	// HighCoreFloor applies to every other core during an ordinary boost.
	HighCoreFloor     Floor
	LowCoreCount      int
	BoostDuration     time.Duration
	KickRecencyWindow time.Duration
	// NumCores sizes the floor table. It must cover offline cores too.
	NumCores int
}

func DefaultBoostOpts(numCores int) BoostOpts {
	return BoostOpts{
		LowCoreFloor:      DefaultLowCoreFloor,
		HighCoreFloor:     DefaultHighCoreFloor,
		LowCoreCount:      DefaultLowCoreCount,
		BoostDuration:     DefaultBoostDuration,
		KickRecencyWindow: DefaultKickRecencyWindow,
		NumCores:          numCores,
	}
}

func (o BoostOpts) validate() error {
	switch {
	case o.NumCores <= 0:
		return fmt.Errorf("%w: core count must be positive, got %d", ErrInvalidOptions, o.NumCores)
	case o.LowCoreFloor == FloorUnset || o.LowCoreFloor == FloorUnbounded:
		return fmt.Errorf("%w: low core floor must be an explicit frequency", ErrInvalidOptions)
	case o.HighCoreFloor == FloorUnset || o.HighCoreFloor == FloorUnbounded:
		return fmt.Errorf("%w: high core floor must be an explicit frequency", ErrInvalidOptions)
	case o.LowCoreCount < 0:
		return fmt.Errorf("%w: low core count cannot be negative", ErrInvalidOptions)
	case o.BoostDuration <= 0:
		return fmt.Errorf("%w: boost duration must be positive", ErrInvalidOptions)
	case o.KickRecencyWindow <= 0:
		return fmt.Errorf("%w: kick recency window must be positive", ErrInvalidOptions)
	}
	return nil
}

// ordinaryFloor returns the floor an ordinary boost installs on the given core.
func (o BoostOpts) ordinaryFloor(core int) Floor {
	if core < o.LowCoreCount {
		return o.LowCoreFloor
	}
	return o.HighCoreFloor
}
