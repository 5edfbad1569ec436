package boost

import (
	"sync/atomic"
	"time"
)

type statCounters struct {
	inputEvents      atomic.Uint64
	inputAccepted    atomic.Uint64
	inputDebounced   atomic.Uint64
	kicksAccepted    atomic.Uint64
	kicksRejected    atomic.Uint64
	maxKicks         atomic.Uint64
	ordinaryEpisodes atomic.Uint64
	maxEpisodes      atomic.Uint64
	removals         atomic.Uint64
}

// Stats is a point-in-time copy of the controller counters.
type Stats struct {
	InputEvents      uint64
	InputAccepted    uint64
	InputDebounced   uint64
	KicksAccepted    uint64
	KicksRejected    uint64
	MaxKicks         uint64
	OrdinaryEpisodes uint64
	MaxEpisodes      uint64
	Removals         uint64
}

func (c *Controller) Stats() Stats {
	return Stats{
		InputEvents:      c.stats.inputEvents.Load(),
		InputAccepted:    c.stats.inputAccepted.Load(),
		InputDebounced:   c.stats.inputDebounced.Load(),
		KicksAccepted:    c.stats.kicksAccepted.Load(),
		KicksRejected:    c.stats.kicksRejected.Load(),
		MaxKicks:         c.stats.maxKicks.Load(),
		OrdinaryEpisodes: c.stats.ordinaryEpisodes.Load(),
		MaxEpisodes:      c.stats.maxEpisodes.Load(),
		Removals:         c.stats.removals.Load(),
	}
}

// Status describes the controller state for diagnostics.
type Status struct {
	Kind            Kind
	BiasActive      bool
	ApplyPending    bool
	LastTrigger     time.Time
	RemovalDeadline time.Time
	Floors          []Floor
}

func (c *Controller) Status() Status {
	status := Status{
		Kind:         c.Kind(),
		BiasActive:   c.BiasActive(),
		ApplyPending: c.applyPending.Load(),
		Floors:       c.floors.Snapshot(),
	}
	if last := c.lastTrigger.Load(); last != nil {
		status.LastTrigger = *last
	}
	if deadline := c.removalDeadline.Load(); deadline != nil {
		status.RemovalDeadline = *deadline
	}
	return status
}
