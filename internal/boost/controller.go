package boost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// PolicyAuthority recomputes operating points for cores. RefreshPolicy is
// expected to call back into Controller.Clamp synchronously.
type PolicyAuthority interface {
	OnlineCores() []int
	RefreshPolicy(core int)
}

var _ manager.Runnable = &Controller{}

type maxRequest struct {
	duration time.Duration
	done     chan struct{}
}

// Controller owns the floor table and the episode state. Every mutation runs
// on a single worker goroutine; Clamp and the getters are safe from anywhere.
type Controller struct {
	opts      BoostOpts
	authority PolicyAuthority
	clock     clock.Clock
	logger    logr.Logger

	floors       *floorTable
	kind         atomic.Int32
	lastTrigger  atomic.Pointer[time.Time]
	applyPending atomic.Bool
	bias         atomic.Bool
	stats        statCounters

	applyCh chan struct{}
	maxCh   chan maxRequest

	// owned by the worker goroutine
	removalTimer    clock.Timer
	removalDeadline atomic.Pointer[time.Time]

	cancelFunc func()
	waitGroup  sync.WaitGroup
	stopped    chan struct{}
}

// NewController validates opts and starts the worker. When it fails the
// caller must not install the clamp callback nor any trigger source.
func NewController(opts BoostOpts, authority PolicyAuthority, clk clock.Clock) (*Controller, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if authority == nil {
		return nil, fmt.Errorf("%w: policy authority is required", ErrInvalidOptions)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	c := &Controller{
		opts:       opts,
		authority:  authority,
		clock:      clk,
		logger:     ctrl.Log.WithName("BoostController"),
		floors:     newFloorTable(opts.NumCores),
		applyCh:    make(chan struct{}, 1),
		maxCh:      make(chan maxRequest),
		cancelFunc: cancelFunc,
		stopped:    make(chan struct{}),
	}

	c.waitGroup.Add(1)
	go c.runLoop(ctx)

	c.logger.V(4).Info("boost controller started",
		"cores", opts.NumCores,
		"lowCoreFloor", opts.LowCoreFloor,
		"highCoreFloor", opts.HighCoreFloor,
		"lowCoreCount", opts.LowCoreCount,
		"duration", opts.BoostDuration)

	return c, nil
}

// Start blocks until ctx is done and then stops the worker.
func (c *Controller) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		c.Stop()
	case <-c.stopped:
	}
	return nil
}

// Stop terminates the worker. Floors are left as they are; the authority is
// expected to restore its own baseline on shutdown.
func (c *Controller) Stop() {
	c.cancelFunc()
	c.waitGroup.Wait()
}

func (c *Controller) runLoop(ctx context.Context) {
	defer c.waitGroup.Done()
	defer close(c.stopped)

	for {
		var removalC <-chan time.Time
		if c.removalTimer != nil {
			removalC = c.removalTimer.C()
		}

		select {
		case <-ctx.Done():
			c.cancelRemoval()
			return
		case <-c.applyCh:
			c.applyOrdinaryBoost()
			c.applyPending.Store(false)
		case req := <-c.maxCh:
			c.applyMaxBoost(req.duration)
			close(req.done)
		case <-removalC:
			c.removalTimer = nil
			c.removeBoost()
		}
	}
}

func (c *Controller) applyOrdinaryBoost() {
	if c.Kind() == KindMax {
		c.logger.V(5).Info("max boost active, ignoring ordinary boost")
		return
	}

	c.cancelRemoval()

	c.logger.V(5).Info("setting input boost min for all CPUs")
	c.floors.Fill(c.opts.ordinaryFloor)
	c.refreshOnlinePolicies()

	c.scheduleRemoval(c.opts.BoostDuration)
	c.kind.Store(int32(KindOrdinary))
	c.stats.ordinaryEpisodes.Add(1)
}

func (c *Controller) applyMaxBoost(duration time.Duration) {
	c.cancelRemoval()

	c.logger.V(5).Info("setting max boost min for all CPUs", "duration", duration)
	c.floors.Fill(func(int) Floor { return FloorUnbounded })
	c.refreshOnlinePolicies()

	c.scheduleRemoval(duration)
	c.kind.Store(int32(KindMax))
	c.stats.maxEpisodes.Add(1)
}

func (c *Controller) removeBoost() {
	c.bias.Store(false)

	c.logger.V(5).Info("resetting boost min for all CPUs")
	c.floors.Fill(func(int) Floor { return FloorUnset })
	c.refreshOnlinePolicies()

	c.removalDeadline.Store(nil)
	c.kind.Store(int32(KindNone))
	c.stats.removals.Add(1)
}

// refreshOnlinePolicies asks the authority to recompute every online core.
// Offline cores keep their stored floor until they come back online.
func (c *Controller) refreshOnlinePolicies() {
	for _, core := range c.authority.OnlineCores() {
		c.logger.V(5).Info("updating policy", "cpu", core)
		c.authority.RefreshPolicy(core)
	}
}

func (c *Controller) scheduleRemoval(duration time.Duration) {
	c.removalTimer = c.clock.NewTimer(duration)
	deadline := c.clock.Now().Add(duration)
	c.removalDeadline.Store(&deadline)
}

// cancelRemoval stops the pending removal timer and discards a firing that
// has not been consumed yet. It runs on the worker, which is the only
// receiver of the timer channel, so once it returns the stale removal can
// no longer run. It reports whether a timer was outstanding.
func (c *Controller) cancelRemoval() bool {
	if c.removalTimer == nil {
		return false
	}

	if !c.removalTimer.Stop() {
		select {
		case <-c.removalTimer.C():
		default:
		}
	}
	c.removalTimer = nil
	c.removalDeadline.Store(nil)
	return true
}

func (c *Controller) Kind() Kind {
	return Kind(c.kind.Load())
}

// Floor returns the floor currently stored for core.
func (c *Controller) Floor(core int) Floor {
	return c.floors.Get(core)
}

func (c *Controller) NumCores() int {
	return c.floors.Len()
}
