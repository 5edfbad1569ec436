package boost

import "time"

// OnInputEvent is called for every qualifying input event. It never blocks:
// one pending apply absorbs any number of events.
func (c *Controller) OnInputEvent(ts time.Time) {
	c.lastTrigger.Store(&ts)
	c.stats.inputEvents.Add(1)

	if !c.applyPending.CompareAndSwap(false, true) {
		c.stats.inputDebounced.Add(1)
		return
	}

	c.bias.Store(true)
	c.enqueueApply()
	c.stats.inputAccepted.Add(1)
}

// Kick extends boosting opportunistically, piggybacking on recent input.
// It is dropped while an apply is pending or when the last input event is
// older than the recency window. It reports whether the kick was accepted.
func (c *Controller) Kick() bool {
	if c.applyPending.Load() || !c.inputIsRecent() {
		c.stats.kicksRejected.Add(1)
		return false
	}
	if !c.applyPending.CompareAndSwap(false, true) {
		c.stats.kicksRejected.Add(1)
		return false
	}

	c.bias.Store(true)
	c.enqueueApply()
	c.stats.kicksAccepted.Add(1)
	return true
}

// MaxKick pins every core floor to its policy maximum for duration. It has
// no debounce and no recency guard, and returns once the worker applied it
// (or immediately if the controller was stopped). A later call always
// re-arms the removal, even with a shorter duration.
func (c *Controller) MaxKick(duration time.Duration) {
	c.bias.Store(true)
	c.stats.maxKicks.Add(1)

	req := maxRequest{duration: duration, done: make(chan struct{})}
	select {
	case c.maxCh <- req:
	case <-c.stopped:
		return
	}

	select {
	case <-req.done:
	case <-c.stopped:
	}
}

// BiasActive is set when an episode is triggered and cleared on removal.
func (c *Controller) BiasActive() bool {
	return c.bias.Load()
}

func (c *Controller) inputIsRecent() bool {
	last := c.lastTrigger.Load()
	if last == nil {
		return false
	}
	return c.clock.Since(*last) <= c.opts.KickRecencyWindow
}

func (c *Controller) enqueueApply() {
	select {
	case c.applyCh <- struct{}{}:
	default:
	}
}
