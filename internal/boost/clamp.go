package boost

// Clamp is invoked by the policy authority while it recomputes the allowed
// range of a core. It returns the adjusted minimum for [policyMin, policyMax].
// It only reads the published floor table and never waits for the worker.
func (c *Controller) Clamp(core int, policyMin, policyMax uint64) uint64 {
	floor := c.floors.Get(core)

	switch floor {
	case FloorUnset:
		return policyMin
	case FloorUnbounded:
		return policyMax
	}

	boostMin := min(uint64(floor), policyMax)
	if boostMin < policyMin {
		return policyMin
	}
	return boostMin
}
