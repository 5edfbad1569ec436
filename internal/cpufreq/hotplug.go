package cpufreq

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/cpuset"
	ctrl "sigs.k8s.io/controller-runtime"
)

var (
	testHookStopLoop func() bool
)

// HotplugResync refreshes cores that came back online so that a floor
// stored while they were offline takes effect.
type HotplugResync struct {
	policy *Policy
	period time.Duration
	logger logr.Logger
	known  cpuset.CPUSet
}

func NewHotplugResync(policy *Policy, period time.Duration) *HotplugResync {
	return &HotplugResync{
		policy: policy,
		period: period,
		logger: ctrl.Log.WithName("HotplugResync"),
		known:  cpuset.New(policy.OnlineCores()...),
	}
}

// Start blocks until ctx is done.
func (h *HotplugResync) Start(ctx context.Context) error {
	h.runLoop(ctx)
	return nil
}

func (h *HotplugResync) runLoop(ctx context.Context) {
	for {
		if testHookStopLoop != nil {
			if testHookStopLoop() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.period):
			h.resync()
		}
	}
}

// resync refreshes cores that are online now but were not at the last pass.
func (h *HotplugResync) resync() {
	online := cpuset.New(h.policy.OnlineCores()...)
	returned := online.Difference(h.known)
	h.known = online

	for _, core := range returned.List() {
		h.logger.V(4).Info("cpu came online, refreshing policy", "cpu", core)
		h.policy.RefreshPolicy(core)
	}
}
