package cpufreq

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	ctrl "sigs.k8s.io/controller-runtime"
)

// Func definitions for unit testing
var (
	testHookBeforeWrite func(cpu int, frequency uint64)
)

// ClampFunc adjusts the minimum of a core's allowed range [policyMin, policyMax].
type ClampFunc func(core int, policyMin, policyMax uint64) uint64

// Policy recomputes per-core scaling ranges through the cpufreq sysfs
// interface. The natural minimum of each core is captured the first time
// the core is seen and every refresh writes clamp(baseline, max) back.
type Policy struct {
	logger logr.Logger
	clamp  atomic.Pointer[ClampFunc]

	mutex     sync.Mutex
	baseline  map[int]uint64
	coreLocks map[int]*sync.Mutex
}

func NewPolicy() *Policy {
	return &Policy{
		logger:    ctrl.Log.WithName("CPUFreqPolicy"),
		baseline:  make(map[int]uint64),
		coreLocks: make(map[int]*sync.Mutex),
	}
}

// SetClamp registers the callback consulted on every refresh.
func (p *Policy) SetClamp(fn ClampFunc) {
	p.clamp.Store(&fn)
}

// OnlineCores returns the cpus currently online. A read failure is logged
// and reported as no online cores.
func (p *Policy) OnlineCores() []int {
	cpus, err := onlineCores()
	if err != nil {
		p.logger.Error(err, "failed to list online cpus")
		return nil
	}
	return cpus.List()
}

// RefreshPolicy recomputes the minimum frequency of core. Failures are
// logged and not retried.
func (p *Policy) RefreshPolicy(core int) {
	if err := p.refresh(core); err != nil {
		p.logger.Error(err, "failed to refresh policy", "cpu", core)
	}
}

// coreLock serializes the read-clamp-write of one core, so a result computed
// from an older floor can never be written after a newer one.
func (p *Policy) coreLock(core int) *sync.Mutex {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	lock, found := p.coreLocks[core]
	if !found {
		lock = &sync.Mutex{}
		p.coreLocks[core] = lock
	}
	return lock
}

func (p *Policy) refresh(core int) error {
	lock := p.coreLock(core)
	lock.Lock()
	defer lock.Unlock()

	policyMin, err := p.baselineMin(core)
	if err != nil {
		return err
	}

	policyMax, err := readFrequency(core, scalingMaxFreq)
	if err != nil {
		return err
	}

	adjustedMin := policyMin
	if clamp := p.clamp.Load(); clamp != nil {
		adjustedMin = (*clamp)(core, policyMin, policyMax)
	}

	currentMin, err := readFrequency(core, scalingMinFreq)
	if err != nil {
		return err
	}

	p.logger.V(5).Info("policy min before boost", "cpu", core, "kHz", currentMin)
	if currentMin == adjustedMin {
		return nil
	}

	if testHookBeforeWrite != nil {
		testHookBeforeWrite(core, adjustedMin)
	}
	if err := writeFrequency(core, scalingMinFreq, adjustedMin); err != nil {
		return err
	}
	p.logger.V(5).Info("policy min after boost", "cpu", core, "kHz", adjustedMin)

	return nil
}

// baselineMin returns the natural minimum of core, reading it on first use.
func (p *Policy) baselineMin(core int) (uint64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if freq, found := p.baseline[core]; found {
		return freq, nil
	}

	freq, err := readFrequency(core, scalingMinFreq)
	if err != nil {
		return 0, err
	}
	freq = p.unpinnedMin(core, freq)
	p.baseline[core] = freq
	p.logger.V(4).Info("captured baseline policy min", "cpu", core, "kHz", freq)

	return freq, nil
}

// unpinnedMin guards against adopting a leftover max boost as the baseline:
// when the live minimum equals the policy maximum, an earlier run most likely
// exited without restoring it, and the hardware minimum is used instead.
func (p *Policy) unpinnedMin(core int, liveMin uint64) uint64 {
	policyMax, err := readFrequency(core, scalingMaxFreq)
	if err != nil || liveMin != policyMax {
		return liveMin
	}

	hardwareMin, err := readFrequency(core, cpuinfoMinFreq)
	if err != nil {
		p.logger.Info("policy min is pinned to policy max, keeping it as baseline", "cpu", core, "kHz", liveMin, "reason", err.Error())
		return liveMin
	}
	if hardwareMin >= liveMin {
		return liveMin
	}

	p.logger.Info("policy min is pinned to policy max, using hardware min as baseline",
		"cpu", core, "pinnedKHz", liveMin, "kHz", hardwareMin)
	return hardwareMin
}

// CaptureBaseline records the natural minimum of every given core before
// any boost is applied.
func (p *Policy) CaptureBaseline(cores []int) error {
	var errs error
	for _, core := range cores {
		if _, err := p.baselineMin(core); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Restore writes the captured baseline minimum back to every known core.
func (p *Policy) Restore() error {
	p.mutex.Lock()
	baseline := lo.Assign(p.baseline)
	p.mutex.Unlock()

	cores := lo.Keys(baseline)

	slices.Sort(cores)

	var errs error
	for _, core := range cores {
		lock := p.coreLock(core)
		lock.Lock()
		if err := writeFrequency(core, scalingMinFreq, baseline[core]); err != nil {
			errs = multierr.Append(errs, err)
		}
		lock.Unlock()
	}
	return errs
}
