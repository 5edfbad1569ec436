package monitoring

import (
	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"
	ctrlMetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const policySubsystem string = "policy"

// FrequencyReader returns a per-cpu frequency in kHz.
type FrequencyReader func(cpu int) (uint64, error)

// sysfsReadFunc drops cpus whose value cannot be read, offline ones included.
func sysfsReadFunc(read FrequencyReader, logger logr.Logger) func(cpu int) (uint64, bool) {
	return func(cpu int) (uint64, bool) {
		freq, err := read(cpu)
		if err != nil {
			logger.V(5).Info("skipping cpu", "cpu", cpu, "reason", err.Error())
			return 0, false
		}
		return freq, true
	}
}

// NewPolicyCollectors reports the effect of the floors on the cpufreq policies.
func NewPolicyCollectors(numCPUs int, minFreq, curFreq FrequencyReader, logger logr.Logger) []prom.Collector {
	logger = logger.WithName(LogTopName).WithName(policySubsystem)

	minLogger := logger.WithValues(logNameKey, "min_khz")
	curLogger := logger.WithValues(logNameKey, "cur_khz")

	return []prom.Collector{
		newPerCPUCollector(
			prom.BuildFQName(promNamespace, policySubsystem, "min_khz"),
			"Gauge of the cpufreq policy minimum in force on the cpu, in kHz",
			prom.GaugeValue,
			numCPUs,
			sysfsReadFunc(minFreq, minLogger),
			minLogger,
		),
		newPerCPUCollector(
			prom.BuildFQName(promNamespace, policySubsystem, "cur_khz"),
			"Gauge of the current cpu frequency reported by the cpufreq driver, in kHz",
			prom.GaugeValue,
			numCPUs,
			sysfsReadFunc(curFreq, curLogger),
			curLogger,
		),
	}
}

func RegisterPolicyCollectors(numCPUs int, minFreq, curFreq FrequencyReader, logger logr.Logger) {
	ctrlMetrics.Registry.MustRegister(NewPolicyCollectors(numCPUs, minFreq, curFreq, logger)...)
}
