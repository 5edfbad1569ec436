package monitoring

import (
	"math"
	"strconv"

	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/constraints"
	ctrlMetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/AMDEPYC/cpu-boost/internal/boost"
)

// Helper constants for prom Collectors
const (
	promNamespace  string = "cpu_boost"
	LogTopName     string = "monitoring"
	floorSubsystem string = "floor"
	boostSubsystem string = "episode"
	trigSubsystem  string = "trigger"

	logNameKey string = "name"
)

type collectorImpl struct {
	collectFunc  func(ch chan<- prom.Metric)
	describeFunc func(ch chan<- *prom.Desc)
}

func (c collectorImpl) Collect(ch chan<- prom.Metric) {
	c.collectFunc(ch)
}

func (c collectorImpl) Describe(ch chan<- *prom.Desc) {
	c.describeFunc(ch)
}

type number interface {
	constraints.Integer | constraints.Float
}

// BoostSource is the read side of the boost controller.
type BoostSource interface {
	NumCores() int
	Floor(core int) boost.Floor
	Kind() boost.Kind
	BiasActive() bool
	Stats() boost.Stats
}

// newPerCPUCollector is generic factory of prometheus Collectors for metrics that are CPU bound.
// readFunc returns the value for a cpu and whether it should be reported at all.
func newPerCPUCollector[T number](metricName, metricDesc string, metricType prom.ValueType,
	numCPUs int, readFunc func(cpu int) (T, bool), log logr.Logger,
) prom.Collector {
	desc := prom.NewDesc(
		metricName,
		metricDesc,
		[]string{"cpu"},
		nil,
	)
	log.V(4).Info("New perCPU prometheus Collector created", "cpus", numCPUs)

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- desc
		},
		collectFunc: func(ch chan<- prom.Metric) {
			for cpu := 0; cpu < numCPUs; cpu++ {
				if val, ok := readFunc(cpu); ok {
					ch <- prom.MustNewConstMetric(desc, metricType, float64(val), strconv.Itoa(cpu))
				}
			}
		},
	}
}

// newValueCollector reports a single unlabelled value read at scrape time.
func newValueCollector[T number](metricName, metricDesc string, metricType prom.ValueType,
	readFunc func() T,
) prom.Collector {
	desc := prom.NewDesc(metricName, metricDesc, nil, nil)

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- desc
		},
		collectFunc: func(ch chan<- prom.Metric) {
			ch <- prom.MustNewConstMetric(desc, metricType, float64(readFunc()))
		},
	}
}

// newLabelledCollector reports one value per label value, all read from a
// single snapshot at scrape time.
func newLabelledCollector[T number](metricName, metricDesc string, metricType prom.ValueType,
	label string, readFunc func() map[string]T,
) prom.Collector {
	desc := prom.NewDesc(metricName, metricDesc, []string{label}, nil)

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- desc
		},
		collectFunc: func(ch chan<- prom.Metric) {
			for labelValue, val := range readFunc() {
				ch <- prom.MustNewConstMetric(desc, metricType, float64(val), labelValue)
			}
		},
	}
}

func boolToGauge(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// NewBoostCollectors builds the collectors exposing the state of src.
func NewBoostCollectors(src BoostSource, logger logr.Logger) []prom.Collector {
	logger = logger.WithName(LogTopName)

	return []prom.Collector{
		newPerCPUCollector(
			prom.BuildFQName(promNamespace, floorSubsystem, "khz"),
			"Gauge of the minimum frequency floor installed on the cpu, in kHz; absent while unset, +Inf while pinned to the policy maximum",
			prom.GaugeValue,
			src.NumCores(),
			func(cpu int) (float64, bool) {
				switch floor := src.Floor(cpu); floor {
				case boost.FloorUnset:
					return 0, false
				case boost.FloorUnbounded:
					return math.Inf(1), true
				default:
					return float64(floor), true
				}
			},
			logger.WithValues(logNameKey, "floor_khz"),
		),
		newLabelledCollector(
			prom.BuildFQName(promNamespace, boostSubsystem, "active"),
			"Gauge set to 1 for the boost episode kind currently in effect",
			prom.GaugeValue,
			"kind",
			func() map[string]uint8 {
				current := src.Kind()
				return map[string]uint8{
					boost.KindOrdinary.String(): boolToGauge(current == boost.KindOrdinary),
					boost.KindMax.String():      boolToGauge(current == boost.KindMax),
				}
			},
		),
		newValueCollector(
			prom.BuildFQName(promNamespace, "", "bias_active"),
			"Gauge set to 1 while the boost bias signal is raised",
			prom.GaugeValue,
			func() uint8 { return boolToGauge(src.BiasActive()) },
		),
		newLabelledCollector(
			prom.BuildFQName(promNamespace, boostSubsystem, "started_total"),
			"Counter of boost episodes applied",
			prom.CounterValue,
			"kind",
			func() map[string]uint64 {
				stats := src.Stats()
				return map[string]uint64{
					boost.KindOrdinary.String(): stats.OrdinaryEpisodes,
					boost.KindMax.String():      stats.MaxEpisodes,
				}
			},
		),
		newValueCollector(
			prom.BuildFQName(promNamespace, boostSubsystem, "removed_total"),
			"Counter of boost episodes that expired",
			prom.CounterValue,
			func() uint64 { return src.Stats().Removals },
		),
		newLabelledCollector(
			prom.BuildFQName(promNamespace, trigSubsystem, "total"),
			"Counter of boost triggers by outcome",
			prom.CounterValue,
			"trigger",
			func() map[string]uint64 {
				stats := src.Stats()
				return map[string]uint64{
					"input":           stats.InputAccepted,
					"input_debounced": stats.InputDebounced,
					"kick":            stats.KicksAccepted,
					"kick_rejected":   stats.KicksRejected,
					"max_kick":        stats.MaxKicks,
				}
			},
		),
	}
}

// RegisterBoostCollectors registers the boost collectors in the
// controller-runtime metrics registry.
func RegisterBoostCollectors(src BoostSource, logger logr.Logger) {
	ctrlMetrics.Registry.MustRegister(NewBoostCollectors(src, logger)...)
}
