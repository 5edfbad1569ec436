package monitoring

import (
	"os"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/AMDEPYC/cpu-boost/internal/boost"
)

type boostSourceMock struct {
	mock.Mock
}

func (b *boostSourceMock) NumCores() int {
	return b.Called().Int(0)
}

func (b *boostSourceMock) Floor(core int) boost.Floor {
	return b.Called(core).Get(0).(boost.Floor)
}

func (b *boostSourceMock) Kind() boost.Kind {
	return b.Called().Get(0).(boost.Kind)
}

func (b *boostSourceMock) BiasActive() bool {
	return b.Called().Bool(0)
}

func (b *boostSourceMock) Stats() boost.Stats {
	return b.Called().Get(0).(boost.Stats)
}

func newTestLogger() {
	log.SetLogger(zap.New(
		zap.UseDevMode(true),
		func(opts *zap.Options) {
			opts.TimeEncoder = zapcore.ISO8601TimeEncoder
		},
	))
}

func initializeSourceMock(kind boost.Kind, floors ...boost.Floor) *boostSourceMock {
	src := &boostSourceMock{}
	src.On("NumCores").Return(len(floors))
	for cpu, floor := range floors {
		src.On("Floor", cpu).Return(floor)
	}
	src.On("Kind").Return(kind)
	src.On("BiasActive").Return(kind != boost.KindNone)
	src.On("Stats").Return(boost.Stats{
		InputEvents:      12,
		InputAccepted:    2,
		InputDebounced:   10,
		KicksAccepted:    1,
		KicksRejected:    3,
		MaxKicks:         4,
		OrdinaryEpisodes: 3,
		MaxEpisodes:      4,
		Removals:         6,
	})
	return src
}

func TestNewBoostCollectors(t *testing.T) {
	newTestLogger()
	src := initializeSourceMock(boost.KindOrdinary, 1113600, 1113600, boost.FloorUnset)

	collectors := NewBoostCollectors(src, ctrl.Log.WithName("test"))
	require.Len(t, collectors, 6)

	// unset floors are not reported
	assert.Equal(t, 2, promtestutil.CollectAndCount(collectors[0]))

	expected := `
# HELP cpu_boost_floor_khz Gauge of the minimum frequency floor installed on the cpu, in kHz; absent while unset, +Inf while pinned to the policy maximum
# TYPE cpu_boost_floor_khz gauge
cpu_boost_floor_khz{cpu="0"} 1.1136e+06
cpu_boost_floor_khz{cpu="1"} 1.1136e+06
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[0], strings.NewReader(expected)))

	expected = `
# HELP cpu_boost_episode_active Gauge set to 1 for the boost episode kind currently in effect
# TYPE cpu_boost_episode_active gauge
cpu_boost_episode_active{kind="max"} 0
cpu_boost_episode_active{kind="ordinary"} 1
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[1], strings.NewReader(expected)))

	assert.Equal(t, float64(1), promtestutil.ToFloat64(collectors[2]))
	assert.Equal(t, float64(6), promtestutil.ToFloat64(collectors[4]))

	expected = `
# HELP cpu_boost_trigger_total Counter of boost triggers by outcome
# TYPE cpu_boost_trigger_total counter
cpu_boost_trigger_total{trigger="input"} 2
cpu_boost_trigger_total{trigger="input_debounced"} 10
cpu_boost_trigger_total{trigger="kick"} 1
cpu_boost_trigger_total{trigger="kick_rejected"} 3
cpu_boost_trigger_total{trigger="max_kick"} 4
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[5], strings.NewReader(expected)))
}

func TestNewBoostCollectors_MaxBoost(t *testing.T) {
	newTestLogger()
	src := initializeSourceMock(boost.KindMax, boost.FloorUnbounded, boost.FloorUnbounded)

	collectors := NewBoostCollectors(src, ctrl.Log.WithName("test"))

	expected := `
# HELP cpu_boost_floor_khz Gauge of the minimum frequency floor installed on the cpu, in kHz; absent while unset, +Inf while pinned to the policy maximum
# TYPE cpu_boost_floor_khz gauge
cpu_boost_floor_khz{cpu="0"} +Inf
cpu_boost_floor_khz{cpu="1"} +Inf
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[0], strings.NewReader(expected)))

	expected = `
# HELP cpu_boost_episode_started_total Counter of boost episodes applied
# TYPE cpu_boost_episode_started_total counter
cpu_boost_episode_started_total{kind="max"} 4
cpu_boost_episode_started_total{kind="ordinary"} 3
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[3], strings.NewReader(expected)))
}

func TestNewBoostCollectors_Registration(t *testing.T) {
	newTestLogger()
	src := initializeSourceMock(boost.KindNone, boost.FloorUnset)

	registry := prom.NewPedanticRegistry()
	registry.MustRegister(NewBoostCollectors(src, ctrl.Log.WithName("test"))...)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.ElementsMatch(t, []string{
		"cpu_boost_episode_active",
		"cpu_boost_bias_active",
		"cpu_boost_episode_started_total",
		"cpu_boost_episode_removed_total",
		"cpu_boost_trigger_total",
	}, names, "floor family is empty while every floor is unset")
}

func TestNewPolicyCollectors(t *testing.T) {
	newTestLogger()
	minFreq := func(cpu int) (uint64, error) {
		if cpu == 1 {
			return 0, os.ErrNotExist
		}
		return 1113600, nil
	}
	curFreq := func(cpu int) (uint64, error) {
		return 2400000 + uint64(cpu)*100000, nil
	}

	collectors := NewPolicyCollectors(2, minFreq, curFreq, ctrl.Log.WithName("test"))
	require.Len(t, collectors, 2)

	expected := `
# HELP cpu_boost_policy_min_khz Gauge of the cpufreq policy minimum in force on the cpu, in kHz
# TYPE cpu_boost_policy_min_khz gauge
cpu_boost_policy_min_khz{cpu="0"} 1.1136e+06
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[0], strings.NewReader(expected)))

	expected = `
# HELP cpu_boost_policy_cur_khz Gauge of the current cpu frequency reported by the cpufreq driver, in kHz
# TYPE cpu_boost_policy_cur_khz gauge
cpu_boost_policy_cur_khz{cpu="0"} 2.4e+06
cpu_boost_policy_cur_khz{cpu="1"} 2.5e+06
`
	assert.NoError(t, promtestutil.CollectAndCompare(collectors[1], strings.NewReader(expected)))
}
