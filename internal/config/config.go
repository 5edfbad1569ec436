package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/karpenter/pkg/utils/env"
	"sigs.k8s.io/yaml"

	"github.com/AMDEPYC/cpu-boost/internal/boost"
	"github.com/AMDEPYC/cpu-boost/internal/input"
)

const (
	configPathEnvVarName    = "CPU_BOOST_CONFIG"
	listenAddressEnvVarName = "CPU_BOOST_LISTEN_ADDRESS"
	inputPathEnvVarName     = "CPU_BOOST_INPUT_PATH"

	DefaultListenAddress  = "127.0.0.1:10003"
	DefaultResyncInterval = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Options is the node agent configuration. Every value is fixed once the
// agent has started.
type Options struct {
	// LowCoreFloorKHz applies to the first LowCoreCount cpus during an ordinary boost.
	LowCoreFloorKHz uint64 `json:"lowCoreFloorKHz,omitempty"`
	// HighCoreFloorKHz applies to every other cpu during an ordinary boost.
	HighCoreFloorKHz uint64 `json:"highCoreFloorKHz,omitempty"`
	LowCoreCount     int    `json:"lowCoreCount,omitempty"`

	BoostDuration     metav1.Duration `json:"boostDuration,omitempty"`
	KickRecencyWindow metav1.Duration `json:"kickRecencyWindow,omitempty"`

	// InputPath is the directory holding evdev nodes. Empty disables input boosting.
	InputPath string `json:"inputPath,omitempty"`
	// ListenAddress serves the control API and metrics.
	ListenAddress string `json:"listenAddress,omitempty"`
	// ResyncInterval is how often cpus returning online are refreshed.
	ResyncInterval metav1.Duration `json:"resyncInterval,omitempty"`
}

func Default() *Options {
	return &Options{
		LowCoreFloorKHz:   uint64(boost.DefaultLowCoreFloor),
		HighCoreFloorKHz:  uint64(boost.DefaultHighCoreFloor),
		LowCoreCount:      boost.DefaultLowCoreCount,
		BoostDuration:     metav1.Duration{Duration: boost.DefaultBoostDuration},
		KickRecencyWindow: metav1.Duration{Duration: boost.DefaultKickRecencyWindow},
		InputPath:         env.WithDefaultString(inputPathEnvVarName, input.DefaultDevicePath),
		ListenAddress:     env.WithDefaultString(listenAddressEnvVarName, DefaultListenAddress),
		ResyncInterval:    metav1.Duration{Duration: DefaultResyncInterval},
	}
}

// DefaultPath is the configuration file used when none is given on the command line.
func DefaultPath() string {
	return env.WithDefaultString(configPathEnvVarName, "")
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return opts, nil
}

// BindFlags registers command line overrides for every option.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.Uint64Var(&o.LowCoreFloorKHz, "low-core-floor", o.LowCoreFloorKHz, "Minimum frequency in kHz for the low cpus during an ordinary boost.")
	fs.Uint64Var(&o.HighCoreFloorKHz, "high-core-floor", o.HighCoreFloorKHz, "Minimum frequency in kHz for the remaining cpus during an ordinary boost.")
	fs.IntVar(&o.LowCoreCount, "low-core-count", o.LowCoreCount, "Number of cpus, by id, using the low core floor.")
	fs.DurationVar(&o.BoostDuration.Duration, "boost-duration", o.BoostDuration.Duration, "Duration of an ordinary boost.")
	fs.DurationVar(&o.KickRecencyWindow.Duration, "kick-recency-window", o.KickRecencyWindow.Duration, "Maximum age of the last input event for a kick to be accepted.")
	fs.StringVar(&o.InputPath, "input-path", o.InputPath, "Directory of evdev input devices, empty to disable input boosting.")
	fs.StringVar(&o.ListenAddress, "listen-address", o.ListenAddress, "Address serving the control API and metrics.")
	fs.DurationVar(&o.ResyncInterval.Duration, "resync-interval", o.ResyncInterval.Duration, "Interval for refreshing cpus that came back online.")
}

// Override copies onto o every option flag explicitly set in changed, so
// that the command line wins over the configuration file.
func (o *Options) Override(changed *pflag.FlagSet) error {
	fs := pflag.NewFlagSet("override", pflag.ContinueOnError)
	o.BindFlags(fs)

	var errs error
	changed.Visit(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil {
			return
		}
		errs = multierr.Append(errs, fs.Set(f.Name, f.Value.String()))
	})
	return errs
}

func (o *Options) Validate() error {
	switch {
	case o.LowCoreFloorKHz == 0:
		return fmt.Errorf("%w: lowCoreFloorKHz must be positive", ErrInvalidConfig)
	case o.HighCoreFloorKHz == 0:
		return fmt.Errorf("%w: highCoreFloorKHz must be positive", ErrInvalidConfig)
	case o.LowCoreCount < 0:
		return fmt.Errorf("%w: lowCoreCount cannot be negative", ErrInvalidConfig)
	case o.BoostDuration.Duration <= 0:
		return fmt.Errorf("%w: boostDuration must be positive", ErrInvalidConfig)
	case o.KickRecencyWindow.Duration <= 0:
		return fmt.Errorf("%w: kickRecencyWindow must be positive", ErrInvalidConfig)
	case o.ResyncInterval.Duration <= 0:
		return fmt.Errorf("%w: resyncInterval must be positive", ErrInvalidConfig)
	case o.ListenAddress == "":
		return fmt.Errorf("%w: listenAddress is required", ErrInvalidConfig)
	}
	return nil
}

// BoostOpts converts the options for a controller managing numCores cpus.
func (o *Options) BoostOpts(numCores int) boost.BoostOpts {
	return boost.BoostOpts{
		LowCoreFloor:      boost.Floor(o.LowCoreFloorKHz),
		HighCoreFloor:     boost.Floor(o.HighCoreFloorKHz),
		LowCoreCount:      o.LowCoreCount,
		BoostDuration:     o.BoostDuration.Duration,
		KickRecencyWindow: o.KickRecencyWindow.Duration,
		NumCores:          numCores,
	}
}
