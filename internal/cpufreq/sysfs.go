package cpufreq

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/utils/cpuset"
)

const (
	cpuBasePath     = "/sys/devices/system/cpu"
	cpuFreqBasePath = "/sys/devices/system/cpu/cpu%d/cpufreq"

	scalingMinFreq = "scaling_min_freq"
	scalingMaxFreq = "scaling_max_freq"
	scalingCurFreq = "scaling_cur_freq"
	cpuinfoMinFreq = "cpuinfo_min_freq"
)

// ErrNoCores is returned when the kernel reports an empty cpu list.
var ErrNoCores = errors.New("no cpus reported")

func getCPUFreqPath(cpu int, resource string) string {
	cpuFreqPath := fmt.Sprintf(cpuFreqBasePath, cpu)
	return filepath.Join(cpuFreqPath, resource)
}

func getCPUListPath(name string) string {
	return filepath.Join(cpuBasePath, name)
}

// Func definitions for unit testing
var (
	getCPUFreqPathFunction = getCPUFreqPath
	getCPUListPathFunction = getCPUListPath
)

func readCPUList(name string) (cpuset.CPUSet, error) {
	data, err := os.ReadFile(getCPUListPathFunction(name))
	if err != nil {
		return cpuset.New(), fmt.Errorf("failed to read %s cpu list: %w", name, err)
	}

	cpus, err := cpuset.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return cpuset.New(), fmt.Errorf("failed to parse %s cpu list: %w", name, err)
	}
	if cpus.IsEmpty() {
		return cpus, fmt.Errorf("%s: %w", name, ErrNoCores)
	}

	return cpus, nil
}

// PossibleCores returns every cpu the kernel may bring online, including
// those currently offline.
func PossibleCores() (cpuset.CPUSet, error) {
	return readCPUList("possible")
}

func onlineCores() (cpuset.CPUSet, error) {
	return readCPUList("online")
}

// readFrequency returns a cpufreq attribute in kHz.
func readFrequency(cpu int, resource string) (uint64, error) {
	freqData, err := os.ReadFile(getCPUFreqPathFunction(cpu, resource))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s for CPU %d: %w", resource, cpu, err)
	}

	freq, err := strconv.ParseUint(strings.TrimSpace(string(freqData)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to convert %s for CPU %d to uint: %w", resource, cpu, err)
	}

	return freq, nil
}

// MinFrequency returns the policy minimum currently in force for cpu.
func MinFrequency(cpu int) (uint64, error) {
	return readFrequency(cpu, scalingMinFreq)
}

// CurrentFrequency returns the frequency cpu last ran at, as reported by
// the cpufreq driver.
func CurrentFrequency(cpu int) (uint64, error) {
	return readFrequency(cpu, scalingCurFreq)
}

func writeFrequency(cpu int, resource string, frequency uint64) error {
	path := getCPUFreqPathFunction(cpu, resource)
	if err := os.WriteFile(path, []byte(strconv.FormatUint(frequency, 10)), 0644); err != nil {
		return fmt.Errorf("failed to set %s for CPU %d: %w", resource, cpu, err)
	}
	return nil
}
