package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	DefaultDevicePath = "/dev/input"
	devicePrefix      = "event"
)

// Func definitions for unit testing
var (
	getCapabilitiesFunction = readCapabilities
)

// EventSink receives the time of every qualifying input event.
type EventSink interface {
	OnInputEvent(ts time.Time)
}

// Listener reads every evdev node under a directory and follows devices
// being connected and disconnected.
type Listener struct {
	dir    string
	sink   EventSink
	clock  clock.PassiveClock
	logger logr.Logger

	watcher *fsnotify.Watcher

	mutex     sync.Mutex
	devices   map[string]*device
	waitGroup sync.WaitGroup
}

func NewListener(dir string, sink EventSink, clk clock.PassiveClock) (*Listener, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create input device watcher: %w", err)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Listener{
		dir:     dir,
		sink:    sink,
		clock:   clk,
		logger:  ctrl.Log.WithName("InputListener"),
		watcher: watcher,
		devices: make(map[string]*device),
	}, nil
}

// Start connects the devices already present and then follows hotplug
// events until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	defer l.shutdown()

	if err := l.watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch path %s: %w", l.dir, err)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to list input devices in %s: %w", l.dir, err)
	}
	for _, entry := range entries {
		l.connect(filepath.Join(l.dir, entry.Name()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-l.watcher.Events:
			if !ok {
				return nil
			}
			l.handleWatchEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error(err, "input device watcher error")
		}
	}
}

func (l *Listener) handleWatchEvent(event fsnotify.Event) {
	l.logger.V(5).Info("input device event", "path", event.Name, "op", event.Op.String())

	switch {
	case event.Has(fsnotify.Create):
		l.connect(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		l.disconnect(event.Name)
	}
}

func (l *Listener) connect(path string) {
	if !strings.HasPrefix(filepath.Base(path), devicePrefix) {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, found := l.devices[path]; found {
		return
	}

	dev, err := openDevice(path)
	if err != nil {
		l.logger.Error(err, "failed to connect input device")
		return
	}

	caps, err := getCapabilitiesFunction(dev.file)
	if err != nil {
		l.logger.Error(err, "failed to connect input device")
		_ = dev.close()
		return
	}
	class := caps.class()
	if class == "" {
		l.logger.V(4).Info("ignoring input device", "path", path)
		_ = dev.close()
		return
	}

	l.devices[path] = dev
	l.logger.V(4).Info("input device connected", "path", path, "class", class)

	l.waitGroup.Add(1)
	go l.readDevice(dev)
}

func (l *Listener) disconnect(path string) {
	l.mutex.Lock()
	dev, found := l.devices[path]
	delete(l.devices, path)
	l.mutex.Unlock()

	if found {
		_ = dev.close()
		l.logger.V(4).Info("input device disconnected", "path", path)
	}
}

func (l *Listener) readDevice(dev *device) {
	defer l.waitGroup.Done()

	err := dev.run(func(ev Event) {
		if ev.qualifies() {
			l.sink.OnInputEvent(l.clock.Now())
		}
	})
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		l.logger.Error(err, "input device read failed", "path", dev.path)
	}

	l.mutex.Lock()
	if l.devices[dev.path] == dev {
		delete(l.devices, dev.path)
	}
	l.mutex.Unlock()
	_ = dev.close()
}

// ConnectedDevices returns the paths of the devices currently read.
func (l *Listener) ConnectedDevices() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	paths := make([]string, 0, len(l.devices))
	for path := range l.devices {
		paths = append(paths, path)
	}
	return paths
}

func (l *Listener) shutdown() {
	l.mutex.Lock()
	devices := l.devices
	l.devices = make(map[string]*device)
	l.mutex.Unlock()

	for _, dev := range devices {
		_ = dev.close()
	}
	_ = l.watcher.Close()
	l.waitGroup.Wait()
}
