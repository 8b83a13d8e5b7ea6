package device

import (
	"fmt"
	"sort"
	"sync"
)

const (
	NameWGPU = "wgpu"
	NameSoft = "soft"
)

// Factory creates a new device instance.
type Factory func() (Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first that opens wins).
	priority = []string{NameWGPU, NameSoft}
)

// Register registers a factory under name, replacing any previous one.
// Device packages call it from init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a factory. Useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered device names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open creates a device by name.
func Open(name string) (Device, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrNotAvailable, name)
	}
	d, err := f()
	if err != nil {
		return nil, fmt.Errorf("open %s device: %w", name, err)
	}
	return d, nil
}

// OpenDefault opens the first device in priority order that succeeds.
func OpenDefault() (Device, error) {
	var lastErr error = ErrNotAvailable
	for _, name := range priority {
		registryMu.RLock()
		_, ok := factories[name]
		registryMu.RUnlock()
		if !ok {
			continue
		}
		d, err := Open(name)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
