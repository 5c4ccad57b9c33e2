package texstage

import (
	"errors"
	"slices"

	"github.com/gogpu/gpucontext"
)

// Registered backend names.
const (
	BackendNative   = "native"
	BackendWebGPU   = "webgpu"
	BackendSoftware = "software"
)

// ErrBackendNotAvailable is returned when no registered backend could be
// created.
var ErrBackendNotAvailable = errors.New("texstage: no backend available")

// backendPriority is the selection order of DefaultBackend; hardware
// backends first, the CPU backend last.
var backendPriority = []string{BackendNative, BackendWebGPU, BackendSoftware}

var backends = gpucontext.NewRegistry[Backend](gpucontext.WithPriority(backendPriority...))

// RegisterBackend registers a backend factory under name, replacing any
// previous one. Backend packages call it from init. A factory may return
// nil when the backend cannot run on this machine.
func RegisterBackend(name string, factory func() Backend) {
	backends.Register(name, factory)
}

// UnregisterBackend removes a backend. This is useful for testing.
func UnregisterBackend(name string) {
	backends.Unregister(name)
}

// AvailableBackends returns the registered backend names, sorted.
func AvailableBackends() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

// NewBackend creates the backend registered under name, or returns nil.
func NewBackend(name string) Backend {
	if !backends.Has(name) {
		return nil
	}
	return backends.Get(name)
}

// DefaultBackend creates the highest-priority backend whose factory
// succeeds.
func DefaultBackend() (Backend, error) {
	tried := make(map[string]bool)
	for _, name := range slices.Concat(backendPriority, AvailableBackends()) {
		if tried[name] {
			continue
		}
		tried[name] = true
		if b := NewBackend(name); b != nil {
			Logger().Info("texstage: backend selected", "backend", name)
			return b, nil
		}
	}
	return nil, ErrBackendNotAvailable
}
