// Package native provides a staging backend on top of gogpu/wgpu HAL.
//
// Staging memory is a host-visible buffer (one per slice for array
// surfaces, one for volume surfaces) with rows aligned to the 256 byte copy
// pitch. Uploads are recorded as buffer-to-texture copies and submitted on
// the device queue.
//
// Importing the package registers it as texstage.BackendNative; the
// factory opens the best HAL backend available on this machine. HAL
// backends register themselves when imported, for example with
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texstage"
)

// RowAlignment is the bytes-per-row alignment of buffer-to-texture copies.
const RowAlignment = 256

func init() {
	texstage.RegisterBackend(texstage.BackendNative, func() texstage.Backend {
		b, err := Open()
		if err != nil {
			texstage.Logger().Debug("native: backend unavailable", "err", err)
			return nil
		}
		return b
	})
}

// Backend creates staging buffers on a HAL device.
type Backend struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue

	// Set when Open created the device; Close destroys them.
	instance hal.Instance
	owned    bool
	adapter  string
}

// New creates a backend over an existing device and queue. The caller
// keeps ownership of both.
func New(device hal.Device, queue hal.Queue) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHALDevice
	}
	return &Backend{device: device, queue: queue}, nil
}

// FromProvider shares the device of a gpucontext provider (for example a
// gogpu window). The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return New(device, queue)
}

// Open creates a standalone device on the best HAL backend, preferring
// discrete and integrated GPUs. Close releases it.
func Open() (*Backend, error) {
	backend, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	texstage.Logger().Info("native: device opened",
		"backend", backend.Variant(), "adapter", selected.Info.Name)
	return &Backend{
		device:   open.Device,
		queue:    open.Queue,
		instance: instance,
		owned:    true,
		adapter:  selected.Info.Name,
	}, nil
}

// Name returns "native".
func (b *Backend) Name() string { return texstage.BackendNative }

// Device returns the HAL device, for creating destination textures.
func (b *Backend) Device() hal.Device { return b.device }

// Queue returns the HAL queue.
func (b *Backend) Queue() hal.Queue { return b.queue }

// Adapter returns the adapter name of a device created by Open.
func (b *Backend) Adapter() string { return b.adapter }

// Drain blocks until the device finished all submitted work. It is meant
// as the drain function of a texstage.FrameTracker.
func (b *Backend) Drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return ErrNilHALDevice
	}
	return b.device.WaitIdle()
}

// Completed returns the highest submission index the GPU finished.
func (b *Backend) Completed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue == nil {
		return 0
	}
	return b.queue.PollCompleted()
}

// Close releases a device created by Open. Backends over borrowed devices
// only drop their references.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owned && b.device != nil {
		if err := b.device.WaitIdle(); err != nil {
			texstage.Logger().Warn("native: wait idle on close", "err", err)
		}
		b.device.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
	}
	b.device, b.queue, b.instance = nil, nil, nil
}

// CreateStaging creates host-visible staging buffers for desc.
func (b *Backend) CreateStaging(desc *texstage.StagingDescriptor) (texstage.StagingResource, error) {
	info, ok := texstage.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", texstage.ErrUnsupportedFormat, desc.Format)
	}
	b.mu.Lock()
	device, queue := b.device, b.queue
	b.mu.Unlock()
	if device == nil {
		return nil, ErrNilHALDevice
	}

	slices := max(desc.DepthOrSlices, 1)
	bpr := (info.RowBytes(desc.Width) + RowAlignment - 1) / RowAlignment * RowAlignment
	bpi := bpr * info.Rows(desc.Height)

	s := &staging{
		device:        device,
		queue:         queue,
		label:         desc.Label,
		kind:          desc.Kind,
		info:          info,
		bytesPerRow:   bpr,
		bytesPerImage: bpi,
		slices:        slices,
	}
	n, size := slices, uint64(bpi)
	if desc.Kind == texstage.KindVolume {
		n, size = 1, uint64(bpi)*uint64(slices)
	}
	for i := uint32(0); i < n; i++ {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s/%d", desc.Label, i),
			Size:  size,
			Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		})
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("native: create staging buffer %d: %w", i, err)
		}
		s.buffers = append(s.buffers, buf)
		s.size += size
	}
	s.mapped = make([]bool, n)
	return s, nil
}
