// Package webgpu provides a staging backend on top of wgpu-native through
// cogentcore/webgpu.
//
// Staging memory lives on the Go heap with rows padded to 256 bytes.
// Submit hands every recorded copy to Queue.WriteTexture, which copies the
// bytes before returning, so staging memory is free for reuse as soon as
// Submit returns.
//
// Importing the package registers it as texstage.BackendWebGPU.
package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gogpu/texstage"
)

// RowAlignment is the bytes-per-row padding of staging memory.
const RowAlignment = 256

// Package errors for the webgpu backend.
var (
	// ErrNoDevice is returned when a backend has no device or queue.
	ErrNoDevice = errors.New("webgpu: no device")

	// ErrForeignTexture is returned when copying into a texture that was not
	// created by this package.
	ErrForeignTexture = errors.New("webgpu: destination is not a webgpu texture")

	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("webgpu: texture has been released")

	// ErrInvalidSlice is returned for slices outside the staging memory.
	ErrInvalidSlice = errors.New("webgpu: slice out of range")

	// ErrStagingDestroyed is returned when using destroyed staging memory.
	ErrStagingDestroyed = errors.New("webgpu: staging memory destroyed")

	// ErrAlreadyMapped is returned when mapping a slice twice.
	ErrAlreadyMapped = errors.New("webgpu: slice already mapped")
)

func init() {
	texstage.RegisterBackend(texstage.BackendWebGPU, func() texstage.Backend {
		b, err := Open()
		if err != nil {
			texstage.Logger().Debug("webgpu: backend unavailable", "err", err)
			return nil
		}
		return b
	})
}

// textureWriter is the part of *wgpu.Queue the backend uses.
type textureWriter interface {
	WriteTexture(dst *wgpu.ImageCopyTexture, data []byte, layout *wgpu.TextureDataLayout, size *wgpu.Extent3D) error
}

// Backend creates staging memory for a wgpu device.
type Backend struct {
	mu     sync.Mutex
	device *wgpu.Device
	queue  textureWriter

	// Set when Open created the device; Close releases them.
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
}

// New creates a backend over an existing device. The caller keeps
// ownership of the device.
func New(device *wgpu.Device) (*Backend, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	return &Backend{device: device, queue: device.GetQueue()}, nil
}

// Open creates a standalone device on the default adapter. Close releases
// it.
func Open() (b *Backend, err error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, ErrNoDevice
	}
	defer func() {
		if err != nil {
			instance.Release()
		}
	}()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: request adapter: %w", ErrNoDevice, err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "texstage"})
	if err != nil {
		adapter.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrNoDevice, err)
	}
	texstage.Logger().Info("webgpu: device opened")
	return &Backend{
		device:   device,
		queue:    device.GetQueue(),
		instance: instance,
		adapter:  adapter,
	}, nil
}

// Name returns "webgpu".
func (b *Backend) Name() string { return texstage.BackendWebGPU }

// Device returns the wgpu device, for creating destination textures.
func (b *Backend) Device() *wgpu.Device { return b.device }

// Close releases a device created by Open. Backends over borrowed devices
// only drop their references.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance != nil {
		if b.device != nil {
			b.device.Release()
		}
		if b.adapter != nil {
			b.adapter.Release()
		}
		b.instance.Release()
	}
	b.device, b.queue, b.adapter, b.instance = nil, nil, nil, nil
}

// CreateStaging allocates heap staging memory for desc.
func (b *Backend) CreateStaging(desc *texstage.StagingDescriptor) (texstage.StagingResource, error) {
	info, ok := texstage.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", texstage.ErrUnsupportedFormat, desc.Format)
	}
	b.mu.Lock()
	queue := b.queue
	b.mu.Unlock()
	if queue == nil {
		return nil, ErrNoDevice
	}

	slices := max(desc.DepthOrSlices, 1)
	bpr := (info.RowBytes(desc.Width) + RowAlignment - 1) / RowAlignment * RowAlignment
	bpi := bpr * info.Rows(desc.Height)

	s := &staging{
		queue:         queue,
		label:         desc.Label,
		kind:          desc.Kind,
		info:          info,
		bytesPerRow:   bpr,
		bytesPerImage: bpi,
		slices:        slices,
		data:          make([]byte, uint64(bpi)*uint64(slices)),
	}
	n := slices
	if desc.Kind == texstage.KindVolume {
		n = 1
	}
	s.mapped = make([]bool, n)
	return s, nil
}
