package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture is a GPU texture that staging buffers can upload into.
//
// Texture wraps a hal.Texture together with the descriptor it was created
// from, which the upload path needs for validation.
//
// Thread Safety:
// Texture is safe for concurrent read access. Destroy should only be
// called once, when no upload into the texture is in flight.
type Texture struct {
	// mu protects mutable state.
	mu sync.RWMutex

	// halTexture is the underlying texture handle.
	halTexture hal.Texture

	// device is the parent device; nil for wrapped textures the caller
	// keeps ownership of.
	device hal.Device

	// descriptor holds the texture configuration (immutable after creation).
	descriptor TextureDescriptor

	destroyed bool
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the texture dimensions.
	Size hal.Extent3D

	// MipLevelCount is the number of mip levels (1+ required).
	MipLevelCount uint32

	// SampleCount is the number of samples per pixel (1 for non-MSAA).
	SampleCount uint32

	// Dimension is the texture dimension (1D, 2D, 3D).
	Dimension gputypes.TextureDimension

	// Format is the texture pixel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used. CopyDst is always
	// added.
	Usage gputypes.TextureUsage
}

// normalized fills in defaults.
func (d TextureDescriptor) normalized() TextureDescriptor {
	d.MipLevelCount = max(d.MipLevelCount, 1)
	d.SampleCount = max(d.SampleCount, 1)
	d.Size.DepthOrArrayLayers = max(d.Size.DepthOrArrayLayers, 1)
	if d.Dimension == gputypes.TextureDimensionUndefined {
		d.Dimension = gputypes.TextureDimension2D
	}
	d.Usage |= gputypes.TextureUsageCopyDst
	return d
}

// NewTexture wraps an existing texture. The caller keeps ownership of
// halTexture; Destroy does not release it.
func NewTexture(halTexture hal.Texture, desc *TextureDescriptor) *Texture {
	return &Texture{
		halTexture: halTexture,
		descriptor: desc.normalized(),
	}
}

// CreateTexture creates a texture on device. Destroy releases it.
func CreateTexture(device hal.Device, desc *TextureDescriptor) (*Texture, error) {
	if device == nil {
		return nil, ErrNilHALDevice
	}
	if desc.Size.Width == 0 || desc.Size.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, desc.Size.Width, desc.Size.Height)
	}
	d := desc.normalized()
	halTexture, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         d.Label,
		Size:          d.Size,
		MipLevelCount: d.MipLevelCount,
		SampleCount:   d.SampleCount,
		Dimension:     d.Dimension,
		Format:        d.Format,
		Usage:         d.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", d.Label, err)
	}
	return &Texture{halTexture: halTexture, device: device, descriptor: d}, nil
}

// Label returns the texture's debug label.
func (t *Texture) Label() string {
	return t.descriptor.Label
}

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 {
	return t.descriptor.Size.Width
}

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 {
	return t.descriptor.Size.Height
}

// DepthOrArrayLayers returns the texture depth or array layer count.
func (t *Texture) DepthOrArrayLayers() uint32 {
	return t.descriptor.Size.DepthOrArrayLayers
}

// MipLevelCount returns the number of mip levels.
func (t *Texture) MipLevelCount() uint32 {
	return t.descriptor.MipLevelCount
}

// SampleCount returns the number of samples per pixel.
func (t *Texture) SampleCount() uint32 {
	return t.descriptor.SampleCount
}

// Dimension returns the texture dimension (1D, 2D, 3D).
func (t *Texture) Dimension() gputypes.TextureDimension {
	return t.descriptor.Dimension
}

// Format returns the texture pixel format.
func (t *Texture) Format() gputypes.TextureFormat {
	return t.descriptor.Format
}

// IsDestroyed returns true if the texture has been destroyed.
func (t *Texture) IsDestroyed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.destroyed
}

// Raw returns the underlying texture handle.
//
// Returns nil if the texture has been destroyed.
func (t *Texture) Raw() hal.Texture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return nil
	}
	return t.halTexture
}

// Destroy releases a texture created by CreateTexture. Wrapped textures
// are only marked destroyed.
func (t *Texture) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true
	if t.device != nil && t.halTexture != nil {
		t.device.DestroyTexture(t.halTexture)
	}
	t.halTexture = nil
}
