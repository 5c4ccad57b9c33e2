package webgpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

// formats maps the formats the backend can create to wgpu formats.
var formats = map[gputypes.TextureFormat]wgpu.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatRGBA8Snorm:     wgpu.TextureFormatRGBA8Snorm,
	gputypes.TextureFormatRGBA8Uint:      wgpu.TextureFormatRGBA8Uint,
	gputypes.TextureFormatRGBA8Sint:      wgpu.TextureFormatRGBA8Sint,
	gputypes.TextureFormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatR16Uint:        wgpu.TextureFormatR16Uint,
	gputypes.TextureFormatR16Sint:        wgpu.TextureFormatR16Sint,
	gputypes.TextureFormatRGBA16Uint:     wgpu.TextureFormatRGBA16Uint,
	gputypes.TextureFormatRGBA16Sint:     wgpu.TextureFormatRGBA16Sint,
	gputypes.TextureFormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	gputypes.TextureFormatR32Float:       wgpu.TextureFormatR32Float,
	gputypes.TextureFormatR32Uint:        wgpu.TextureFormatR32Uint,
	gputypes.TextureFormatR32Sint:        wgpu.TextureFormatR32Sint,
	gputypes.TextureFormatRG32Float:      wgpu.TextureFormatRG32Float,
	gputypes.TextureFormatRG32Uint:       wgpu.TextureFormatRG32Uint,
	gputypes.TextureFormatRG32Sint:       wgpu.TextureFormatRG32Sint,
	gputypes.TextureFormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	gputypes.TextureFormatRGBA32Uint:     wgpu.TextureFormatRGBA32Uint,
	gputypes.TextureFormatRGBA32Sint:     wgpu.TextureFormatRGBA32Sint,
}

// Texture is a wgpu texture that staging memory can upload into.
type Texture struct {
	mu       sync.RWMutex
	texture  *wgpu.Texture
	desc     TextureDescriptor
	owned    bool
	released bool
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label string

	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevelCount      uint32

	// Dimension is 2D unless set to 3D.
	Dimension gputypes.TextureDimension
	Format    gputypes.TextureFormat

	// Usage is added to CopyDst.
	Usage wgpu.TextureUsage
}

func (d TextureDescriptor) normalized() TextureDescriptor {
	d.MipLevelCount = max(d.MipLevelCount, 1)
	d.DepthOrArrayLayers = max(d.DepthOrArrayLayers, 1)
	if d.Dimension != gputypes.TextureDimension3D {
		d.Dimension = gputypes.TextureDimension2D
	}
	d.Usage |= wgpu.TextureUsageCopyDst
	return d
}

// CreateTexture creates a texture on the backend's device. Release frees
// it.
func (b *Backend) CreateTexture(desc *TextureDescriptor) (*Texture, error) {
	if b.device == nil {
		return nil, ErrNoDevice
	}
	d := desc.normalized()
	format, ok := formats[d.Format]
	if !ok {
		return nil, fmt.Errorf("webgpu: texture format %v not supported", d.Format)
	}
	dim := wgpu.TextureDimension2D
	if d.Dimension == gputypes.TextureDimension3D {
		dim = wgpu.TextureDimension3D
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: d.Label,
		Size: wgpu.Extent3D{
			Width:              d.Width,
			Height:             d.Height,
			DepthOrArrayLayers: d.DepthOrArrayLayers,
		},
		MipLevelCount: d.MipLevelCount,
		SampleCount:   1,
		Dimension:     dim,
		Format:        format,
		Usage:         d.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create texture %q: %w", d.Label, err)
	}
	return &Texture{texture: tex, desc: d, owned: true}, nil
}

// WrapTexture wraps a texture created elsewhere. desc must describe it; the
// caller keeps ownership.
func WrapTexture(tex *wgpu.Texture, desc *TextureDescriptor) *Texture {
	return &Texture{texture: tex, desc: desc.normalized()}
}

func (t *Texture) Width() uint32                        { return t.desc.Width }
func (t *Texture) Height() uint32                       { return t.desc.Height }
func (t *Texture) DepthOrArrayLayers() uint32           { return t.desc.DepthOrArrayLayers }
func (t *Texture) MipLevelCount() uint32                { return t.desc.MipLevelCount }
func (t *Texture) SampleCount() uint32                  { return 1 }
func (t *Texture) Format() gputypes.TextureFormat       { return t.desc.Format }
func (t *Texture) Dimension() gputypes.TextureDimension { return t.desc.Dimension }

// Raw returns the wgpu texture, or nil once released.
func (t *Texture) Raw() *wgpu.Texture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.released {
		return nil
	}
	return t.texture
}

// IsReleased reports whether Release was called.
func (t *Texture) IsReleased() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.released
}

// Release frees a texture created by CreateTexture. Wrapped textures are
// only marked released.
func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	if t.owned && t.texture != nil {
		t.texture.Release()
	}
	t.texture = nil
}
