package texstage

import (
	"github.com/gogpu/gputypes"
)

// SurfaceKind selects how a staging surface addresses its slices.
type SurfaceKind uint8

const (
	// KindArray surfaces map every slice separately, like a 2D array
	// texture. Each slice has its own mapping.
	KindArray SurfaceKind = iota

	// KindVolume surfaces are mapped once as a single block of memory; a
	// slice is a depth plane BytesPerImage bytes after the previous one.
	KindVolume
)

// String returns the kind name.
func (k SurfaceKind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// StagingDescriptor describes the staging memory a backend must create.
type StagingDescriptor struct {
	// Label is an optional debug name.
	Label string

	Width         uint32
	Height        uint32
	DepthOrSlices uint32

	// Format is the family representative of the formats the memory holds.
	Format gputypes.TextureFormat

	Kind SurfaceKind
}

// Mapping is CPU-writable staging memory returned by StagingResource.Map.
type Mapping struct {
	// Data covers one slice for array surfaces, every depth plane for
	// volume surfaces.
	Data []byte

	BytesPerRow   uint32
	BytesPerImage uint32
}

// CopyRegion is a single-slice copy from staging memory into a texture.
type CopyRegion struct {
	// SrcSlice is the staging slice (array) or depth plane (volume).
	SrcSlice uint32
	SrcX     uint32
	SrcY     uint32

	// Width and Height are rounded up to whole blocks.
	Width  uint32
	Height uint32

	Dst      Texture
	MipLevel uint32

	DstX uint32
	DstY uint32
	// DstZ is the depth plane of a 3D destination or the array layer of any
	// other destination.
	DstZ uint32
}

// Backend creates staging memory on one graphics API.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// CreateStaging allocates staging memory for desc.
	CreateStaging(desc *StagingDescriptor) (StagingResource, error)
}

// StagingResource is the raw map, unmap and copy capability of staging
// memory. All bin-packing happens in Surface; implementations only move
// bytes.
//
// A StagingResource is used from one goroutine at a time.
type StagingResource interface {
	// Map makes a slice CPU-writable. Volume resources are mapped once with
	// slice 0.
	Map(slice uint32) (Mapping, error)

	// Unmap releases a mapping made by Map.
	Unmap(slice uint32) error

	// CopyToTexture records a copy. It may execute immediately or be
	// deferred until Submit.
	CopyToTexture(region *CopyRegion) error

	// Submit executes recorded copies. Errors reported by the device after
	// the copies were issued surface here.
	Submit() error

	// SizeBytes returns the size of the staging memory.
	SizeBytes() uint64

	// Destroy releases the staging memory.
	Destroy()
}

// Texture is an upload destination.
type Texture interface {
	Width() uint32
	Height() uint32
	// DepthOrArrayLayers is the depth of 3D textures and the layer count of
	// every other dimension.
	DepthOrArrayLayers() uint32
	MipLevelCount() uint32
	SampleCount() uint32
	Format() gputypes.TextureFormat
	Dimension() gputypes.TextureDimension
}

// SysRAMTexture is a destination texture that keeps a CPU copy of its
// contents. Upload mirrors the uploaded pixels into it unless
// SkipSysRAMCopy is given.
type SysRAMTexture interface {
	Texture

	// SysRAMCopy returns the CPU copy of a mip level, or an empty box when
	// the texture keeps none. The box spans the whole mip.
	SysRAMCopy(mip uint32) TextureBox
}

// mipBox returns the full extent of a mip level of t as a box without data.
func mipBox(t Texture, mip uint32) TextureBox {
	b := TextureBox{
		Width:     max(t.Width()>>mip, 1),
		Height:    max(t.Height()>>mip, 1),
		Depth:     1,
		NumSlices: 1,
		Format:    t.Format(),
	}
	if t.Dimension() == gputypes.TextureDimension3D {
		b.Depth = max(t.DepthOrArrayLayers()>>mip, 1)
	} else {
		b.NumSlices = max(t.DepthOrArrayLayers(), 1)
	}
	return b
}
