package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage"
)

// TextureDescriptor describes a CPU texture to create.
type TextureDescriptor struct {
	// Label is an optional debug name.
	Label string

	Width  uint32
	Height uint32
	// DepthOrArrayLayers is the depth of 3D textures and the layer count of
	// every other dimension.
	DepthOrArrayLayers uint32

	// MipLevelCount is the number of mip levels (1+ required).
	MipLevelCount uint32

	// SampleCount is the number of samples per pixel (1 for non-MSAA).
	SampleCount uint32

	Dimension gputypes.TextureDimension
	Format    gputypes.TextureFormat

	// KeepSysRAM keeps a second CPU copy of every mip, refreshed by uploads
	// that supply a CPU source box.
	KeepSysRAM bool
}

// Texture is a destination texture stored in CPU memory. Mip levels are
// stored tightly packed, one image per depth plane or array layer.
type Texture struct {
	desc   TextureDescriptor
	info   texstage.FormatInfo
	mips   []mipLevel
	sysRAM [][]byte
}

type mipLevel struct {
	width, height, images uint32
	bytesPerRow           uint32
	bytesPerImage         uint32
	data                  []byte
}

// NewTexture allocates a zeroed texture.
func NewTexture(desc *TextureDescriptor) (*Texture, error) {
	info, ok := texstage.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", texstage.ErrUnsupportedFormat, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, desc.Width, desc.Height)
	}
	d := *desc
	d.DepthOrArrayLayers = max(d.DepthOrArrayLayers, 1)
	d.MipLevelCount = max(d.MipLevelCount, 1)
	d.SampleCount = max(d.SampleCount, 1)
	if d.Dimension == gputypes.TextureDimensionUndefined {
		d.Dimension = gputypes.TextureDimension2D
	}

	t := &Texture{desc: d, info: info}
	for mip := uint32(0); mip < d.MipLevelCount; mip++ {
		w := max(d.Width>>mip, 1)
		h := max(d.Height>>mip, 1)
		images := d.DepthOrArrayLayers
		if d.Dimension == gputypes.TextureDimension3D {
			images = max(d.DepthOrArrayLayers>>mip, 1)
		}
		bpr := info.RowBytes(w)
		bpi := bpr * info.Rows(h)
		t.mips = append(t.mips, mipLevel{
			width: w, height: h, images: images,
			bytesPerRow: bpr, bytesPerImage: bpi,
			data: make([]byte, uint64(bpi)*uint64(images)),
		})
		if d.KeepSysRAM {
			t.sysRAM = append(t.sysRAM, make([]byte, uint64(bpi)*uint64(images)))
		}
	}
	return t, nil
}

// Label returns the debug label.
func (t *Texture) Label() string { return t.desc.Label }

func (t *Texture) Width() uint32                        { return t.desc.Width }
func (t *Texture) Height() uint32                       { return t.desc.Height }
func (t *Texture) DepthOrArrayLayers() uint32           { return t.desc.DepthOrArrayLayers }
func (t *Texture) MipLevelCount() uint32                { return t.desc.MipLevelCount }
func (t *Texture) SampleCount() uint32                  { return t.desc.SampleCount }
func (t *Texture) Format() gputypes.TextureFormat       { return t.desc.Format }
func (t *Texture) Dimension() gputypes.TextureDimension { return t.desc.Dimension }

// Pixels returns a box viewing every image of a mip level, or an empty box
// when mip does not exist.
func (t *Texture) Pixels(mip uint32) texstage.TextureBox {
	if mip >= uint32(len(t.mips)) {
		return texstage.TextureBox{}
	}
	return t.view(t.mips[mip], t.mips[mip].data)
}

// SysRAMCopy returns the system RAM copy of a mip level, or an empty box
// when the texture keeps none.
func (t *Texture) SysRAMCopy(mip uint32) texstage.TextureBox {
	if mip >= uint32(len(t.sysRAM)) {
		return texstage.TextureBox{}
	}
	return t.view(t.mips[mip], t.sysRAM[mip])
}

func (t *Texture) view(m mipLevel, data []byte) texstage.TextureBox {
	depth, slices := uint32(1), m.images
	if t.desc.Dimension == gputypes.TextureDimension3D {
		depth, slices = m.images, 1
	}
	return texstage.NewTextureBox(data, m.width, m.height, depth, slices,
		t.desc.Format, m.bytesPerRow, m.bytesPerImage)
}

// write copies rows of block data into image z of a mip level, clipping to
// the physical (block rounded) mip extent.
func (t *Texture) write(mip, x, y, z uint32, src []byte, srcBytesPerRow, width, height uint32) error {
	if mip >= uint32(len(t.mips)) {
		return fmt.Errorf("%w: mip %d", texstage.ErrMipOutOfRange, mip)
	}
	m := t.mips[mip]
	if z >= m.images {
		return fmt.Errorf("%w: image %d of %d", texstage.ErrBoxOutOfBounds, z, m.images)
	}
	physW := m.bytesPerRow / t.info.BytesPerBlock * t.info.BlockWidth
	physH := t.info.Rows(m.height) * t.info.BlockHeight
	if x >= physW || y >= physH {
		return fmt.Errorf("%w: origin (%d,%d)", texstage.ErrBoxOutOfBounds, x, y)
	}
	width = min(width, physW-x)
	height = min(height, physH-y)

	rowBytes := uint64(t.info.RowBytes(width))
	rows := t.info.Rows(height)
	base := uint64(z)*uint64(m.bytesPerImage) +
		uint64(y/t.info.BlockHeight)*uint64(m.bytesPerRow) +
		uint64(x/t.info.BlockWidth)*uint64(t.info.BytesPerBlock)
	for r := uint32(0); r < rows; r++ {
		so := uint64(r) * uint64(srcBytesPerRow)
		do := base + uint64(r)*uint64(m.bytesPerRow)
		copy(m.data[do:do+rowBytes], src[so:so+rowBytes])
	}
	return nil
}
