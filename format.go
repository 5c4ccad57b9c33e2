package texstage

import (
	"github.com/gogpu/gputypes"
)

// FormatInfo describes the memory footprint of a pixel format.
type FormatInfo struct {
	// BlockWidth and BlockHeight are the texel footprint of one block;
	// 1x1 for uncompressed formats.
	BlockWidth  uint32
	BlockHeight uint32

	// BytesPerBlock is the size of one block (one texel when uncompressed).
	BytesPerBlock uint32

	// Family is the representative format of the copy-compatible group this
	// format belongs to. Formats of one family share block shape, block size
	// and channel layout, and may share a staging surface.
	Family gputypes.TextureFormat
}

// Compressed reports whether the format is addressed in multi-texel blocks.
func (fi FormatInfo) Compressed() bool {
	return fi.BlockWidth > 1 || fi.BlockHeight > 1
}

// RowBytes returns the bytes of one row of blocks covering width texels.
func (fi FormatInfo) RowBytes(width uint32) uint32 {
	return divCeil(width, fi.BlockWidth) * fi.BytesPerBlock
}

// Rows returns the number of block rows covering height texels.
func (fi FormatInfo) Rows(height uint32) uint32 {
	return divCeil(height, fi.BlockHeight)
}

func divCeil(v, d uint32) uint32 {
	if d <= 1 {
		return v
	}
	return (v + d - 1) / d
}

// alignUp rounds v up to a multiple of a. The result may exceed
// math.MaxUint32.
func alignUp(v, a uint32) uint64 {
	if a <= 1 {
		return uint64(v)
	}
	return (uint64(v) + uint64(a) - 1) / uint64(a) * uint64(a)
}

var formats = map[gputypes.TextureFormat]FormatInfo{}

func plain(bytes uint32, family gputypes.TextureFormat, members ...gputypes.TextureFormat) {
	for _, f := range append(members, family) {
		formats[f] = FormatInfo{BlockWidth: 1, BlockHeight: 1, BytesPerBlock: bytes, Family: family}
	}
}

func block(w, h, bytes uint32, family gputypes.TextureFormat, members ...gputypes.TextureFormat) {
	for _, f := range append(members, family) {
		formats[f] = FormatInfo{BlockWidth: w, BlockHeight: h, BytesPerBlock: bytes, Family: family}
	}
}

func init() {
	// 8 bit
	plain(1, gputypes.TextureFormatR8Unorm,
		gputypes.TextureFormatR8Snorm, gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint)
	plain(1, gputypes.TextureFormatStencil8)

	// 16 bit
	plain(2, gputypes.TextureFormatR16Unorm,
		gputypes.TextureFormatR16Snorm, gputypes.TextureFormatR16Uint,
		gputypes.TextureFormatR16Sint, gputypes.TextureFormatR16Float)
	plain(2, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint)
	plain(2, gputypes.TextureFormatDepth16Unorm)

	// 32 bit
	plain(4, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint)
	plain(4, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRG16Uint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float)
	plain(4, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatRGBA8UnormSrgb, gputypes.TextureFormatRGBA8Snorm,
		gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint)
	plain(4, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb)
	plain(4, gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRGB10A2Uint)
	plain(4, gputypes.TextureFormatRG11B10Ufloat)
	plain(4, gputypes.TextureFormatRGB9E5Ufloat)
	plain(4, gputypes.TextureFormatDepth32Float)
	plain(4, gputypes.TextureFormatDepth24Plus)
	plain(4, gputypes.TextureFormatDepth24PlusStencil8)

	// 64 bit
	plain(8, gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRG32Sint)
	plain(8, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float)
	plain(8, gputypes.TextureFormatDepth32FloatStencil8)

	// 128 bit
	plain(16, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureFormatRGBA32Uint, gputypes.TextureFormatRGBA32Sint)

	// BC
	block(4, 4, 8, gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb)
	block(4, 4, 16, gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC2RGBAUnormSrgb)
	block(4, 4, 16, gputypes.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnormSrgb)
	block(4, 4, 8, gputypes.TextureFormatBC4RUnorm, gputypes.TextureFormatBC4RSnorm)
	block(4, 4, 16, gputypes.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGSnorm)
	block(4, 4, 16, gputypes.TextureFormatBC6HRGBUfloat, gputypes.TextureFormatBC6HRGBFloat)
	block(4, 4, 16, gputypes.TextureFormatBC7RGBAUnorm, gputypes.TextureFormatBC7RGBAUnormSrgb)

	// ETC2 / EAC
	block(4, 4, 8, gputypes.TextureFormatETC2RGB8Unorm, gputypes.TextureFormatETC2RGB8UnormSrgb)
	block(4, 4, 8, gputypes.TextureFormatETC2RGB8A1Unorm, gputypes.TextureFormatETC2RGB8A1UnormSrgb)
	block(4, 4, 16, gputypes.TextureFormatETC2RGBA8Unorm, gputypes.TextureFormatETC2RGBA8UnormSrgb)
	block(4, 4, 8, gputypes.TextureFormatEACR11Unorm, gputypes.TextureFormatEACR11Snorm)
	block(4, 4, 16, gputypes.TextureFormatEACRG11Unorm, gputypes.TextureFormatEACRG11Snorm)

	// ASTC: always 16 bytes per block.
	block(4, 4, 16, gputypes.TextureFormatASTC4x4Unorm, gputypes.TextureFormatASTC4x4UnormSrgb)
	block(5, 4, 16, gputypes.TextureFormatASTC5x4Unorm, gputypes.TextureFormatASTC5x4UnormSrgb)
	block(5, 5, 16, gputypes.TextureFormatASTC5x5Unorm, gputypes.TextureFormatASTC5x5UnormSrgb)
	block(6, 5, 16, gputypes.TextureFormatASTC6x5Unorm, gputypes.TextureFormatASTC6x5UnormSrgb)
	block(6, 6, 16, gputypes.TextureFormatASTC6x6Unorm, gputypes.TextureFormatASTC6x6UnormSrgb)
	block(8, 5, 16, gputypes.TextureFormatASTC8x5Unorm, gputypes.TextureFormatASTC8x5UnormSrgb)
	block(8, 6, 16, gputypes.TextureFormatASTC8x6Unorm, gputypes.TextureFormatASTC8x6UnormSrgb)
	block(8, 8, 16, gputypes.TextureFormatASTC8x8Unorm, gputypes.TextureFormatASTC8x8UnormSrgb)
	block(10, 5, 16, gputypes.TextureFormatASTC10x5Unorm, gputypes.TextureFormatASTC10x5UnormSrgb)
	block(10, 6, 16, gputypes.TextureFormatASTC10x6Unorm, gputypes.TextureFormatASTC10x6UnormSrgb)
	block(10, 8, 16, gputypes.TextureFormatASTC10x8Unorm, gputypes.TextureFormatASTC10x8UnormSrgb)
	block(10, 10, 16, gputypes.TextureFormatASTC10x10Unorm, gputypes.TextureFormatASTC10x10UnormSrgb)
	block(12, 10, 16, gputypes.TextureFormatASTC12x10Unorm, gputypes.TextureFormatASTC12x10UnormSrgb)
	block(12, 12, 16, gputypes.TextureFormatASTC12x12Unorm, gputypes.TextureFormatASTC12x12UnormSrgb)
}

// LookupFormat returns the footprint of f, or false when f is not a
// format that can be staged.
func LookupFormat(f gputypes.TextureFormat) (FormatInfo, bool) {
	fi, ok := formats[f]
	return fi, ok
}

// Family returns the copy-compatible family of f, or
// TextureFormatUndefined for unknown formats.
func Family(f gputypes.TextureFormat) gputypes.TextureFormat {
	return formats[f].Family
}

// BytesPerPixel returns the size of one texel, or 0 for block-compressed
// and unknown formats.
func BytesPerPixel(f gputypes.TextureFormat) uint32 {
	fi, ok := formats[f]
	if !ok || fi.Compressed() {
		return 0
	}
	return fi.BytesPerBlock
}

// IsCompressed reports whether f is a block-compressed format.
func IsCompressed(f gputypes.TextureFormat) bool {
	return formats[f].Compressed()
}

// SizeBytes returns the bytes needed to hold a width x height x depth x
// slices region of format f, padding every row to rowAlignment bytes.
// Unknown formats report 0.
func SizeBytes(width, height, depth, slices uint32, f gputypes.TextureFormat, rowAlignment uint32) uint64 {
	fi, ok := formats[f]
	if !ok {
		return 0
	}
	rowBytes := alignUp(fi.RowBytes(width), rowAlignment)
	return rowBytes * uint64(fi.Rows(height)) * uint64(max(depth, 1)) * uint64(max(slices, 1))
}
