package texstage

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureBox describes a region of pixel data: an origin, an extent and
// the byte layout of the memory it views.
//
// Boxes returned by Surface.MapRegion view the surface's mapped staging
// memory and are only usable inside the bracket that produced them. They do
// not own memory. A box with no data is empty; MapRegion returns one when
// the surface is exhausted.
//
// Boxes are also used without data to describe destination regions (see
// WithDstBox).
type TextureBox struct {
	X, Y, Z    uint32
	SliceStart uint32

	Width, Height uint32
	Depth         uint32
	NumSlices     uint32

	// BytesPerPixel is 0 for block-compressed formats.
	BytesPerPixel uint32
	BytesPerRow   uint32
	BytesPerImage uint32

	Format gputypes.TextureFormat

	// planes holds one view per depth plane or slice, each starting at the
	// box origin.
	planes [][]byte

	owner *Surface
	gen   uint64
}

// NewTextureBox returns a box viewing data, laid out as depthOrSlices
// images of bytesPerImage bytes with rows bytesPerRow apart. The box is
// not tied to any surface; it is typically used as a CPU-side source.
//
// It returns an empty box when data is too short for the layout.
func NewTextureBox(data []byte, width, height, depth, slices uint32,
	format gputypes.TextureFormat, bytesPerRow, bytesPerImage uint32) TextureBox {
	b := TextureBox{
		Width: width, Height: height,
		Depth: max(depth, 1), NumSlices: max(slices, 1),
		BytesPerPixel: BytesPerPixel(format),
		BytesPerRow:   bytesPerRow,
		BytesPerImage: bytesPerImage,
		Format:        format,
	}
	fi, ok := LookupFormat(format)
	if !ok || bytesPerRow < fi.RowBytes(width) {
		return TextureBox{}
	}
	n := b.DepthOrSlices()
	planeLen := b.planeLen(fi)
	if uint64(len(data)) < uint64(n-1)*uint64(bytesPerImage)+planeLen {
		return TextureBox{}
	}
	b.planes = make([][]byte, n)
	for i := range b.planes {
		off := uint64(i) * uint64(bytesPerImage)
		b.planes[i] = data[off : off+planeLen : off+planeLen]
	}
	return b
}

// planeLen is the number of bytes from the box origin to the end of its
// last row within one plane.
func (b TextureBox) planeLen(fi FormatInfo) uint64 {
	rows := fi.Rows(b.Height)
	if rows == 0 {
		return 0
	}
	return uint64(rows-1)*uint64(b.BytesPerRow) + uint64(fi.RowBytes(b.Width))
}

// IsEmpty reports whether the box views no memory.
func (b TextureBox) IsEmpty() bool { return len(b.planes) == 0 }

// ZOrSlice returns the first depth plane or slice of the box.
func (b TextureBox) ZOrSlice() uint32 { return max(b.Z, b.SliceStart) }

// DepthOrSlices returns the number of depth planes or slices.
func (b TextureBox) DepthOrSlices() uint32 { return max(b.Depth, b.NumSlices, 1) }

// EqualSize reports whether both boxes have the same extent.
func (b TextureBox) EqualSize(o TextureBox) bool {
	return b.Width == o.Width && b.Height == o.Height &&
		b.DepthOrSlices() == o.DepthOrSlices()
}

// FullyContains reports whether o lies inside b. Both origins are
// interpreted in the same coordinate space.
func (b TextureBox) FullyContains(o TextureBox) bool {
	return o.X >= b.X && o.Y >= b.Y && o.ZOrSlice() >= b.ZOrSlice() &&
		uint64(o.X)+uint64(o.Width) <= uint64(b.X)+uint64(b.Width) &&
		uint64(o.Y)+uint64(o.Height) <= uint64(b.Y)+uint64(b.Height) &&
		uint64(o.ZOrSlice())+uint64(o.DepthOrSlices()) <= uint64(b.ZOrSlice())+uint64(b.DepthOrSlices())
}

// Valid reports whether the box memory may still be accessed. Boxes that
// are not tied to a surface are always valid; mapped boxes are valid until
// their bracket ends.
func (b TextureBox) Valid() bool {
	if b.IsEmpty() {
		return false
	}
	if b.owner == nil {
		return true
	}
	return b.owner.mapped && b.owner.gen == b.gen
}

// Data returns the first plane of the box, starting at its origin.
func (b TextureBox) Data() []byte { return b.SliceData(0) }

// SliceData returns the i-th depth plane or slice of the box, starting at
// its origin. Rows are BytesPerRow apart. It returns nil for stale boxes.
func (b TextureBox) SliceData(i uint32) []byte {
	if int(i) >= len(b.planes) {
		return nil
	}
	if !b.Valid() {
		staleAccess(b)
		return nil
	}
	return b.planes[i]
}

// Row returns row y (in texels; a block row for compressed formats) of
// plane i, trimmed to the box width.
func (b TextureBox) Row(i, y uint32) []byte {
	plane := b.SliceData(i)
	if plane == nil {
		return nil
	}
	fi, _ := LookupFormat(b.Format)
	r := y / fi.BlockHeight
	if r >= fi.Rows(b.Height) {
		return nil
	}
	off := uint64(r) * uint64(b.BytesPerRow)
	return plane[off : off+uint64(fi.RowBytes(b.Width))]
}

// SubBox returns a view of the region (x, y, z) .. (x+w, y+h, z+d) of b,
// relative to b's origin. For compressed formats x and y must be block
// aligned. It returns an empty box when the region falls outside b.
func (b TextureBox) SubBox(x, y, z, w, h, d uint32) TextureBox {
	fi, ok := LookupFormat(b.Format)
	if !ok || b.IsEmpty() || x%fi.BlockWidth != 0 || y%fi.BlockHeight != 0 {
		return TextureBox{}
	}
	d = max(d, 1)
	if uint64(x)+uint64(w) > uint64(b.Width) || uint64(y)+uint64(h) > uint64(b.Height) ||
		uint64(z)+uint64(d) > uint64(b.DepthOrSlices()) {
		return TextureBox{}
	}

	sub := b
	sub.X += x
	sub.Y += y
	sub.Width, sub.Height = w, h
	if b.Depth > 1 {
		sub.Z += z
		sub.Depth, sub.NumSlices = d, 1
	} else {
		sub.SliceStart += z
		sub.Depth, sub.NumSlices = 1, d
	}

	off := uint64(y/fi.BlockHeight)*uint64(b.BytesPerRow) + uint64(x/fi.BlockWidth)*uint64(fi.BytesPerBlock)
	planeLen := sub.planeLen(fi)
	sub.planes = make([][]byte, d)
	for i := range sub.planes {
		p := b.planes[z+uint32(i)]
		sub.planes[i] = p[off : off+planeLen : off+planeLen]
	}
	return sub
}

// CopyFrom copies the pixels of src into b. Both boxes must be valid, have
// the same extent and the same format family.
func (b TextureBox) CopyFrom(src TextureBox) error {
	if !b.Valid() || !src.Valid() {
		return ErrStaleBox
	}
	if !b.EqualSize(src) {
		return fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrSizeMismatch,
			b.Width, b.Height, b.DepthOrSlices(), src.Width, src.Height, src.DepthOrSlices())
	}
	if Family(b.Format) != Family(src.Format) {
		return fmt.Errorf("%w: %v vs %v", ErrFormatMismatch, b.Format, src.Format)
	}
	fi, _ := LookupFormat(b.Format)
	rowBytes := uint64(fi.RowBytes(b.Width))
	rows := fi.Rows(b.Height)
	for i := range b.planes {
		dst, s := b.planes[i], src.planes[i]
		for r := uint32(0); r < rows; r++ {
			do := uint64(r) * uint64(b.BytesPerRow)
			so := uint64(r) * uint64(src.BytesPerRow)
			copy(dst[do:do+rowBytes], s[so:so+rowBytes])
		}
	}
	return nil
}

// String returns a string representation of the box.
func (b TextureBox) String() string {
	if b.IsEmpty() {
		return fmt.Sprintf("TextureBox(empty %dx%dx%d)", b.Width, b.Height, b.DepthOrSlices())
	}
	return fmt.Sprintf("TextureBox(%d,%d,%d %dx%dx%d %v)",
		b.X, b.Y, b.ZOrSlice(), b.Width, b.Height, b.DepthOrSlices(), b.Format)
}
