package stream

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/texstage"
)

// pixels is an image converted to the texel layout of a texture format,
// rows tightly packed.
type pixels struct {
	data          []byte
	width, height uint32
	bytesPerRow   uint32
	format        gputypes.TextureFormat
}

// box views the pixels as a CPU-side source box.
func (p *pixels) box() texstage.TextureBox {
	return texstage.NewTextureBox(p.data, p.width, p.height, 1, 1, p.format,
		p.bytesPerRow, p.bytesPerRow*p.height)
}

// CanEncode reports whether images can be converted into format.
func CanEncode(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRGBA16Unorm:
		return true
	}
	return false
}

// encode converts src into format at width x height, scaling with scaler
// when the sizes differ.
func encode(src image.Image, width, height uint32, format gputypes.TextureFormat, scaler draw.Scaler) (*pixels, error) {
	rect := image.Rect(0, 0, int(width), int(height))
	var dst draw.Image
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		dst = image.NewNRGBA(rect)
	case gputypes.TextureFormatR8Unorm:
		dst = image.NewGray(rect)
	case gputypes.TextureFormatRGBA16Unorm:
		dst = image.NewNRGBA64(rect)
	default:
		return nil, fmt.Errorf("%w: cannot encode images as %v", texstage.ErrUnsupportedFormat, format)
	}

	sb := src.Bounds()
	if sb.Dx() == rect.Dx() && sb.Dy() == rect.Dy() {
		draw.Draw(dst, rect, src, sb.Min, draw.Src)
	} else {
		scaler.Scale(dst, rect, src, sb, draw.Src, nil)
	}

	p := &pixels{width: width, height: height, format: format}
	switch img := dst.(type) {
	case *image.NRGBA:
		p.data, p.bytesPerRow = img.Pix, uint32(img.Stride)
		if format == gputypes.TextureFormatBGRA8Unorm || format == gputypes.TextureFormatBGRA8UnormSrgb {
			for i := 0; i+3 < len(p.data); i += 4 {
				p.data[i], p.data[i+2] = p.data[i+2], p.data[i]
			}
		}
	case *image.Gray:
		p.data, p.bytesPerRow = img.Pix, uint32(img.Stride)
	case *image.NRGBA64:
		// Go stores 16-bit channels big-endian, textures little-endian.
		p.data, p.bytesPerRow = img.Pix, uint32(img.Stride)
		for i := 0; i+1 < len(p.data); i += 2 {
			p.data[i], p.data[i+1] = p.data[i+1], p.data[i]
		}
	}
	return p, nil
}
