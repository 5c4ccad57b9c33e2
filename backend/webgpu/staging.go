package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gogpu/texstage"
)

// staging is heap memory holding every slice back to back, plus the copies
// recorded since the last Submit.
type staging struct {
	queue textureWriter
	label string
	kind  texstage.SurfaceKind
	info  texstage.FormatInfo

	bytesPerRow   uint32
	bytesPerImage uint32
	slices        uint32

	data    []byte
	mapped  []bool
	pending []pendingWrite
}

type pendingWrite struct {
	dst    wgpu.ImageCopyTexture
	offset uint64
	size   wgpu.Extent3D
}

func (s *staging) Map(slice uint32) (texstage.Mapping, error) {
	if s.data == nil {
		return texstage.Mapping{}, ErrStagingDestroyed
	}
	if slice >= uint32(len(s.mapped)) {
		return texstage.Mapping{}, fmt.Errorf("%w: %d of %d", ErrInvalidSlice, slice, len(s.mapped))
	}
	if s.mapped[slice] {
		return texstage.Mapping{}, fmt.Errorf("%w: %d", ErrAlreadyMapped, slice)
	}
	s.mapped[slice] = true
	data := s.data
	if s.kind != texstage.KindVolume {
		start := uint64(slice) * uint64(s.bytesPerImage)
		data = s.data[start : start+uint64(s.bytesPerImage)]
	}
	return texstage.Mapping{
		Data:          data,
		BytesPerRow:   s.bytesPerRow,
		BytesPerImage: s.bytesPerImage,
	}, nil
}

func (s *staging) Unmap(slice uint32) error {
	if slice >= uint32(len(s.mapped)) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlice, slice, len(s.mapped))
	}
	s.mapped[slice] = false
	return nil
}

func (s *staging) CopyToTexture(region *texstage.CopyRegion) error {
	if s.data == nil {
		return ErrStagingDestroyed
	}
	dst, ok := region.Dst.(*Texture)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignTexture, region.Dst)
	}
	if dst.IsReleased() {
		return ErrTextureReleased
	}
	if region.SrcSlice >= s.slices {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlice, region.SrcSlice, s.slices)
	}
	s.pending = append(s.pending, pendingWrite{
		dst: wgpu.ImageCopyTexture{
			Texture:  dst.Raw(),
			MipLevel: region.MipLevel,
			Origin:   wgpu.Origin3D{X: region.DstX, Y: region.DstY, Z: region.DstZ},
			Aspect:   wgpu.TextureAspectAll,
		},
		offset: uint64(region.SrcSlice)*uint64(s.bytesPerImage) +
			uint64(region.SrcY/s.info.BlockHeight)*uint64(s.bytesPerRow) +
			uint64(region.SrcX/s.info.BlockWidth)*uint64(s.info.BytesPerBlock),
		size: wgpu.Extent3D{Width: region.Width, Height: region.Height, DepthOrArrayLayers: 1},
	})
	return nil
}

// Submit writes every pending copy through the queue. All writes are
// attempted; their errors are joined.
func (s *staging) Submit() error {
	pending := s.pending
	s.pending = nil
	var errs []error
	for i := range pending {
		p := &pending[i]
		layout := wgpu.TextureDataLayout{
			Offset:       p.offset,
			BytesPerRow:  s.bytesPerRow,
			RowsPerImage: s.bytesPerImage / s.bytesPerRow,
		}
		if err := s.queue.WriteTexture(&p.dst, s.data, &layout, &p.size); err != nil {
			errs = append(errs, fmt.Errorf("webgpu: write texture %s: %w", s.label, err))
		}
	}
	return errors.Join(errs...)
}

func (s *staging) SizeBytes() uint64 { return uint64(len(s.data)) }

func (s *staging) Destroy() {
	s.data = nil
	s.pending = nil
}
