package native

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texstage"
)

// staging is a set of host-visible buffers plus the copies recorded from
// them since the last Submit.
type staging struct {
	device hal.Device
	queue  hal.Queue
	label  string
	kind   texstage.SurfaceKind
	info   texstage.FormatInfo

	bytesPerRow   uint32
	bytesPerImage uint32
	slices        uint32
	size          uint64

	buffers []hal.Buffer
	mapped  []bool

	pending  []pendingCopy
	inflight []submission
}

type pendingCopy struct {
	buffer hal.Buffer
	dst    hal.Texture
	region hal.BufferTextureCopy
}

// submission keeps the encoder and command buffer of a Submit alive until
// the GPU completed it.
type submission struct {
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
	index   uint64
}

func (s *staging) Map(slice uint32) (texstage.Mapping, error) {
	if s.buffers == nil {
		return texstage.Mapping{}, ErrStagingDestroyed
	}
	if slice >= uint32(len(s.buffers)) {
		return texstage.Mapping{}, fmt.Errorf("%w: %d of %d", ErrInvalidSlice, slice, len(s.buffers))
	}
	size := uint64(s.bytesPerImage)
	if s.kind == texstage.KindVolume {
		size *= uint64(s.slices)
	}
	m, err := s.device.MapBuffer(s.buffers[slice], 0, size)
	if err != nil {
		return texstage.Mapping{}, fmt.Errorf("native: map %s/%d: %w", s.label, slice, err)
	}
	s.mapped[slice] = true
	return texstage.Mapping{
		Data:          unsafe.Slice((*byte)(m.Ptr), size),
		BytesPerRow:   s.bytesPerRow,
		BytesPerImage: s.bytesPerImage,
	}, nil
}

func (s *staging) Unmap(slice uint32) error {
	if slice >= uint32(len(s.buffers)) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlice, slice, len(s.buffers))
	}
	s.mapped[slice] = false
	if err := s.device.UnmapBuffer(s.buffers[slice]); err != nil {
		return fmt.Errorf("native: unmap %s/%d: %w", s.label, slice, err)
	}
	return nil
}

func (s *staging) CopyToTexture(region *texstage.CopyRegion) error {
	if s.buffers == nil {
		return ErrStagingDestroyed
	}
	dst, ok := region.Dst.(*Texture)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignTexture, region.Dst)
	}
	if dst.IsDestroyed() {
		return ErrTextureDestroyed
	}
	raw := dst.Raw()
	if region.SrcSlice >= s.slices {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlice, region.SrcSlice, s.slices)
	}

	buf := s.buffers[0]
	offset := uint64(region.SrcY/s.info.BlockHeight)*uint64(s.bytesPerRow) +
		uint64(region.SrcX/s.info.BlockWidth)*uint64(s.info.BytesPerBlock)
	if s.kind == texstage.KindVolume {
		offset += uint64(region.SrcSlice) * uint64(s.bytesPerImage)
	} else {
		buf = s.buffers[region.SrcSlice]
	}

	s.pending = append(s.pending, pendingCopy{
		buffer: buf,
		dst:    raw,
		region: hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{
				Offset:       offset,
				BytesPerRow:  s.bytesPerRow,
				RowsPerImage: s.bytesPerImage / s.bytesPerRow,
			},
			TextureBase: hal.ImageCopyTexture{
				Texture:  raw,
				MipLevel: region.MipLevel,
				Origin:   hal.Origin3D{X: region.DstX, Y: region.DstY, Z: region.DstZ},
				Aspect:   gputypes.TextureAspectAll,
			},
			Size: hal.Extent3D{Width: region.Width, Height: region.Height, DepthOrArrayLayers: 1},
		},
	})
	return nil
}

// Submit records every pending copy into one command buffer and submits
// it.
func (s *staging) Submit() error {
	pending := s.pending
	s.pending = nil
	if len(pending) == 0 {
		return nil
	}
	s.reclaim()

	enc, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: s.label})
	if err != nil {
		return fmt.Errorf("native: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(s.label); err != nil {
		enc.Destroy()
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	for _, p := range pending {
		enc.CopyBufferToTexture(p.buffer, p.dst, []hal.BufferTextureCopy{p.region})
	}
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		enc.Destroy()
		return fmt.Errorf("native: end encoding: %w", err)
	}
	index, err := s.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		s.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		return fmt.Errorf("native: submit: %w", err)
	}
	s.inflight = append(s.inflight, submission{encoder: enc, cmd: cmd, index: index})
	return nil
}

// reclaim frees the command buffers the GPU finished with.
func (s *staging) reclaim() {
	if len(s.inflight) == 0 {
		return
	}
	done := s.queue.PollCompleted()
	n := 0
	for _, sub := range s.inflight {
		if sub.index > done {
			s.inflight[n] = sub
			n++
			continue
		}
		s.free(sub)
	}
	s.inflight = s.inflight[:n]
}

func (s *staging) free(sub submission) {
	s.device.FreeCommandBuffer(sub.cmd)
	sub.encoder.Destroy()
}

func (s *staging) SizeBytes() uint64 { return s.size }

// Destroy waits for in-flight copies and releases the buffers.
func (s *staging) Destroy() {
	s.reclaim()
	if len(s.inflight) > 0 {
		if err := s.device.WaitIdle(); err != nil {
			texstage.Logger().Warn("native: wait idle before destroying staging", "label", s.label, "err", err)
		}
		for _, sub := range s.inflight {
			s.free(sub)
		}
		s.inflight = nil
	}
	for i, buf := range s.buffers {
		if i < len(s.mapped) && s.mapped[i] {
			if err := s.device.UnmapBuffer(buf); err != nil {
				texstage.Logger().Warn("native: unmap staging before destroy", "label", s.label, "slice", i, "err", err)
			}
		}
		s.device.DestroyBuffer(buf)
	}
	s.buffers = nil
	s.pending = nil
	s.size = 0
}
