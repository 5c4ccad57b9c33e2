package texstage

import (
	"fmt"
)

// Upload copies the pixels of src, a box mapped from this surface, into
// mip level mip of dst. It must be called after StopMapRegion and before
// the next StartMapRegion.
//
// One copy is issued per slice of src. Volume boxes advance the source
// depth plane, array boxes the source slice; the destination advances its
// depth plane for 3D textures and its array layer otherwise. Destination
// textures that keep a system RAM copy are refreshed from WithCPUSrcBox
// unless SkipSysRAMCopy is given.
//
// Validation failures return before anything is copied. Device errors are
// wrapped in ErrDevice and leave the destination in an undefined state.
func (s *Surface) Upload(src TextureBox, dst Texture, mip uint32, opts ...UploadOption) error {
	if err := s.usable(); err != nil {
		return err
	}
	var o uploadOptions
	for _, opt := range opts {
		opt(&o)
	}

	target, err := s.validateUpload(src, dst, mip, &o)
	if err != nil {
		return err
	}

	if sr, ok := dst.(SysRAMTexture); ok && !o.skipSysRAMCopy {
		if err := s.copySysRAM(sr, mip, target, &o); err != nil {
			return err
		}
	}

	// src came from this surface, so the rounded size fits its extent.
	w := uint32(alignUp(src.Width, s.info.BlockWidth))
	h := uint32(alignUp(src.Height, s.info.BlockHeight))
	n := src.DepthOrSlices()
	for i := uint32(0); i < n; i++ {
		region := CopyRegion{
			SrcSlice: src.ZOrSlice() + i,
			SrcX:     src.X,
			SrcY:     src.Y,
			Width:    w,
			Height:   h,
			Dst:      dst,
			MipLevel: mip,
			DstX:     target.X,
			DstY:     target.Y,
			DstZ:     target.ZOrSlice() + i,
		}
		if err := s.res.CopyToTexture(&region); err != nil {
			return fmt.Errorf("%w: copy slice %d of %q: %w", ErrDevice, i, s.desc.Label, err)
		}
	}
	if err := s.res.Submit(); err != nil {
		return fmt.Errorf("%w: submit %q: %w", ErrDevice, s.desc.Label, err)
	}

	s.used = true
	s.queriedStall = false
	if s.frames != nil {
		s.lastFrameUsed = s.frames.FrameCount()
	}
	s.log.Debug("texstage: uploaded", "label", s.desc.Label, "src", src, "mip", mip,
		"dstX", target.X, "dstY", target.Y, "dstZ", target.ZOrSlice())
	return nil
}

// validateUpload checks src and dst and returns the destination region.
func (s *Surface) validateUpload(src TextureBox, dst Texture, mip uint32, o *uploadOptions) (TextureBox, error) {
	switch {
	case src.IsEmpty():
		return TextureBox{}, ErrEmptyBox
	case src.owner != s:
		return TextureBox{}, ErrNotOwned
	case src.gen != s.gen:
		return TextureBox{}, ErrStaleBox
	case s.mapped:
		return TextureBox{}, ErrStillMapped
	case !s.BelongsToUs(src):
		return TextureBox{}, fmt.Errorf("%w: %v was modified", ErrNotOwned, src)
	case dst == nil:
		return TextureBox{}, fmt.Errorf("%w: nil destination", ErrBoxOutOfBounds)
	}

	if mip >= dst.MipLevelCount() {
		return TextureBox{}, fmt.Errorf("%w: mip %d of %d", ErrMipOutOfRange, mip, dst.MipLevelCount())
	}
	if dst.SampleCount() > 1 {
		return TextureBox{}, fmt.Errorf("%w: %d samples", ErrMultisampled, dst.SampleCount())
	}
	if Family(dst.Format()) != s.info.Family {
		return TextureBox{}, fmt.Errorf("%w: %v into %v surface", ErrFormatMismatch, dst.Format(), s.info.Family)
	}

	target := TextureBox{
		Width: src.Width, Height: src.Height,
		Depth: src.Depth, NumSlices: src.NumSlices,
		Format: dst.Format(),
	}
	if o.dstBox != nil {
		if !o.dstBox.EqualSize(src) {
			return TextureBox{}, fmt.Errorf("%w: src %v, dst %v", ErrSizeMismatch, src, *o.dstBox)
		}
		target.X, target.Y = o.dstBox.X, o.dstBox.Y
		target.Z, target.SliceStart = o.dstBox.Z, o.dstBox.SliceStart
	}
	if target.X%s.info.BlockWidth != 0 || target.Y%s.info.BlockHeight != 0 {
		return TextureBox{}, fmt.Errorf("%w: origin (%d,%d) not block aligned", ErrBoxOutOfBounds, target.X, target.Y)
	}
	if full := mipBox(dst, mip); !full.FullyContains(target) {
		return TextureBox{}, fmt.Errorf("%w: %v does not fit mip %d (%dx%dx%d)", ErrBoxOutOfBounds,
			target, mip, full.Width, full.Height, full.DepthOrSlices())
	}
	return target, nil
}

// copySysRAM mirrors the upload into the destination's system RAM copy.
func (s *Surface) copySysRAM(dst SysRAMTexture, mip uint32, target TextureBox, o *uploadOptions) error {
	mirror := dst.SysRAMCopy(mip)
	if mirror.IsEmpty() {
		return nil
	}
	if o.cpuSrcBox == nil {
		s.log.Debug("texstage: no CPU source given, system RAM copy left stale", "label", s.desc.Label)
		return nil
	}
	region := mirror.SubBox(target.X, target.Y, target.ZOrSlice(),
		target.Width, target.Height, target.DepthOrSlices())
	if region.IsEmpty() {
		return fmt.Errorf("%w: system RAM copy region %v", ErrBoxOutOfBounds, target)
	}
	if err := region.CopyFrom(*o.cpuSrcBox); err != nil {
		return fmt.Errorf("system RAM copy: %w", err)
	}
	return nil
}
