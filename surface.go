package texstage

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage/internal/ledger"
)

// Surface is a fixed-size staging surface that hands out sub-regions of
// its mapped memory.
//
// Usage follows a bracket:
//  1. StartMapRegion maps the memory and marks every texel free
//  2. MapRegion carves boxes; the caller writes pixels into them
//  3. StopMapRegion unmaps the memory
//  4. Upload copies each box into its destination texture
//
// The next StartMapRegion invalidates every box of the previous bracket.
//
// A Surface is not safe for concurrent use. Different surfaces may be used
// from different goroutines.
type Surface struct {
	backend Backend
	res     StagingResource
	desc    StagingDescriptor
	info    FormatInfo
	size    uint64

	width, height, depthOrSlices uint32

	ledger *ledger.Ledger
	maps   []Mapping
	mapped bool
	// gen identifies the current bracket; boxes carry the value of the
	// bracket that created them.
	gen uint64

	frames        *FrameTracker
	lastFrameUsed uint64
	used          bool
	queriedStall  bool

	devices   *DeviceResources
	log       *slog.Logger
	lost      bool
	destroyed bool
}

// NewSurface creates a staging surface of width x height texels with
// max(depth, slices) slices, able to hold any format of the family of
// format. Compressed surfaces are rounded up to whole blocks.
//
// Surfaces with depth > 1 default to KindVolume, every other surface to
// KindArray; WithKind overrides the choice.
func NewSurface(b Backend, width, height, depth, slices uint32, format gputypes.TextureFormat,
	opts ...SurfaceOption) (*Surface, error) {
	if b == nil {
		return nil, ErrNilBackend
	}
	fi, ok := LookupFormat(format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	alignedW, alignedH := alignUp(width, fi.BlockWidth), alignUp(height, fi.BlockHeight)
	if width == 0 || height == 0 || alignedW > math.MaxUint32 || alignedH > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	o := defaultSurfaceOptions()
	if depth > 1 {
		o.kind = KindVolume
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	s := &Surface{
		backend:       b,
		info:          fi,
		width:         uint32(alignedW),
		height:        uint32(alignedH),
		depthOrSlices: max(depth, slices, 1),
		frames:        o.frames,
		devices:       o.devices,
		log:           log,
	}
	s.desc = StagingDescriptor{
		Label:         o.label,
		Width:         s.width,
		Height:        s.height,
		DepthOrSlices: s.depthOrSlices,
		Format:        fi.Family,
		Kind:          o.kind,
	}
	s.ledger = ledger.New(s.width, s.height, s.depthOrSlices, fi.BlockWidth, fi.BlockHeight)

	res, err := b.CreateStaging(&s.desc)
	if err != nil {
		return nil, fmt.Errorf("%w: create staging %q: %w", ErrDevice, o.label, err)
	}
	s.res = res
	s.size = res.SizeBytes()

	if s.devices != nil {
		s.devices.Register(s)
	}
	s.log.Debug("texstage: surface created",
		"label", o.label, "backend", b.Name(), "kind", o.kind,
		"width", s.width, "height", s.height, "slices", s.depthOrSlices,
		"family", fi.Family, "bytes", s.size)
	return s, nil
}

// Label returns the debug label.
func (s *Surface) Label() string { return s.desc.Label }

// Width returns the surface width in texels.
func (s *Surface) Width() uint32 { return s.width }

// Height returns the surface height in texels.
func (s *Surface) Height() uint32 { return s.height }

// DepthOrSlices returns the number of slices.
func (s *Surface) DepthOrSlices() uint32 { return s.depthOrSlices }

// Kind returns the slice addressing of the surface.
func (s *Surface) Kind() SurfaceKind { return s.desc.Kind }

// FormatFamily returns the format family the surface was created for.
func (s *Surface) FormatFamily() gputypes.TextureFormat { return s.info.Family }

// SizeBytes returns the size of the staging memory.
func (s *Surface) SizeBytes() uint64 { return s.size }

// IsMapped reports whether a bracket is open.
func (s *Surface) IsMapped() bool { return s.mapped }

// FreeArea returns the free texels of a slice in the current bracket.
func (s *Surface) FreeArea(slice uint32) uint64 { return s.ledger.FreeArea(slice) }

// IsSmallerThan orders surfaces by size for pool reuse.
func (s *Surface) IsSmallerThan(o *Surface) bool { return s.size < o.size }

// SupportsFormat reports whether a region of the given size and format
// could ever be mapped from this surface: the format must belong to the
// surface's family and the block-rounded region must fit its extent.
// Array surfaces serve several slices but not volume depth.
func (s *Surface) SupportsFormat(width, height, depth, slices uint32, format gputypes.TextureFormat) bool {
	fi, ok := LookupFormat(format)
	if !ok || fi.Family != s.info.Family {
		return false
	}
	if s.desc.Kind == KindArray && depth > 1 {
		return false
	}
	return alignUp(width, fi.BlockWidth) <= uint64(s.width) &&
		alignUp(height, fi.BlockHeight) <= uint64(s.height) &&
		max(depth, slices, 1) <= s.depthOrSlices
}

// UploadWillStall reports whether StartMapRegion would have to wait for the
// GPU to finish reading this surface. Querying it silences the performance
// warning of the next StartMapRegion.
func (s *Surface) UploadWillStall() bool {
	s.queriedStall = true
	return s.stalls()
}

func (s *Surface) stalls() bool {
	return s.frames != nil && s.used && !s.frames.IsFrameFinished(s.lastFrameUsed)
}

// LastFrameUsed returns the frame of the last upload and whether there was
// one.
func (s *Surface) LastFrameUsed() (uint64, bool) { return s.lastFrameUsed, s.used }

// StartMapRegion opens a bracket: it waits until the GPU finished the last
// upload from this surface, maps the staging memory and marks every texel
// free. Calling it while a bracket is open logs a warning and restarts the
// bracket.
func (s *Surface) StartMapRegion() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.mapped {
		s.log.Warn("texstage: StartMapRegion called twice, closing previous bracket",
			"label", s.desc.Label)
		if err := s.StopMapRegion(); err != nil {
			return err
		}
	}

	if s.frames != nil && s.used {
		if !s.queriedStall && s.frames.FrameCount()-s.lastFrameUsed < s.frames.BufferMultiplier() {
			s.log.Warn("texstage: StartMapRegion called too soon after Upload, it will likely stall; "+
				"wait BufferMultiplier frames or check UploadWillStall first",
				"label", s.desc.Label, "lastFrameUsed", s.lastFrameUsed,
				"frame", s.frames.FrameCount())
		}
		if err := s.frames.WaitForFrame(s.lastFrameUsed); err != nil {
			return fmt.Errorf("%w: wait for frame %d: %w", ErrDevice, s.lastFrameUsed, err)
		}
	}
	s.queriedStall = false

	n := uint32(1)
	if s.desc.Kind == KindArray {
		n = s.depthOrSlices
	}
	s.maps = s.maps[:0]
	for i := uint32(0); i < n; i++ {
		m, err := s.res.Map(i)
		if err != nil {
			s.unmapFirst(i)
			return fmt.Errorf("%w: map slice %d of %q: %w", ErrDevice, i, s.desc.Label, err)
		}
		s.maps = append(s.maps, m)
	}

	s.ledger.Reset()
	s.gen++
	s.mapped = true
	s.log.Debug("texstage: bracket started", "label", s.desc.Label, "gen", s.gen)
	return nil
}

// unmapFirst rolls back the first n mappings after a failed map.
func (s *Surface) unmapFirst(n uint32) {
	for i := uint32(0); i < n; i++ {
		if err := s.res.Unmap(i); err != nil {
			s.log.Warn("texstage: unmap during rollback failed", "slice", i, "err", err)
		}
	}
	s.maps = s.maps[:0]
}

// StopMapRegion closes the bracket: every mapping is released and the free
// ledger cleared. Boxes of the bracket keep identifying their region for
// Upload but their memory must no longer be touched. Without an open
// bracket it does nothing.
func (s *Surface) StopMapRegion() error {
	if !s.mapped {
		return nil
	}
	s.mapped = false
	s.ledger.Clear()

	var errs []error
	for i := range s.maps {
		if err := s.res.Unmap(uint32(i)); err != nil {
			errs = append(errs, fmt.Errorf("unmap slice %d: %w", i, err))
		}
	}
	s.log.Debug("texstage: bracket stopped", "label", s.desc.Label, "gen", s.gen)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDevice, errors.Join(errs...))
	}
	return nil
}

// MapRegion carves a region out of the open bracket and returns a box
// viewing it. Requests with depth > 1 or slices > 1 take the same
// rectangle from consecutive slices. The box is empty when the surface is
// exhausted, when no bracket is open, or when the request is not supported.
func (s *Surface) MapRegion(width, height, depth, slices uint32, format gputypes.TextureFormat) TextureBox {
	depth, slices = max(depth, 1), max(slices, 1)
	empty := TextureBox{
		Width: width, Height: height, Depth: depth, NumSlices: slices,
		BytesPerPixel: BytesPerPixel(format), Format: format,
	}
	if !s.mapped {
		s.log.Warn("texstage: MapRegion called outside a map bracket", "label", s.desc.Label)
		return empty
	}
	if !s.SupportsFormat(width, height, depth, slices, format) {
		s.log.Debug("texstage: MapRegion request not supported",
			"label", s.desc.Label, "width", width, "height", height,
			"depth", depth, "slices", slices, "format", format)
		return empty
	}

	var (
		rect  ledger.Box
		first uint32
		ok    bool
	)
	if depth > 1 || slices > 1 {
		rect, first, ok = s.ledger.AllocateColumn(width, height, max(depth, slices))
	} else {
		rect, first, ok = s.ledger.Allocate(width, height)
	}
	if !ok {
		s.log.Debug("texstage: surface exhausted", "label", s.desc.Label,
			"width", width, "height", height, "depth", depth, "slices", slices)
		return empty
	}
	return s.view(empty, rect, first)
}

// view fills box with the memory of rect starting at slice first.
func (s *Surface) view(box TextureBox, rect ledger.Box, first uint32) TextureBox {
	box.X, box.Y = rect.X, rect.Y
	if s.desc.Kind == KindVolume {
		box.Z = first
	} else {
		box.SliceStart = first
	}

	m := s.maps[0]
	if s.desc.Kind == KindArray {
		m = s.maps[first]
	}
	box.BytesPerRow = m.BytesPerRow
	box.BytesPerImage = m.BytesPerImage

	off := s.offset(m, rect.X, rect.Y)
	planeLen := box.planeLen(s.info)
	n := box.DepthOrSlices()
	box.planes = make([][]byte, n)
	for i := uint32(0); i < n; i++ {
		data, start := m.Data, off
		if s.desc.Kind == KindArray {
			data = s.maps[first+i].Data
		} else {
			start += uint64(first+i) * uint64(m.BytesPerImage)
		}
		box.planes[i] = data[start : start+planeLen : start+planeLen]
	}
	box.owner = s
	box.gen = s.gen
	return box
}

// offset returns the byte offset of texel (x, y) within one slice.
func (s *Surface) offset(m Mapping, x, y uint32) uint64 {
	return uint64(y/s.info.BlockHeight)*uint64(m.BytesPerRow) +
		uint64(x/s.info.BlockWidth)*uint64(s.info.BytesPerBlock)
}

// BelongsToUs reports whether box was mapped from this surface in the
// current bracket: it must lie inside the surface and its memory must start
// exactly where the surface mapping places its origin.
func (s *Surface) BelongsToUs(box TextureBox) bool {
	if box.IsEmpty() || box.owner != s || box.gen != s.gen || len(s.maps) == 0 {
		return false
	}
	if uint64(box.X)+uint64(box.Width) > uint64(s.width) ||
		uint64(box.Y)+uint64(box.Height) > uint64(s.height) ||
		uint64(box.ZOrSlice())+uint64(box.DepthOrSlices()) > uint64(s.depthOrSlices) {
		return false
	}

	m := s.maps[0]
	if s.desc.Kind == KindArray {
		m = s.maps[box.SliceStart]
	}
	off := s.offset(m, box.X, box.Y)
	if s.desc.Kind == KindVolume {
		off += uint64(box.Z) * uint64(m.BytesPerImage)
	}
	if off >= uint64(len(m.Data)) || len(box.planes[0]) == 0 {
		return false
	}
	return &box.planes[0][0] == &m.Data[off]
}

// Destroy releases the staging memory. Destroying a mapped surface is a
// usage error: it is logged and the surface is unmapped first.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	if s.mapped {
		s.log.Warn("texstage: destroying a surface that is still mapped", "label", s.desc.Label)
		if err := s.StopMapRegion(); err != nil {
			s.log.Warn("texstage: implicit unmap failed", "label", s.desc.Label, "err", err)
		}
	}
	if s.devices != nil {
		s.devices.Unregister(s)
	}
	if s.res != nil {
		s.res.Destroy()
		s.res = nil
	}
	s.destroyed = true
	s.log.Debug("texstage: surface destroyed", "label", s.desc.Label)
}

func (s *Surface) usable() error {
	switch {
	case s.destroyed:
		return ErrSurfaceDestroyed
	case s.lost:
		return ErrDeviceLost
	}
	return nil
}

// NotifyDeviceLost drops the staging memory. An open bracket is abandoned
// and its boxes become stale.
func (s *Surface) NotifyDeviceLost() {
	if s.destroyed || s.lost {
		return
	}
	if s.mapped {
		s.mapped = false
		s.ledger.Clear()
	}
	s.gen++
	s.maps = s.maps[:0]
	s.used = false
	if s.res != nil {
		s.res.Destroy()
		s.res = nil
	}
	s.lost = true
	s.log.Info("texstage: surface lost its device", "label", s.desc.Label)
}

// NotifyDeviceRestored recreates the staging memory.
func (s *Surface) NotifyDeviceRestored() error {
	if s.destroyed || !s.lost {
		return nil
	}
	res, err := s.backend.CreateStaging(&s.desc)
	if err != nil {
		return fmt.Errorf("%w: recreate staging %q: %w", ErrDevice, s.desc.Label, err)
	}
	s.res = res
	s.size = res.SizeBytes()
	s.lost = false
	return nil
}
