// Package software provides a staging backend in plain CPU memory.
//
// It is the reference implementation of texstage.StagingResource: staging
// memory is a byte slice, destination textures are software Textures, and
// copies run on Submit. It needs no GPU, which makes it the backend for
// headless tools and tests.
package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/texstage"
)

// Package errors.
var (
	// ErrForeignTexture is returned when copying into a texture that was not
	// created by this package.
	ErrForeignTexture = errors.New("software: destination is not a software texture")

	// ErrInvalidTextureSize is returned when texture dimensions are invalid.
	ErrInvalidTextureSize = errors.New("software: invalid texture size")

	// ErrAlreadyMapped is returned when mapping a slice twice.
	ErrAlreadyMapped = errors.New("software: slice already mapped")

	// ErrNotMapped is returned when unmapping a slice that is not mapped.
	ErrNotMapped = errors.New("software: slice not mapped")

	// ErrInvalidSlice is returned for slices outside the staging memory.
	ErrInvalidSlice = errors.New("software: slice out of range")

	// ErrDestroyed is returned when using destroyed staging memory.
	ErrDestroyed = errors.New("software: staging memory destroyed")
)

// RowAlignment is the row pitch alignment of staging memory, matching the
// copy pitch GPUs require.
const RowAlignment = 256

func init() {
	texstage.RegisterBackend(texstage.BackendSoftware, func() texstage.Backend { return New() })
}

// Backend creates staging memory in CPU RAM.
type Backend struct {
	mu       sync.Mutex
	failNext error
	submits  int
}

// New creates a software backend.
func New() *Backend { return &Backend{} }

// Name returns "software".
func (b *Backend) Name() string { return texstage.BackendSoftware }

// FailNextSubmit makes the next Submit of any staging memory created by b
// return err, simulating a device failure after copies were issued.
func (b *Backend) FailNextSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// Submits returns how many submissions succeeded.
func (b *Backend) Submits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

func (b *Backend) submitted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	b.submits++
	return nil
}

// CreateStaging allocates zeroed staging memory with rows aligned to
// RowAlignment.
func (b *Backend) CreateStaging(desc *texstage.StagingDescriptor) (texstage.StagingResource, error) {
	info, ok := texstage.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", texstage.ErrUnsupportedFormat, desc.Format)
	}
	slices := max(desc.DepthOrSlices, 1)
	bpr := (info.RowBytes(desc.Width) + RowAlignment - 1) / RowAlignment * RowAlignment
	bpi := bpr * info.Rows(desc.Height)
	return &staging{
		backend:       b,
		kind:          desc.Kind,
		info:          info,
		bytesPerRow:   bpr,
		bytesPerImage: bpi,
		slices:        slices,
		data:          make([]byte, uint64(bpi)*uint64(slices)),
		mapped:        make([]bool, slices),
	}, nil
}

type staging struct {
	backend       *Backend
	kind          texstage.SurfaceKind
	info          texstage.FormatInfo
	bytesPerRow   uint32
	bytesPerImage uint32
	slices        uint32
	data          []byte
	mapped        []bool
	pending       []texstage.CopyRegion
}

func (s *staging) Map(slice uint32) (texstage.Mapping, error) {
	if s.data == nil {
		return texstage.Mapping{}, ErrDestroyed
	}
	data, err := s.span(slice)
	if err != nil {
		return texstage.Mapping{}, err
	}
	if s.mapped[slice] {
		return texstage.Mapping{}, fmt.Errorf("%w: %d", ErrAlreadyMapped, slice)
	}
	s.mapped[slice] = true
	return texstage.Mapping{Data: data, BytesPerRow: s.bytesPerRow, BytesPerImage: s.bytesPerImage}, nil
}

// span returns the memory covered by one mapping.
func (s *staging) span(slice uint32) ([]byte, error) {
	if s.kind == texstage.KindVolume {
		if slice != 0 {
			return nil, fmt.Errorf("%w: volume memory maps as slice 0, got %d", ErrInvalidSlice, slice)
		}
		return s.data, nil
	}
	if slice >= s.slices {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidSlice, slice, s.slices)
	}
	off := uint64(slice) * uint64(s.bytesPerImage)
	return s.data[off : off+uint64(s.bytesPerImage)], nil
}

func (s *staging) Unmap(slice uint32) error {
	if slice >= uint32(len(s.mapped)) || !s.mapped[slice] {
		return fmt.Errorf("%w: %d", ErrNotMapped, slice)
	}
	s.mapped[slice] = false
	return nil
}

func (s *staging) CopyToTexture(region *texstage.CopyRegion) error {
	if s.data == nil {
		return ErrDestroyed
	}
	if _, ok := region.Dst.(*Texture); !ok {
		return fmt.Errorf("%w: %T", ErrForeignTexture, region.Dst)
	}
	if region.SrcSlice >= s.slices {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlice, region.SrcSlice, s.slices)
	}
	s.pending = append(s.pending, *region)
	return nil
}

func (s *staging) Submit() error {
	pending := s.pending
	s.pending = s.pending[:0]
	if err := s.backend.submitted(); err != nil {
		return err
	}
	for i := range pending {
		r := &pending[i]
		off := uint64(r.SrcSlice)*uint64(s.bytesPerImage) +
			uint64(r.SrcY/s.info.BlockHeight)*uint64(s.bytesPerRow) +
			uint64(r.SrcX/s.info.BlockWidth)*uint64(s.info.BytesPerBlock)
		dst := r.Dst.(*Texture)
		if err := dst.write(r.MipLevel, r.DstX, r.DstY, r.DstZ, s.data[off:], s.bytesPerRow, r.Width, r.Height); err != nil {
			return err
		}
	}
	return nil
}

func (s *staging) SizeBytes() uint64 { return uint64(len(s.data)) }

func (s *staging) Destroy() {
	s.data = nil
	s.pending = nil
}
