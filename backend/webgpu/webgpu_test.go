package webgpu

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage"
)

type write struct {
	origin wgpu.Origin3D
	mip    uint32
	layout wgpu.TextureDataLayout
	size   wgpu.Extent3D
	first  byte
}

// recordingQueue records writes instead of talking to a device.
type recordingQueue struct {
	writes []write
	err    error
}

func (q *recordingQueue) WriteTexture(dst *wgpu.ImageCopyTexture, data []byte, layout *wgpu.TextureDataLayout, size *wgpu.Extent3D) error {
	if q.err != nil {
		return q.err
	}
	q.writes = append(q.writes, write{
		origin: dst.Origin,
		mip:    dst.MipLevel,
		layout: *layout,
		size:   *size,
		first:  data[layout.Offset],
	})
	return nil
}

func newTestBackend() (*Backend, *recordingQueue) {
	q := &recordingQueue{}
	return &Backend{queue: q}, q
}

func newTestTexture(w, h, layers uint32, dim gputypes.TextureDimension) *Texture {
	return WrapTexture(nil, &TextureDescriptor{
		Label: "dst", Width: w, Height: h, DepthOrArrayLayers: layers,
		Dimension: dim, Format: gputypes.TextureFormatRGBA8Unorm,
	})
}

func TestNewNilDevice(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New(nil) = %v, want ErrNoDevice", err)
	}
}

func TestCreateStagingWithoutDevice(t *testing.T) {
	b := &Backend{}
	_, err := b.CreateStaging(&texstage.StagingDescriptor{
		Width: 4, Height: 4, DepthOrSlices: 1, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("CreateStaging() = %v, want ErrNoDevice", err)
	}
}

func TestStagingLayout(t *testing.T) {
	tests := []struct {
		name   string
		desc   texstage.StagingDescriptor
		bpr    uint32
		bytes  uint64
		mapLen int
	}{
		{
			name:   "array",
			desc:   texstage.StagingDescriptor{Width: 65, Height: 4, DepthOrSlices: 2, Format: gputypes.TextureFormatRGBA8Unorm},
			bpr:    512,
			bytes:  2 * 512 * 4,
			mapLen: 512 * 4,
		},
		{
			name:   "volume",
			desc:   texstage.StagingDescriptor{Width: 8, Height: 8, DepthOrSlices: 4, Format: gputypes.TextureFormatR8Unorm, Kind: texstage.KindVolume},
			bpr:    256,
			bytes:  4 * 256 * 8,
			mapLen: 4 * 256 * 8,
		},
		{
			name:   "bc1",
			desc:   texstage.StagingDescriptor{Width: 64, Height: 64, DepthOrSlices: 1, Format: gputypes.TextureFormatBC1RGBAUnorm},
			bpr:    256,
			bytes:  256 * 16,
			mapLen: 256 * 16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBackend()
			res, err := b.CreateStaging(&tt.desc)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.SizeBytes(); got != tt.bytes {
				t.Errorf("SizeBytes() = %d, want %d", got, tt.bytes)
			}
			m, err := res.Map(0)
			if err != nil {
				t.Fatal(err)
			}
			if m.BytesPerRow != tt.bpr {
				t.Errorf("BytesPerRow = %d, want %d", m.BytesPerRow, tt.bpr)
			}
			if len(m.Data) != tt.mapLen {
				t.Errorf("len(Data) = %d, want %d", len(m.Data), tt.mapLen)
			}
		})
	}
}

func TestMapErrors(t *testing.T) {
	b, _ := newTestBackend()
	res, err := b.CreateStaging(&texstage.StagingDescriptor{
		Width: 4, Height: 4, DepthOrSlices: 2, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Map(1); err != nil {
		t.Fatal(err)
	}
	if _, err := res.Map(1); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("second Map = %v, want ErrAlreadyMapped", err)
	}
	if _, err := res.Map(2); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("Map(2) = %v, want ErrInvalidSlice", err)
	}
	if err := res.Unmap(1); err != nil {
		t.Errorf("Unmap(1) = %v", err)
	}
	res.Destroy()
	if _, err := res.Map(0); !errors.Is(err, ErrStagingDestroyed) {
		t.Errorf("Map after Destroy = %v, want ErrStagingDestroyed", err)
	}
}

func TestSurfaceUploadWritesTexture(t *testing.T) {
	b, q := newTestBackend()
	s, err := texstage.NewSurface(b, 64, 64, 1, 2, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	if err := s.StartMapRegion(); err != nil {
		t.Fatal(err)
	}
	box := s.MapRegion(8, 4, 1, 2, gputypes.TextureFormatRGBA8Unorm)
	if box.IsEmpty() {
		t.Fatal("MapRegion failed")
	}
	for i := uint32(0); i < 2; i++ {
		box.Row(i, 0)[0] = byte(10 + i)
	}
	if err := s.StopMapRegion(); err != nil {
		t.Fatal(err)
	}

	dst := newTestTexture(16, 16, 3, gputypes.TextureDimension2D)
	dstBox := texstage.TextureBox{X: 4, Y: 8, SliceStart: 1, Width: 8, Height: 4, NumSlices: 2}
	if err := s.Upload(box, dst, 0, texstage.WithDstBox(dstBox)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}

	if len(q.writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(q.writes))
	}
	for i, w := range q.writes {
		if w.first != byte(10+i) {
			t.Errorf("write %d starts with %d, want %d", i, w.first, 10+i)
		}
		if want := (wgpu.Origin3D{X: 4, Y: 8, Z: 1 + uint32(i)}); w.origin != want {
			t.Errorf("write %d: origin = %+v, want %+v", i, w.origin, want)
		}
		if w.size != (wgpu.Extent3D{Width: 8, Height: 4, DepthOrArrayLayers: 1}) {
			t.Errorf("write %d: size = %+v", i, w.size)
		}
		if w.layout.BytesPerRow != RowAlignment || w.layout.RowsPerImage != 64 {
			t.Errorf("write %d: layout = %+v", i, w.layout)
		}
	}
}

func TestCopyErrors(t *testing.T) {
	b, q := newTestBackend()
	res, err := b.CreateStaging(&texstage.StagingDescriptor{
		Width: 16, Height: 16, DepthOrSlices: 1, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.CopyToTexture(&texstage.CopyRegion{Width: 4, Height: 4}); !errors.Is(err, ErrForeignTexture) {
		t.Errorf("nil dst: err = %v, want ErrForeignTexture", err)
	}
	dst := newTestTexture(16, 16, 1, gputypes.TextureDimension2D)
	if err := res.CopyToTexture(&texstage.CopyRegion{SrcSlice: 1, Width: 4, Height: 4, Dst: dst}); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("bad slice: err = %v, want ErrInvalidSlice", err)
	}

	if err := res.CopyToTexture(&texstage.CopyRegion{Width: 4, Height: 4, Dst: dst}); err != nil {
		t.Fatal(err)
	}
	q.err = errors.New("device lost")
	if err := res.Submit(); err == nil {
		t.Error("Submit() succeeded with a failing queue")
	}

	dst.Release()
	if err := res.CopyToTexture(&texstage.CopyRegion{Width: 4, Height: 4, Dst: dst}); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("released dst: err = %v, want ErrTextureReleased", err)
	}
}

func TestTextureDescriptorDefaults(t *testing.T) {
	tex := newTestTexture(8, 8, 0, gputypes.TextureDimensionUndefined)
	if tex.Dimension() != gputypes.TextureDimension2D {
		t.Errorf("Dimension() = %v, want 2D", tex.Dimension())
	}
	if tex.MipLevelCount() != 1 || tex.DepthOrArrayLayers() != 1 || tex.SampleCount() != 1 {
		t.Errorf("defaults = %d mips, %d layers, %d samples",
			tex.MipLevelCount(), tex.DepthOrArrayLayers(), tex.SampleCount())
	}
	if tex.desc.Usage&wgpu.TextureUsageCopyDst == 0 {
		t.Error("CopyDst usage not added")
	}
}

func TestCreateTextureWithoutDevice(t *testing.T) {
	b := &Backend{}
	if _, err := b.CreateTexture(&TextureDescriptor{Width: 4, Height: 4}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("CreateTexture() = %v, want ErrNoDevice", err)
	}
}
