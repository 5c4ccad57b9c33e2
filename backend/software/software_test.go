package software

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage"
)

func newStaging(t *testing.T, w, h, n uint32, f gputypes.TextureFormat, kind texstage.SurfaceKind) *staging {
	t.Helper()
	res, err := New().CreateStaging(&texstage.StagingDescriptor{
		Width: w, Height: h, DepthOrSlices: n, Format: f, Kind: kind,
	})
	if err != nil {
		t.Fatalf("CreateStaging() = %v", err)
	}
	return res.(*staging)
}

func TestCreateStagingLayout(t *testing.T) {
	tests := []struct {
		name    string
		w, h, n uint32
		format  gputypes.TextureFormat
		bpr     uint32
		bpi     uint32
	}{
		{"rgba8", 64, 32, 1, gputypes.TextureFormatRGBA8Unorm, 256, 256 * 32},
		{"rgba8 padded", 65, 2, 2, gputypes.TextureFormatRGBA8Unorm, 512, 1024},
		{"r8", 16, 16, 1, gputypes.TextureFormatR8Unorm, 256, 256 * 16},
		{"bc1", 256, 256, 1, gputypes.TextureFormatBC1RGBAUnorm, 512, 512 * 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStaging(t, tt.w, tt.h, tt.n, tt.format, texstage.KindArray)
			if s.bytesPerRow != tt.bpr || s.bytesPerImage != tt.bpi {
				t.Errorf("layout = %d/%d, want %d/%d", s.bytesPerRow, s.bytesPerImage, tt.bpr, tt.bpi)
			}
			if got, want := s.SizeBytes(), uint64(tt.bpi)*uint64(tt.n); got != want {
				t.Errorf("SizeBytes() = %d, want %d", got, want)
			}
		})
	}
}

func TestCreateStagingUnsupportedFormat(t *testing.T) {
	_, err := New().CreateStaging(&texstage.StagingDescriptor{Width: 4, Height: 4, DepthOrSlices: 1})
	if !errors.Is(err, texstage.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestMapUnmap(t *testing.T) {
	s := newStaging(t, 16, 16, 3, gputypes.TextureFormatRGBA8Unorm, texstage.KindArray)

	m, err := s.Map(1)
	if err != nil {
		t.Fatalf("Map(1) = %v", err)
	}
	if uint32(len(m.Data)) != s.bytesPerImage {
		t.Errorf("len(Data) = %d, want %d", len(m.Data), s.bytesPerImage)
	}
	if &m.Data[0] != &s.data[s.bytesPerImage] {
		t.Error("slice 1 mapping does not start at its image")
	}
	if _, err := s.Map(1); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("second Map(1) = %v, want ErrAlreadyMapped", err)
	}
	if _, err := s.Map(3); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("Map(3) = %v, want ErrInvalidSlice", err)
	}
	if err := s.Unmap(1); err != nil {
		t.Errorf("Unmap(1) = %v", err)
	}
	if err := s.Unmap(1); !errors.Is(err, ErrNotMapped) {
		t.Errorf("second Unmap(1) = %v, want ErrNotMapped", err)
	}
}

func TestMapVolume(t *testing.T) {
	s := newStaging(t, 16, 16, 4, gputypes.TextureFormatRGBA8Unorm, texstage.KindVolume)

	m, err := s.Map(0)
	if err != nil {
		t.Fatalf("Map(0) = %v", err)
	}
	if uint64(len(m.Data)) != s.SizeBytes() {
		t.Errorf("volume mapping covers %d bytes, want %d", len(m.Data), s.SizeBytes())
	}
	if _, err := s.Map(1); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("Map(1) on volume = %v, want ErrInvalidSlice", err)
	}
}

func TestMapDestroyed(t *testing.T) {
	s := newStaging(t, 16, 16, 1, gputypes.TextureFormatRGBA8Unorm, texstage.KindArray)
	s.Destroy()
	if _, err := s.Map(0); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Map after Destroy = %v, want ErrDestroyed", err)
	}
	if s.SizeBytes() != 0 {
		t.Errorf("SizeBytes after Destroy = %d, want 0", s.SizeBytes())
	}
}

type otherTexture struct{ texstage.Texture }

func TestCopyToForeignTexture(t *testing.T) {
	s := newStaging(t, 16, 16, 1, gputypes.TextureFormatRGBA8Unorm, texstage.KindArray)
	err := s.CopyToTexture(&texstage.CopyRegion{Width: 4, Height: 4, Dst: otherTexture{}})
	if !errors.Is(err, ErrForeignTexture) {
		t.Errorf("err = %v, want ErrForeignTexture", err)
	}
}

func TestSubmitCopiesRows(t *testing.T) {
	s := newStaging(t, 8, 8, 2, gputypes.TextureFormatRGBA8Unorm, texstage.KindArray)
	dst, err := NewTexture(&TextureDescriptor{
		Width: 4, Height: 4, DepthOrArrayLayers: 2,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 2x2 block at (4,2) of slice 1, one byte value per row.
	m, err := s.Map(1)
	if err != nil {
		t.Fatal(err)
	}
	for y := uint32(2); y < 4; y++ {
		off := y*s.bytesPerRow + 4*4
		for i := uint32(0); i < 8; i++ {
			m.Data[off+i] = byte(10 + y)
		}
	}
	if err := s.Unmap(1); err != nil {
		t.Fatal(err)
	}

	err = s.CopyToTexture(&texstage.CopyRegion{
		SrcSlice: 1, SrcX: 4, SrcY: 2, Width: 2, Height: 2,
		Dst: dst, DstX: 1, DstY: 1, DstZ: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	px := dst.Pixels(0)
	for y := uint32(0); y < 4; y++ {
		row := px.Row(1, y)
		for x := uint32(0); x < 4; x++ {
			want := byte(0)
			if x >= 1 && x < 3 && y >= 1 && y < 3 {
				want = byte(10 + y + 1)
			}
			if got := row[x*4]; got != want {
				t.Errorf("layer 1 (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
	if !bytes.Equal(px.SliceData(0), make([]byte, len(px.SliceData(0)))) {
		t.Error("layer 0 was written")
	}
}

func TestSubmitCompressed(t *testing.T) {
	s := newStaging(t, 8, 8, 1, gputypes.TextureFormatBC1RGBAUnorm, texstage.KindArray)
	dst, err := NewTexture(&TextureDescriptor{Width: 8, Height: 8, Format: gputypes.TextureFormatBC1RGBAUnorm})
	if err != nil {
		t.Fatal(err)
	}
	m, _ := s.Map(0)
	// Second block of the second block row.
	copy(m.Data[s.bytesPerRow+8:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	_ = s.Unmap(0)

	if err := s.CopyToTexture(&texstage.CopyRegion{SrcX: 4, SrcY: 4, Width: 4, Height: 4, Dst: dst}); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(); err != nil {
		t.Fatal(err)
	}
	if got := dst.Pixels(0).Row(0, 0)[:8]; !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("first block = %v", got)
	}
}

func TestFailNextSubmit(t *testing.T) {
	b := New()
	res, err := b.CreateStaging(&texstage.StagingDescriptor{
		Width: 4, Height: 4, DepthOrSlices: 1, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("device hung")
	b.FailNextSubmit(boom)
	if err := res.Submit(); !errors.Is(err, boom) {
		t.Errorf("Submit() = %v, want %v", err, boom)
	}
	if err := res.Submit(); err != nil {
		t.Errorf("second Submit() = %v, want nil", err)
	}
	if b.Submits() != 1 {
		t.Errorf("Submits() = %d, want 1", b.Submits())
	}
}

func TestRegistered(t *testing.T) {
	b := texstage.NewBackend(texstage.BackendSoftware)
	if b == nil {
		t.Fatal("software backend not registered")
	}
	if b.Name() != texstage.BackendSoftware {
		t.Errorf("Name() = %q", b.Name())
	}
}
