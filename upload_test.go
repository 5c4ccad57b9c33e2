package texstage_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage"
	"github.com/gogpu/texstage/backend/software"
)

// mappedBox returns a stopped surface and a filled w x h box mapped from it.
func mappedBox(t *testing.T, w, h uint32, v byte) (*texstage.Surface, texstage.TextureBox) {
	t.Helper()
	s, _ := newSurface(t, 64, 64, 1, 1, rgba8)
	start(t, s)
	box := s.MapRegion(w, h, 1, 1, rgba8)
	if box.IsEmpty() {
		t.Fatal("MapRegion failed")
	}
	fill(box, v)
	stop(t, s)
	return s, box
}

func TestUploadValidation(t *testing.T) {
	dst := newTexture(t, software.TextureDescriptor{Width: 32, Height: 32, MipLevelCount: 2, Format: rgba8})

	t.Run("empty box", func(t *testing.T) {
		s, _ := mappedBox(t, 8, 8, 1)
		if err := s.Upload(texstage.TextureBox{}, dst, 0); !errors.Is(err, texstage.ErrEmptyBox) {
			t.Errorf("err = %v, want ErrEmptyBox", err)
		}
	})
	t.Run("foreign box", func(t *testing.T) {
		s, _ := mappedBox(t, 8, 8, 1)
		_, foreign := mappedBox(t, 8, 8, 1)
		if err := s.Upload(foreign, dst, 0); !errors.Is(err, texstage.ErrNotOwned) {
			t.Errorf("err = %v, want ErrNotOwned", err)
		}
	})
	t.Run("cpu box", func(t *testing.T) {
		s, _ := mappedBox(t, 8, 8, 1)
		cpu := texstage.NewTextureBox(make([]byte, 8*8*4), 8, 8, 1, 1, rgba8, 32, 256)
		if err := s.Upload(cpu, dst, 0); !errors.Is(err, texstage.ErrNotOwned) {
			t.Errorf("err = %v, want ErrNotOwned", err)
		}
	})
	t.Run("still mapped", func(t *testing.T) {
		s, _ := newSurface(t, 64, 64, 1, 1, rgba8)
		start(t, s)
		defer stop(t, s)
		box := s.MapRegion(8, 8, 1, 1, rgba8)
		if err := s.Upload(box, dst, 0); !errors.Is(err, texstage.ErrStillMapped) {
			t.Errorf("err = %v, want ErrStillMapped", err)
		}
	})
	t.Run("stale box", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		start(t, s)
		stop(t, s)
		if err := s.Upload(box, dst, 0); !errors.Is(err, texstage.ErrStaleBox) {
			t.Errorf("err = %v, want ErrStaleBox", err)
		}
	})
	t.Run("tampered box", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		box.Y += 8
		if err := s.Upload(box, dst, 0); !errors.Is(err, texstage.ErrNotOwned) {
			t.Errorf("err = %v, want ErrNotOwned", err)
		}
	})
	t.Run("nil destination", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		if err := s.Upload(box, nil, 0); !errors.Is(err, texstage.ErrBoxOutOfBounds) {
			t.Errorf("err = %v, want ErrBoxOutOfBounds", err)
		}
	})
	t.Run("mip out of range", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		if err := s.Upload(box, dst, 2); !errors.Is(err, texstage.ErrMipOutOfRange) {
			t.Errorf("err = %v, want ErrMipOutOfRange", err)
		}
	})
	t.Run("multisampled", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		msaa := newTexture(t, software.TextureDescriptor{Width: 32, Height: 32, SampleCount: 4, Format: rgba8})
		if err := s.Upload(box, msaa, 0); !errors.Is(err, texstage.ErrMultisampled) {
			t.Errorf("err = %v, want ErrMultisampled", err)
		}
	})
	t.Run("format family", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		r8 := newTexture(t, software.TextureDescriptor{Width: 32, Height: 32, Format: gputypes.TextureFormatR8Unorm})
		if err := s.Upload(box, r8, 0); !errors.Is(err, texstage.ErrFormatMismatch) {
			t.Errorf("err = %v, want ErrFormatMismatch", err)
		}
	})
	t.Run("size mismatch", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		err := s.Upload(box, dst, 0, texstage.WithDstBox(texstage.TextureBox{Width: 8, Height: 4}))
		if !errors.Is(err, texstage.ErrSizeMismatch) {
			t.Errorf("err = %v, want ErrSizeMismatch", err)
		}
	})
	t.Run("outside mip", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 1)
		// Mip 1 is 16x16.
		err := s.Upload(box, dst, 1, texstage.WithDstBox(texstage.TextureBox{X: 12, Width: 8, Height: 8}))
		if !errors.Is(err, texstage.ErrBoxOutOfBounds) {
			t.Errorf("err = %v, want ErrBoxOutOfBounds", err)
		}
	})

	if !bytes.Equal(dst.Pixels(0).Data(), make([]byte, len(dst.Pixels(0).Data()))) {
		t.Error("a rejected upload wrote pixels")
	}
}

func TestUploadMisalignedCompressed(t *testing.T) {
	bc1 := gputypes.TextureFormatBC1RGBAUnorm
	s, _ := newSurface(t, 32, 32, 1, 1, bc1)
	dst := newTexture(t, software.TextureDescriptor{Width: 32, Height: 32, Format: bc1})
	start(t, s)
	box := s.MapRegion(8, 8, 1, 1, bc1)
	stop(t, s)

	err := s.Upload(box, dst, 0, texstage.WithDstBox(texstage.TextureBox{X: 2, Width: 8, Height: 8}))
	if !errors.Is(err, texstage.ErrBoxOutOfBounds) {
		t.Errorf("err = %v, want ErrBoxOutOfBounds", err)
	}
	if err := s.Upload(box, dst, 0, texstage.WithDstBox(texstage.TextureBox{X: 4, Y: 8, Width: 8, Height: 8})); err != nil {
		t.Errorf("aligned upload = %v", err)
	}
}

func TestUploadMip(t *testing.T) {
	s, box := mappedBox(t, 8, 8, 0x7f)
	dst := newTexture(t, software.TextureDescriptor{Width: 32, Height: 32, MipLevelCount: 3, Format: rgba8})
	if err := s.Upload(box, dst, 2); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if !holds(dst.Pixels(2), 0x7f) {
		t.Error("mip 2 not written")
	}
	if !holds(dst.Pixels(0), 0) {
		t.Error("mip 0 written")
	}
}

func TestUploadVolume(t *testing.T) {
	s, _ := newSurface(t, 16, 16, 4, 1, rgba8)
	dst := newTexture(t, software.TextureDescriptor{
		Width: 8, Height: 8, DepthOrArrayLayers: 4,
		Dimension: gputypes.TextureDimension3D, Format: rgba8,
	})

	start(t, s)
	box := s.MapRegion(8, 8, 3, 1, rgba8)
	if box.IsEmpty() {
		t.Fatal("MapRegion failed")
	}
	if box.Depth != 3 || box.SliceStart != 0 {
		t.Fatalf("volume box = %+v", box)
	}
	for i := uint32(0); i < 3; i++ {
		fill(box.SubBox(0, 0, i, 8, 8, 1), byte(i+1))
	}
	stop(t, s)

	err := s.Upload(box, dst, 0, texstage.WithDstBox(texstage.TextureBox{Z: 1, Width: 8, Height: 8, Depth: 3}))
	if err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	px := dst.Pixels(0)
	for z, want := range []byte{0, 1, 2, 3} {
		if !holds(px.SubBox(0, 0, uint32(z), 8, 8, 1), want) {
			t.Errorf("depth plane %d does not hold %d", z, want)
		}
	}
}

func TestUploadArray(t *testing.T) {
	s, _ := newSurface(t, 16, 16, 1, 4, rgba8)
	dst := newTexture(t, software.TextureDescriptor{Width: 8, Height: 8, DepthOrArrayLayers: 4, Format: rgba8})

	start(t, s)
	box := s.MapRegion(8, 8, 1, 2, rgba8)
	if box.IsEmpty() {
		t.Fatal("MapRegion failed")
	}
	if box.NumSlices != 2 || box.Z != 0 {
		t.Fatalf("array box = %+v", box)
	}
	fill(box.SubBox(0, 0, 0, 8, 8, 1), 0xa0)
	fill(box.SubBox(0, 0, 1, 8, 8, 1), 0xb0)
	stop(t, s)

	err := s.Upload(box, dst, 0, texstage.WithDstBox(texstage.TextureBox{SliceStart: 2, Width: 8, Height: 8, NumSlices: 2}))
	if err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	px := dst.Pixels(0)
	for layer, want := range []byte{0, 0, 0xa0, 0xb0} {
		if !holds(px.SubBox(0, 0, uint32(layer), 8, 8, 1), want) {
			t.Errorf("layer %d does not hold %#x", layer, want)
		}
	}
}

func TestUploadSysRAMCopy(t *testing.T) {
	cpuData := bytes.Repeat([]byte{0x42}, 8*8*4)
	cpu := texstage.NewTextureBox(cpuData, 8, 8, 1, 1, rgba8, 8*4, 8*8*4)
	dstBox := texstage.WithDstBox(texstage.TextureBox{X: 8, Y: 8, Width: 8, Height: 8})

	t.Run("mirrored", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 0x42)
		dst := newTexture(t, software.TextureDescriptor{Width: 16, Height: 16, Format: rgba8, KeepSysRAM: true})
		if err := s.Upload(box, dst, 0, dstBox, texstage.WithCPUSrcBox(cpu)); err != nil {
			t.Fatalf("Upload() = %v", err)
		}
		mirror := dst.SysRAMCopy(0)
		if !holds(mirror.SubBox(8, 8, 0, 8, 8, 1), 0x42) {
			t.Error("system RAM copy not refreshed")
		}
		if !holds(mirror.SubBox(0, 0, 0, 8, 8, 1), 0) {
			t.Error("system RAM copy written outside the box")
		}
	})
	t.Run("skipped", func(t *testing.T) {
		s, box := mappedBox(t, 8, 8, 0x42)
		dst := newTexture(t, software.TextureDescriptor{Width: 16, Height: 16, Format: rgba8, KeepSysRAM: true})
		err := s.Upload(box, dst, 0, dstBox, texstage.WithCPUSrcBox(cpu), texstage.SkipSysRAMCopy())
		if err != nil {
			t.Fatalf("Upload() = %v", err)
		}
		if !holds(dst.SysRAMCopy(0), 0) {
			t.Error("SkipSysRAMCopy still wrote the system RAM copy")
		}
		if !holds(dst.Pixels(0).SubBox(8, 8, 0, 8, 8, 1), 0x42) {
			t.Error("texture not uploaded")
		}
	})
	t.Run("no cpu source", func(t *testing.T) {
		buf := captureLog(t)
		s, box := mappedBox(t, 8, 8, 0x42)
		dst := newTexture(t, software.TextureDescriptor{Width: 16, Height: 16, Format: rgba8, KeepSysRAM: true})
		if err := s.Upload(box, dst, 0, dstBox); err != nil {
			t.Fatalf("Upload() = %v", err)
		}
		if !strings.Contains(buf.String(), "system RAM copy left stale") {
			t.Errorf("missing debug message, log: %s", buf.String())
		}
	})
}

func TestUploadDeviceError(t *testing.T) {
	s, b := newSurface(t, 64, 64, 1, 1, rgba8)
	dst := newTexture(t, software.TextureDescriptor{Width: 16, Height: 16, Format: rgba8})
	start(t, s)
	box := s.MapRegion(8, 8, 1, 1, rgba8)
	stop(t, s)

	boom := errors.New("queue hung")
	b.FailNextSubmit(boom)
	err := s.Upload(box, dst, 0)
	if !errors.Is(err, texstage.ErrDevice) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want ErrDevice wrapping %v", err, boom)
	}
	if _, used := s.LastFrameUsed(); used {
		t.Error("failed upload marked the surface used")
	}
	if err := s.Upload(box, dst, 0); err != nil {
		t.Errorf("retry = %v", err)
	}
}

func TestUploadTwice(t *testing.T) {
	s, box := mappedBox(t, 8, 8, 9)
	a := newTexture(t, software.TextureDescriptor{Width: 8, Height: 8, Format: rgba8})
	b := newTexture(t, software.TextureDescriptor{Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8UnormSrgb})
	if err := s.Upload(box, a, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Upload(box, b, 0); err != nil {
		t.Fatal(err)
	}
	if !holds(a.Pixels(0), 9) || !holds(b.Pixels(0), 9) {
		t.Error("box not uploaded to both textures")
	}
}
