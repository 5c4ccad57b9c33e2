package texstage_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/texstage"
	"github.com/gogpu/texstage/backend/software"
)

func TestUploadWillStall(t *testing.T) {
	frames := texstage.NewFrameTracker(3, nil)
	s, _ := newSurface(t, 64, 64, 1, 1, rgba8, texstage.WithFrameTracker(frames))
	dst := newTexture(t, software.TextureDescriptor{Width: 8, Height: 8, Format: rgba8})

	if s.UploadWillStall() {
		t.Error("unused surface stalls")
	}
	frames.BeginFrame()
	start(t, s)
	box := s.MapRegion(8, 8, 1, 1, rgba8)
	stop(t, s)
	if err := s.Upload(box, dst, 0); err != nil {
		t.Fatal(err)
	}
	if frame, used := s.LastFrameUsed(); !used || frame != 1 {
		t.Errorf("LastFrameUsed() = %d, %v, want 1, true", frame, used)
	}
	if !s.UploadWillStall() {
		t.Error("surface read by the current frame does not stall")
	}
	for range 3 {
		frames.BeginFrame()
	}
	if s.UploadWillStall() {
		t.Error("surface stalls after BufferMultiplier frames")
	}
}

func TestStartMapRegionStallWarning(t *testing.T) {
	upload := func(t *testing.T, s *texstage.Surface) {
		t.Helper()
		dst := newTexture(t, software.TextureDescriptor{Width: 8, Height: 8, Format: rgba8})
		start(t, s)
		box := s.MapRegion(8, 8, 1, 1, rgba8)
		stop(t, s)
		if err := s.Upload(box, dst, 0); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("warns", func(t *testing.T) {
		buf := captureLog(t)
		frames := texstage.NewFrameTracker(3, nil)
		frames.BeginFrame()
		s, _ := newSurface(t, 64, 64, 1, 1, rgba8, texstage.WithFrameTracker(frames))
		upload(t, s)
		start(t, s)
		defer stop(t, s)
		if !strings.Contains(buf.String(), "will likely stall") {
			t.Errorf("missing stall warning, log: %s", buf.String())
		}
		if !frames.IsFrameFinished(1) {
			t.Error("StartMapRegion did not wait for the upload frame")
		}
	})
	t.Run("silenced by query", func(t *testing.T) {
		buf := captureLog(t)
		frames := texstage.NewFrameTracker(3, nil)
		frames.BeginFrame()
		s, _ := newSurface(t, 64, 64, 1, 1, rgba8, texstage.WithFrameTracker(frames))
		upload(t, s)
		if !s.UploadWillStall() {
			t.Fatal("UploadWillStall() = false")
		}
		start(t, s)
		defer stop(t, s)
		if strings.Contains(buf.String(), "will likely stall") {
			t.Error("warning logged although UploadWillStall was queried")
		}
	})
	t.Run("drain error", func(t *testing.T) {
		boom := errors.New("device removed")
		frames := texstage.NewFrameTracker(3, func() error { return boom })
		frames.BeginFrame()
		s, _ := newSurface(t, 64, 64, 1, 1, rgba8, texstage.WithFrameTracker(frames))
		upload(t, s)
		err := s.StartMapRegion()
		if !errors.Is(err, texstage.ErrDevice) || !errors.Is(err, boom) {
			t.Errorf("StartMapRegion() = %v, want ErrDevice wrapping %v", err, boom)
		}
		if s.IsMapped() {
			t.Error("surface mapped after a failed wait")
		}
	})
}

func TestSurfaceDeviceLost(t *testing.T) {
	devices := texstage.NewDeviceResources()
	s, _ := newSurface(t, 64, 64, 1, 1, rgba8, texstage.WithDeviceResources(devices))
	if devices.Len() != 1 {
		t.Fatalf("surface not registered, Len() = %d", devices.Len())
	}

	start(t, s)
	box := s.MapRegion(8, 8, 1, 1, rgba8)
	devices.NotifyDeviceLost()

	if s.IsMapped() {
		t.Error("lost surface still mapped")
	}
	if box.Valid() {
		t.Error("box survived device loss")
	}
	if err := s.StartMapRegion(); !errors.Is(err, texstage.ErrDeviceLost) {
		t.Errorf("StartMapRegion() = %v, want ErrDeviceLost", err)
	}

	if err := devices.NotifyDeviceRestored(); err != nil {
		t.Fatalf("NotifyDeviceRestored() = %v", err)
	}
	start(t, s)
	if s.MapRegion(64, 64, 1, 1, rgba8).IsEmpty() {
		t.Error("restored surface cannot map")
	}
	stop(t, s)

	s.Destroy()
	if devices.Len() != 0 {
		t.Errorf("destroyed surface still registered, Len() = %d", devices.Len())
	}
}
