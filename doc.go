// Package texstage sub-allocates CPU-writable staging memory for texture
// uploads.
//
// # Overview
//
// A Surface is a fixed-size staging resource (width x height x slices
// texels of one format family). Inside a map bracket it hands out boxes,
// rectangular or volumetric views into its mapped memory, packing many
// independent uploads into one resource. After the bracket the boxes are
// copied into their destination textures with Upload.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gputypes"
//	    "github.com/gogpu/texstage"
//	    "github.com/gogpu/texstage/backend/software"
//	)
//
//	s, err := texstage.NewSurface(software.New(), 256, 256, 1, 1, gputypes.TextureFormatRGBA8Unorm)
//	if err != nil {
//	    return err
//	}
//	defer s.Destroy()
//
//	if err := s.StartMapRegion(); err != nil {
//	    return err
//	}
//	box := s.MapRegion(64, 64, 1, 1, gputypes.TextureFormatRGBA8Unorm)
//	for y := uint32(0); y < box.Height; y++ {
//	    copy(box.Row(0, y), pixels[y*64*4:])
//	}
//	if err := s.StopMapRegion(); err != nil {
//	    return err
//	}
//	err = s.Upload(box, dst, 0)
//
// # Allocation
//
// Each slice keeps a list of free rectangles. A request takes the smallest
// free rectangle that holds it (best fit). A rectangle at least twice the
// request in both directions is first cut into quadrants, repeatedly, so
// that small requests leave power-of-two sized leftovers behind. Requests
// spanning several slices or depth planes take the same rectangle from
// consecutive slices. Compressed formats always consume whole blocks.
//
// Free rectangles are never merged. Instead every bracket starts with the
// whole surface free, which bounds fragmentation to one bracket.
//
// An exhausted surface returns an empty box. The pooling layer (Manager)
// reacts by picking or creating another surface.
//
// # Backends
//
// The allocator is backend-agnostic. A Backend only creates staging memory
// that can be mapped, unmapped and copied into textures:
//   - backend/native: gogpu/wgpu HAL buffers (Vulkan, Metal, DX12, GLES)
//   - backend/webgpu: cogentcore/webgpu queue writes
//   - backend/software: CPU memory, used headless and in tests
//
// # Thread Safety
//
// A Surface must be used from one goroutine at a time. Manager,
// FrameTracker and DeviceResources are safe for concurrent use.
package texstage
