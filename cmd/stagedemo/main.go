// Command stagedemo streams generated images into a texture array through
// a staging surface pool and writes the result as PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/texstage"
	"github.com/gogpu/texstage/backend/native"
	"github.com/gogpu/texstage/backend/software"
	"github.com/gogpu/texstage/backend/webgpu"
	"github.com/gogpu/texstage/stream"
)

func main() {
	var (
		backend = flag.String("backend", "", "staging backend (native, webgpu, software); empty picks the best")
		size    = flag.Int("size", 128, "tile size")
		tiles   = flag.Int("tiles", 16, "tiles per frame")
		frames  = flag.Int("frames", 4, "frames to stream")
		budget  = flag.Uint64("budget", 8<<20, "staging budget in bytes")
		output  = flag.String("output", "stagedemo.png", "output file (software backend only)")
		verbose = flag.Bool("v", false, "log staging activity")
	)
	flag.Parse()

	if *verbose {
		texstage.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	b, err := openBackend(*backend)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	log.Printf("Using %s backend", b.Name())

	tracker := texstage.NewFrameTracker(0, drainFunc(b))
	mgr, err := texstage.NewManager(b,
		texstage.WithBudget(*budget),
		texstage.WithManagerFrameTracker(tracker))
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	defer mgr.Close()

	loader, err := stream.NewLoader(mgr, stream.WithSurfaceSize(uint32(*size)*2))
	if err != nil {
		log.Fatalf("Failed to create loader: %v", err)
	}
	defer loader.Close()

	tileSize := uint32(*size)
	dst, err := newTexture(b, tileSize*4, tileSize*uint32((*tiles+3)/4), uint32(*frames))
	if err != nil {
		log.Fatalf("Failed to create texture: %v", err)
	}

	ctx := context.Background()
	for frame := 0; frame < *frames; frame++ {
		tracker.BeginFrame()
		images := make([]stream.Image, *tiles)
		for i := range images {
			images[i] = stream.Image{
				Src:   tile(*size, frame, i),
				Dst:   dst,
				X:     uint32(i%4) * tileSize,
				Y:     uint32(i/4) * tileSize,
				Layer: uint32(frame),
			}
		}
		if err := loader.Load(ctx, images...); err != nil {
			log.Fatalf("Frame %d: %v", frame, err)
		}
		log.Printf("Frame %d: %s", frame, mgr.Stats())
	}

	sw, ok := dst.(*software.Texture)
	if !ok {
		log.Printf("Uploaded %d frames; output is only written by the software backend", *frames)
		return
	}
	if err := savePNG(sw, *output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Demo saved to %s\n", *output)
}

func openBackend(name string) (texstage.Backend, error) {
	if name == "" {
		return texstage.DefaultBackend()
	}
	b := texstage.NewBackend(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", texstage.ErrBackendNotAvailable, name)
	}
	return b, nil
}

func drainFunc(b texstage.Backend) func() error {
	if nb, ok := b.(*native.Backend); ok {
		return nb.Drain
	}
	return nil
}

func newTexture(b texstage.Backend, width, height, layers uint32) (texstage.Texture, error) {
	switch b := b.(type) {
	case *native.Backend:
		tex, err := native.CreateTexture(b.Device(), &native.TextureDescriptor{
			Label:  "stagedemo",
			Size:   hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: layers},
			Format: gputypes.TextureFormatRGBA8Unorm,
		})
		if err != nil {
			return nil, err
		}
		return tex, nil
	case *webgpu.Backend:
		tex, err := b.CreateTexture(&webgpu.TextureDescriptor{
			Label:              "stagedemo",
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: layers,
			Format:             gputypes.TextureFormatRGBA8Unorm,
		})
		if err != nil {
			return nil, err
		}
		return tex, nil
	}
	tex, err := software.NewTexture(&software.TextureDescriptor{
		Label:              "stagedemo",
		Width:              width,
		Height:             height,
		DepthOrArrayLayers: layers,
		Format:             gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		return nil, err
	}
	return tex, nil
}

// tile draws a gradient with a frame and index dependent hue.
func tile(size, frame, index int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	base := uint8(frame*60 + index*12)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: base + uint8(x*255/size),
				G: uint8(y * 255 / size),
				B: 255 - base,
				A: 255,
			})
		}
	}
	return img
}

// savePNG writes every layer of tex below each other.
func savePNG(tex *software.Texture, path string) error {
	pix := tex.Pixels(0)
	w, h, layers := int(tex.Width()), int(tex.Height()), int(tex.DepthOrArrayLayers())
	img := image.NewNRGBA(image.Rect(0, 0, w, h*layers))
	for l := 0; l < layers; l++ {
		for y := 0; y < h; y++ {
			copy(img.Pix[(l*h+y)*img.Stride:], pix.Row(uint32(l), uint32(y)))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
