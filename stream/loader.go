// Package stream uploads decoded images into textures through a pool of
// staging surfaces.
//
// A Loader converts images to texel data on a worker pool, packs as many
// of them as fit into each staging surface it acquires from a
// texstage.Manager, and uploads them in one bracket per surface.
//
//	loader, err := stream.NewLoader(manager)
//	...
//	err = loader.Load(ctx, stream.Image{Src: img, Dst: tex})
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/texstage"
	"github.com/gogpu/texstage/internal/cache"
)

var (
	// ErrLoaderClosed is returned by Load after Close.
	ErrLoaderClosed = errors.New("stream: loader closed")

	// ErrNilManager is returned by NewLoader without a manager.
	ErrNilManager = errors.New("stream: manager is nil")
)

// Image is one upload of Src into a region of Dst.
type Image struct {
	Src image.Image
	Dst texstage.Texture

	// Mip is the destination mip level.
	Mip uint32

	// X and Y are the destination origin; Layer is the depth plane of a 3D
	// destination or the array layer of any other.
	X, Y  uint32
	Layer uint32

	// Width and Height scale Src when set. They default to the size of Src.
	Width, Height uint32

	// Key identifies Src for the loader's pixel cache. Images with the
	// same key, size and format are converted once. Empty disables caching.
	Key string
}

// cacheKey identifies converted pixels.
type cacheKey struct {
	key           string
	width, height uint32
	format        gputypes.TextureFormat
}

func (im *Image) size() (uint32, uint32) {
	w, h := im.Width, im.Height
	if w == 0 {
		w = uint32(im.Src.Bounds().Dx())
	}
	if h == 0 {
		h = uint32(im.Src.Bounds().Dy())
	}
	return w, h
}

func (im *Image) dstBox(w, h uint32) texstage.TextureBox {
	b := texstage.TextureBox{X: im.X, Y: im.Y, Width: w, Height: h, Depth: 1, NumSlices: 1}
	if im.Dst.Dimension() == gputypes.TextureDimension3D {
		b.Z = im.Layer
	} else {
		b.SliceStart = im.Layer
	}
	return b
}

// Loader streams images into textures. It is safe for concurrent use;
// loads are serialized on the staging side.
type Loader struct {
	manager *texstage.Manager
	pool    worker.DynamicWorkerPool
	pixels  *cache.Cache[cacheKey, *pixels]
	opts    options
	log     *slog.Logger

	mu sync.Mutex // serializes staging

	// closing is canceled by Close; in-flight loads observe it and return
	// ErrLoaderClosed.
	closing context.Context
	cancel  context.CancelFunc
	loads   sync.WaitGroup

	idMu   sync.Mutex
	nextID int
	closed bool
}

// NewLoader creates a loader drawing staging surfaces from manager.
func NewLoader(manager *texstage.Manager, opts ...Option) (*Loader, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = texstage.Logger()
	}
	closing, cancel := context.WithCancel(context.Background())
	return &Loader{
		manager: manager,
		pool:    worker.NewDynamicWorkerPool(o.workers, 4*o.workers, time.Second),
		pixels:  cache.New[cacheKey, *pixels](o.cacheBytes, func(p *pixels) int64 { return int64(len(p.data)) }),
		opts:    o,
		log:     log,
		closing: closing,
		cancel:  cancel,
	}, nil
}

// Stats reports the pixel cache.
type Stats struct {
	CachedImages int
	CachedBytes  int64
	Hits, Misses uint64
}

// Stats returns a snapshot of the pixel cache.
func (l *Loader) Stats() Stats {
	st := l.pixels.Stats()
	return Stats{CachedImages: st.Len, CachedBytes: st.Cost, Hits: st.Hits, Misses: st.Misses}
}

// Close cancels in-flight loads, waits for them to return and stops the
// worker pool. The manager stays open.
func (l *Loader) Close() {
	l.idMu.Lock()
	if l.closed {
		l.idMu.Unlock()
		return
	}
	l.closed = true
	l.idMu.Unlock()

	l.cancel()
	l.loads.Wait()
	l.pool.Stop()
}

// begin registers a load. The returned context is canceled with
// ErrLoaderClosed when Close is called.
func (l *Loader) begin(ctx context.Context) (context.Context, func(), error) {
	l.idMu.Lock()
	defer l.idMu.Unlock()
	if l.closed {
		return nil, nil, ErrLoaderClosed
	}
	l.loads.Add(1)

	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(l.closing, func() { cancel(ErrLoaderClosed) })
	return ctx, func() {
		stop()
		cancel(nil)
		l.loads.Done()
	}, nil
}

// Load converts and uploads every image. Images are uploaded in order
// within a format family; the first error stops the load.
func (l *Loader) Load(ctx context.Context, images ...Image) error {
	ctx, done, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	for i := range images {
		im := &images[i]
		if im.Src == nil || im.Dst == nil {
			return fmt.Errorf("stream: image %d: missing source or destination", i)
		}
		if !CanEncode(im.Dst.Format()) {
			return fmt.Errorf("%w: image %d: %v", texstage.ErrUnsupportedFormat, i, im.Dst.Format())
		}
	}

	encoded, err := l.encodeAll(ctx, images)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, family := range families(images) {
		if err := l.stage(ctx, images, encoded, family); err != nil {
			return err
		}
	}
	return nil
}

// LoadMips fills every mip level of layer of dst from src.
func (l *Loader) LoadMips(ctx context.Context, src image.Image, dst texstage.Texture, layer uint32) error {
	images := make([]Image, dst.MipLevelCount())
	for mip := range images {
		images[mip] = Image{
			Src:    src,
			Dst:    dst,
			Mip:    uint32(mip),
			Layer:  layer,
			Width:  max(dst.Width()>>mip, 1),
			Height: max(dst.Height()>>mip, 1),
		}
	}
	return l.Load(ctx, images...)
}

// encodeAll converts the images on the worker pool.
func (l *Loader) encodeAll(ctx context.Context, images []Image) ([]*pixels, error) {
	l.idMu.Lock()
	first := l.nextID
	l.nextID += len(images)
	l.idMu.Unlock()

	encoded := make([]*pixels, len(images))
	errs := make([]error, len(images))
	var wg sync.WaitGroup
	for i := range images {
		im := &images[i]
		w, h := im.size()
		key := cacheKey{key: im.Key, width: w, height: h, format: im.Dst.Format()}
		if im.Key != "" {
			if px, ok := l.pixels.Get(key); ok {
				encoded[i] = px
				continue
			}
		}
		wg.Add(1)
		l.pool.SubmitTask(worker.Task{
			ID:      first + i,
			Payload: im,
			Do: func() (any, error) {
				defer wg.Done()
				if ctx.Err() != nil {
					errs[i] = context.Cause(ctx)
					return nil, errs[i]
				}
				encoded[i], errs[i] = encode(im.Src, w, h, im.Dst.Format(), l.opts.scaler)
				if errs[i] == nil && im.Key != "" {
					l.pixels.Set(key, encoded[i])
				}
				return encoded[i], errs[i]
			},
		})
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("stream: image %d: %w", i, err)
		}
	}
	return encoded, nil
}

// families returns the format families of images in order of first use.
func families(images []Image) []gputypes.TextureFormat {
	var out []gputypes.TextureFormat
	seen := make(map[gputypes.TextureFormat]bool)
	for i := range images {
		f := texstage.Family(images[i].Dst.Format())
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// pendingUpload is an image staged in the open bracket.
type pendingUpload struct {
	image  *Image
	pixels *pixels
	box    texstage.TextureBox
}

// batch is one acquired surface and what was staged into it.
type batch struct {
	surface *texstage.Surface
	pending []pendingUpload
}

// stage uploads the images of one format family, packing them into as few
// surfaces as the allocator allows.
func (l *Loader) stage(ctx context.Context, images []Image, encoded []*pixels, family gputypes.TextureFormat) error {
	var b *batch
	for i := range images {
		im, px := &images[i], encoded[i]
		if texstage.Family(im.Dst.Format()) != family {
			continue
		}
		if ctx.Err() != nil {
			return l.abort(b, context.Cause(ctx))
		}

		if b != nil {
			box := b.surface.MapRegion(px.width, px.height, 1, 1, px.format)
			if !box.IsEmpty() {
				copyRows(box, px)
				b.pending = append(b.pending, pendingUpload{image: im, pixels: px, box: box})
				continue
			}
			if err := l.flush(b); err != nil {
				return err
			}
		}

		var err error
		if b, err = l.open(px); err != nil {
			return err
		}
		box := b.surface.MapRegion(px.width, px.height, 1, 1, px.format)
		if box.IsEmpty() {
			return l.abort(b, fmt.Errorf("stream: image %d (%dx%d) does not fit %s",
				i, px.width, px.height, b.surface.Label()))
		}
		copyRows(box, px)
		b.pending = append(b.pending, pendingUpload{image: im, pixels: px, box: box})
	}
	if b == nil {
		return nil
	}
	return l.flush(b)
}

// open acquires a surface that fits at least px and opens its bracket.
func (l *Loader) open(px *pixels) (*batch, error) {
	w := max(px.width, l.opts.surfaceSize)
	h := max(px.height, l.opts.surfaceSize)
	s, err := l.manager.Acquire(w, h, 1, 1, px.format, l.opts.ratio)
	if err != nil {
		return nil, fmt.Errorf("stream: acquire staging surface: %w", err)
	}
	if err := s.StartMapRegion(); err != nil {
		if rerr := l.manager.Release(s); rerr != nil {
			l.log.Warn("stream: release staging surface", "label", s.Label(), "err", rerr)
		}
		return nil, err
	}
	return &batch{surface: s}, nil
}

// flush closes the bracket, uploads every staged image and releases the
// surface.
func (l *Loader) flush(b *batch) error {
	s := b.surface
	defer func() {
		if err := l.manager.Release(s); err != nil {
			l.log.Warn("stream: release staging surface", "label", s.Label(), "err", err)
		}
	}()
	if err := s.StopMapRegion(); err != nil {
		return err
	}
	for _, p := range b.pending {
		err := s.Upload(p.box, p.image.Dst, p.image.Mip,
			texstage.WithDstBox(p.image.dstBox(p.pixels.width, p.pixels.height)),
			texstage.WithCPUSrcBox(p.pixels.box()))
		if err != nil {
			return fmt.Errorf("stream: upload into mip %d: %w", p.image.Mip, err)
		}
	}
	l.log.Debug("stream: batch uploaded", "surface", s.Label(), "images", len(b.pending))
	return nil
}

// abort releases a batch without uploading it.
func (l *Loader) abort(b *batch, err error) error {
	if b != nil {
		if rerr := l.manager.Release(b.surface); rerr != nil {
			l.log.Warn("stream: release staging surface", "label", b.surface.Label(), "err", rerr)
		}
	}
	return err
}

func copyRows(box texstage.TextureBox, px *pixels) {
	for y := uint32(0); y < px.height; y++ {
		row := box.Row(0, y)
		off := y * px.bytesPerRow
		copy(row, px.data[off:off+px.bytesPerRow])
	}
}
