package stream

import (
	"log/slog"
	"runtime"

	"golang.org/x/image/draw"
)

// DefaultSurfaceSize is the edge length of staging surfaces the loader
// acquires for batches of small images.
const DefaultSurfaceSize = 512

// DefaultCacheBytes bounds the converted pixels kept for keyed images.
const DefaultCacheBytes = 32 << 20

// Option configures a Loader.
type Option func(*options)

type options struct {
	workers     int
	surfaceSize uint32
	ratio       uint32
	cacheBytes  int64
	scaler      draw.Scaler
	log         *slog.Logger
}

func defaultOptions() options {
	return options{
		workers:     runtime.GOMAXPROCS(0),
		surfaceSize: DefaultSurfaceSize,
		cacheBytes:  DefaultCacheBytes,
		scaler:      draw.BiLinear,
	}
}

// WithWorkers sets the number of goroutines converting images.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSurfaceSize sets the minimum edge length of acquired staging
// surfaces. Larger surfaces batch more images per upload.
func WithSurfaceSize(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.surfaceSize = n
		}
	}
}

// WithConsumptionRatio is passed to Manager.Acquire.
func WithConsumptionRatio(percent uint32) Option {
	return func(o *options) {
		o.ratio = percent
	}
}

// WithCacheSize bounds the pixel cache of keyed images in bytes. 0
// removes the bound.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheBytes = max(bytes, 0)
	}
}

// WithScaler sets the scaler used when an image is resized, for example
// draw.CatmullRom for higher quality mips.
func WithScaler(s draw.Scaler) Option {
	return func(o *options) {
		if s != nil {
			o.scaler = s
		}
	}
}

// WithLogger sets the logger. The default is texstage.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}
