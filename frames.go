package texstage

import "sync"

// DefaultBufferMultiplier is the number of frames the CPU may run ahead of
// the GPU.
const DefaultBufferMultiplier = 3

// FrameTracker counts frames and tracks which of them the GPU has finished.
//
// The renderer calls BeginFrame once per frame and FrameFinished when it
// learns the GPU completed one. Beginning a frame also retires the frame
// BufferMultiplier frames back, since the CPU never runs further ahead.
//
// FrameTracker is safe for concurrent use.
type FrameTracker struct {
	mu         sync.Mutex
	frame      uint64
	completed  uint64
	multiplier uint64

	// drain blocks until every submitted command finished. nil means
	// submitted work is complete on return (software devices).
	drain func() error
}

// NewFrameTracker creates a tracker. multiplier 0 uses
// DefaultBufferMultiplier. drain may be nil.
func NewFrameTracker(multiplier uint32, drain func() error) *FrameTracker {
	if multiplier == 0 {
		multiplier = DefaultBufferMultiplier
	}
	return &FrameTracker{multiplier: uint64(multiplier), drain: drain}
}

// BeginFrame advances the frame counter and returns the new frame.
func (f *FrameTracker) BeginFrame() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame++
	if f.frame > f.multiplier && f.frame-f.multiplier > f.completed {
		f.completed = f.frame - f.multiplier
	}
	return f.frame
}

// FrameCount returns the current frame.
func (f *FrameTracker) FrameCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

// BufferMultiplier returns how many frames the CPU may run ahead.
func (f *FrameTracker) BufferMultiplier() uint64 { return f.multiplier }

// FrameFinished records that the GPU completed frame n and every frame
// before it.
func (f *FrameTracker) FrameFinished(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > f.completed {
		f.completed = n
	}
}

// IsFrameFinished reports whether the GPU is done with frame n.
func (f *FrameTracker) IsFrameFinished(n uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return n <= f.completed
}

// WaitForFrame blocks until frame n finished, draining the device when it
// has not.
func (f *FrameTracker) WaitForFrame(n uint64) error {
	if f.IsFrameFinished(n) {
		return nil
	}
	if f.drain != nil {
		if err := f.drain(); err != nil {
			return err
		}
	}
	f.FrameFinished(f.FrameCount())
	return nil
}
