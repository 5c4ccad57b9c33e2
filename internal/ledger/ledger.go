// Package ledger tracks the free regions of a staging surface during one
// map bracket and carves allocations out of them.
//
// The ledger keeps one list of non-overlapping free boxes per slice. Reset
// fills every slice with a single box spanning the whole surface; each
// successful allocation removes the consumed rectangle from the lists and
// pushes the remainders back. Free boxes are never coalesced: fragmentation
// is bounded by the bracket, because Reset discards everything.
//
// A Ledger is not safe for concurrent use.
package ledger

import (
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is returned by Validate when the free lists break an invariant.
var ErrCorrupt = errors.New("ledger: free list corrupt")

// Box is a free (or consumed) rectangle within one slice, in texels.
type Box struct {
	X, Y          uint32
	Width, Height uint32
}

// Contains reports whether the rectangle (x, y, w, h) lies fully inside b.
func (b Box) Contains(x, y, w, h uint32) bool {
	return x >= b.X && y >= b.Y &&
		x+w <= b.X+b.Width && y+h <= b.Y+b.Height
}

// Overlaps reports whether b and o share at least one texel.
func (b Box) Overlaps(o Box) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// Area returns the number of texels covered by b.
func (b Box) Area() uint64 { return uint64(b.Width) * uint64(b.Height) }

// Empty reports whether b covers no texels.
func (b Box) Empty() bool { return b.Width == 0 || b.Height == 0 }

// String returns a string representation of the box.
func (b Box) String() string {
	return fmt.Sprintf("Box(%d,%d %dx%d)", b.X, b.Y, b.Width, b.Height)
}

// Ledger is the per-slice free-region bookkeeping of one staging surface.
type Ledger struct {
	width, height uint32
	slices        uint32

	// Block footprint of the surface's format family; 1x1 when uncompressed.
	blockW, blockH uint32

	free [][]Box
}

// New creates a ledger for a surface of width x height texels with the
// given number of slices (array layers or depth planes). blockW and blockH
// are the compressed block dimensions, 1 for uncompressed formats.
//
// The ledger starts cleared; call Reset to open a bracket.
func New(width, height, slices, blockW, blockH uint32) *Ledger {
	if blockW == 0 {
		blockW = 1
	}
	if blockH == 0 {
		blockH = 1
	}
	return &Ledger{
		width:  width,
		height: height,
		slices: slices,
		blockW: blockW,
		blockH: blockH,
	}
}

// Reset discards all state and makes every slice fully free.
func (l *Ledger) Reset() {
	if cap(l.free) < int(l.slices) {
		l.free = make([][]Box, l.slices)
	}
	l.free = l.free[:l.slices]
	for i := range l.free {
		l.free[i] = append(l.free[i][:0], Box{Width: l.width, Height: l.height})
	}
}

// Clear drops every free list. Allocation fails until the next Reset.
func (l *Ledger) Clear() {
	l.free = l.free[:0]
}

// Active reports whether the ledger is between Reset and Clear.
func (l *Ledger) Active() bool { return len(l.free) != 0 }

// NumSlices returns the number of slices tracked by the ledger.
func (l *Ledger) NumSlices() uint32 { return l.slices }

// Boxes returns a copy of the free list of a slice.
func (l *Ledger) Boxes(slice uint32) []Box {
	if int(slice) >= len(l.free) {
		return nil
	}
	out := make([]Box, len(l.free[slice]))
	copy(out, l.free[slice])
	return out
}

// FreeArea returns the total free texels of a slice.
func (l *Ledger) FreeArea(slice uint32) uint64 {
	if int(slice) >= len(l.free) {
		return 0
	}
	var area uint64
	for _, b := range l.free[slice] {
		area += b.Area()
	}
	return area
}

// RoundUp returns the request size rounded up to whole blocks. ok is false
// when the rounded size does not fit in a uint32.
func (l *Ledger) RoundUp(w, h uint32) (rw, rh uint32, ok bool) {
	rw, okW := roundUp(w, l.blockW)
	rh, okH := roundUp(h, l.blockH)
	return rw, rh, okW && okH
}

func roundUp(v, m uint32) (uint32, bool) {
	if m <= 1 {
		return v, true
	}
	r := (uint64(v) + uint64(m) - 1) / uint64(m) * uint64(m)
	if r > math.MaxUint32 {
		return 0, false
	}
	return uint32(r), true
}

// Allocate carves a w x h rectangle out of a single slice.
//
// Among every free box of every slice that can hold the (block rounded)
// request, the smallest one is chosen. The first candidate found wins ties;
// a later candidate replaces it only if it is strictly narrower or strictly
// shorter. The returned box is the consumed area, including block padding.
func (l *Ledger) Allocate(w, h uint32) (Box, uint32, bool) {
	if w == 0 || h == 0 {
		return Box{}, 0, false
	}
	w, h, ok := l.RoundUp(w, h)
	if !ok {
		return Box{}, 0, false
	}

	bestSlice, bestIdx := 0, -1
	for s, boxes := range l.free {
		for i, b := range boxes {
			if w > b.Width || h > b.Height {
				continue
			}
			if bestIdx < 0 {
				bestSlice, bestIdx = s, i
				continue
			}
			best := l.free[bestSlice][bestIdx]
			if b.Width < best.Width || b.Height < best.Height {
				bestSlice, bestIdx = s, i
			}
		}
	}
	if bestIdx < 0 {
		return Box{}, 0, false
	}

	record := l.free[bestSlice][bestIdx]
	consumed := Box{X: record.X, Y: record.Y, Width: w, Height: h}
	l.shrink(uint32(bestSlice), bestIdx, consumed)
	return consumed, uint32(bestSlice), true
}

// AllocateColumn carves the same w x h rectangle out of count consecutive
// slices. It returns the consumed rectangle and the first slice of the run.
//
// Candidate slices are walked from the last to the first. For each free box
// that can hold the request, the search extends backwards and then forwards
// through neighbouring slices that have the same rectangle free. The match
// succeeds only when exactly count-1 neighbours were found; runs that skip a
// slice are never returned.
func (l *Ledger) AllocateColumn(w, h, count uint32) (Box, uint32, bool) {
	if w == 0 || h == 0 || count == 0 || count > uint32(len(l.free)) {
		return Box{}, 0, false
	}
	if count == 1 {
		return l.Allocate(w, h)
	}
	w, h, ok := l.RoundUp(w, h)
	if !ok {
		return Box{}, 0, false
	}
	need := int(count - 1)

	// Indices into l.free[first+i], one per consumed slice. Collected
	// before anything is mutated.
	picked := make([]int, 0, count)

	for s := len(l.free) - 1; s >= 0; s-- {
		for i, cand := range l.free[s] {
			if w > cand.Width || h > cand.Height {
				continue
			}

			var backward []int
			for e := s - 1; e >= 0 && len(backward) < need; e-- {
				idx := l.find(e, cand.X, cand.Y, w, h)
				if idx < 0 {
					break
				}
				backward = append(backward, idx)
			}
			var forward []int
			for e := s + 1; e < len(l.free) && len(backward)+len(forward) < need; e++ {
				idx := l.find(e, cand.X, cand.Y, w, h)
				if idx < 0 {
					break
				}
				forward = append(forward, idx)
			}
			if len(backward)+len(forward) != need {
				continue
			}

			picked = picked[:0]
			for j := len(backward) - 1; j >= 0; j-- {
				picked = append(picked, backward[j])
			}
			picked = append(picked, i)
			picked = append(picked, forward...)

			first := s - len(backward)
			consumed := Box{X: cand.X, Y: cand.Y, Width: w, Height: h}
			for j, idx := range picked {
				l.shrinkColumn(uint32(first+j), idx, consumed)
			}
			return consumed, uint32(first), true
		}
	}
	return Box{}, 0, false
}

// find returns the index of the free box of slice s holding (x, y, w, h).
func (l *Ledger) find(s int, x, y, w, h uint32) int {
	for i, b := range l.free[s] {
		if b.Contains(x, y, w, h) {
			return i
		}
	}
	return -1
}

// remove deletes free box idx of slice s without preserving order.
func (l *Ledger) remove(s uint32, idx int) {
	boxes := l.free[s]
	last := len(boxes) - 1
	boxes[idx] = boxes[last]
	l.free[s] = boxes[:last]
}

func (l *Ledger) push(s uint32, b Box) {
	if b.Empty() {
		return
	}
	l.free[s] = append(l.free[s], b)
}

// shrink removes consumed from free box idx of slice s. consumed must sit
// at the box origin.
func (l *Ledger) shrink(s uint32, idx int, consumed Box) {
	record := l.free[s][idx]
	if record.Width == consumed.Width && record.Height == consumed.Height {
		l.remove(s, idx)
		return
	}
	if l.canQuarter(record, consumed) {
		// Quarter the record once and split the top-left piece. The right
		// and bottom quadrants take the odd texel so nothing is lost.
		halfW, halfH := record.Width/2, record.Height/2
		l.free[s][idx] = Box{X: record.X, Y: record.Y, Width: halfW, Height: halfH}
		l.push(s, Box{X: record.X + halfW, Y: record.Y, Width: record.Width - halfW, Height: halfH})
		l.push(s, Box{X: record.X, Y: record.Y + halfH, Width: halfW, Height: record.Height - halfH})
		l.push(s, Box{X: record.X + halfW, Y: record.Y + halfH, Width: record.Width - halfW, Height: record.Height - halfH})
	}

	record = l.free[s][idx]
	below := Box{
		X:      record.X,
		Y:      record.Y + consumed.Height,
		Width:  consumed.Width,
		Height: record.Height - consumed.Height,
	}
	right := Box{
		X:      record.X + consumed.Width,
		Y:      record.Y,
		Width:  record.Width - consumed.Width,
		Height: record.Height,
	}
	if below.Empty() {
		l.remove(s, idx)
	} else {
		l.free[s][idx] = below
	}
	l.push(s, right)
}

func (l *Ledger) canQuarter(record, consumed Box) bool {
	halfW, halfH := record.Width/2, record.Height/2
	if consumed.Width > halfW || consumed.Height > halfH {
		return false
	}
	return halfW%l.blockW == 0 && halfH%l.blockH == 0
}

// shrinkColumn removes consumed from free box idx of slice s, where
// consumed may lie anywhere inside the box. When it is not flush with the
// box origin the box is cut into up to four pieces around it: full-width
// bands above and below, then left and right pieces level with consumed.
func (l *Ledger) shrinkColumn(s uint32, idx int, consumed Box) {
	record := l.free[s][idx]
	if record.X == consumed.X && record.Y == consumed.Y {
		l.shrink(s, idx, consumed)
		return
	}

	cRight := consumed.X + consumed.Width
	cBottom := consumed.Y + consumed.Height
	rRight := record.X + record.Width
	rBottom := record.Y + record.Height

	pieces := [4]Box{
		{X: record.X, Y: record.Y, Width: record.Width, Height: consumed.Y - record.Y},
		{X: record.X, Y: cBottom, Width: record.Width, Height: rBottom - cBottom},
		{X: record.X, Y: consumed.Y, Width: consumed.X - record.X, Height: consumed.Height},
		{X: cRight, Y: consumed.Y, Width: rRight - cRight, Height: consumed.Height},
	}

	l.remove(s, idx)
	for _, p := range pieces {
		l.push(s, p)
	}
}

// Validate checks that every free box is inside the surface and that no two
// free boxes of a slice overlap.
func (l *Ledger) Validate() error {
	bounds := Box{Width: l.width, Height: l.height}
	for s, boxes := range l.free {
		for i, b := range boxes {
			if b.Empty() {
				return fmt.Errorf("%w: slice %d holds empty %v", ErrCorrupt, s, b)
			}
			if !bounds.Contains(b.X, b.Y, b.Width, b.Height) {
				return fmt.Errorf("%w: slice %d %v outside %dx%d", ErrCorrupt, s, b, l.width, l.height)
			}
			for _, o := range boxes[i+1:] {
				if b.Overlaps(o) {
					return fmt.Errorf("%w: slice %d %v overlaps %v", ErrCorrupt, s, b, o)
				}
			}
		}
	}
	return nil
}
