package pma

import "rv39kernel/defs"
import "rv39kernel/frame"

// Fixed owns a contiguous, eagerly-allocated run of frames; it is
// never demand-paged and never extended (spec.md §4.4).
type Fixed struct {
	frames *frame.AllocatedFrameRange
}

// NewFixed allocates n zeroed frames contiguously.
func NewFixed(n int) (*Fixed, defs.Err_t) {
	r, err := frame.AllocFrameRange(n, true)
	if err != 0 {
		return nil, err
	}
	return &Fixed{frames: r}, 0
}

func (f *Fixed) Len() int { return f.frames.Count }

// GetFrame returns the i-th frame; no allocation ever occurs since
// every frame was allocated up front.
func (f *Fixed) GetFrame(i int, alloc bool) (frame.Frame, defs.Err_t) {
	if i < 0 || i >= f.frames.Count {
		return 0, defs.EINVAL
	}
	return f.frames.Start + frame.Frame(i), 0
}

func (f *Fixed) GetFrames(alloc bool) ([]frame.Frame, defs.Err_t) {
	out := make([]frame.Frame, f.frames.Count)
	for i := range out {
		out[i] = f.frames.Start + frame.Frame(i)
	}
	return out, 0
}

// DeallocFrame is a no-op for Fixed areas: all frames are released
// together when the area itself is dropped (Free), not page by page.
func (f *Fixed) DeallocFrame(i int) defs.Err_t {
	if i < 0 || i >= f.frames.Count {
		return defs.EINVAL
	}
	return 0
}

// Split divides the owned range at the given page indices, producing
// up to two sibling Fixed areas that share no frames with the
// receiver (spec.md §4.4 split contract).
func (f *Fixed) Split(start, end *int) (PMA, PMA) {
	self, mid, right := splitRange(f.frames.Count, start, end)
	if self == nil && mid == nil && right == nil {
		return nil, nil
	}
	base := f.frames.Start
	mk := func(r *[2]int) *Fixed {
		if r == nil {
			return nil
		}
		return &Fixed{frames: &frame.AllocatedFrameRange{Start: base + frame.Frame(r[0]), Count: r[1] - r[0]}}
	}
	var midPMA, rightPMA PMA
	if mp := mk(mid); mp != nil {
		midPMA = mp
	}
	if rp := mk(right); rp != nil {
		rightPMA = rp
	}
	if self != nil {
		f.frames = &frame.AllocatedFrameRange{Start: base + frame.Frame(self[0]), Count: self[1] - self[0]}
	}
	return midPMA, rightPMA
}

// Extend is unsupported for Fixed areas (spec.md §4.4).
func (f *Fixed) Extend(newSize int) defs.Err_t {
	return defs.ENOSYS
}

// Free releases every owned frame. Called when the owning VMA is torn
// down.
func (f *Fixed) Free() {
	f.frames.Free()
}
