package pma

import "rv39kernel/defs"
import "rv39kernel/frame"

// Identical carries no backing storage: the owning VMA maps virtual
// page N to physical frame N directly, used for MMIO windows and the
// kernel's own identity-mapped regions (spec.md §4.4). GetFrame,
// GetFrames and Split compute frames directly from the page index;
// DeallocFrame and Extend return ErrUnimplemented, and IsMapped always
// reports false.
type Identical struct {
	start frame.Frame
	n     int
}

// NewIdentical describes an identity-mapped region of n pages
// starting at physical frame start (equal to the covering VMA's first
// virtual page number).
func NewIdentical(start frame.Frame, n int) *Identical {
	return &Identical{start: start, n: n}
}

func (m *Identical) Len() int { return m.n }

// GetFrame returns frame start+i directly: no allocation is ever
// needed since the mapping is definitional, not backed.
func (m *Identical) GetFrame(i int, alloc bool) (frame.Frame, defs.Err_t) {
	if i < 0 || i >= m.n {
		return 0, defs.EINVAL
	}
	return m.start + frame.Frame(i), 0
}

func (m *Identical) GetFrames(alloc bool) ([]frame.Frame, defs.Err_t) {
	out := make([]frame.Frame, m.n)
	for i := range out {
		out[i] = m.start + frame.Frame(i)
	}
	return out, 0
}

// DeallocFrame is unimplemented: an Identical area never owns the
// frames it describes, so there is nothing to release.
func (m *Identical) DeallocFrame(i int) defs.Err_t {
	return ErrUnimplemented
}

func (m *Identical) Split(start, end *int) (PMA, PMA) {
	self, mid, right := splitRange(m.n, start, end)
	if self == nil && mid == nil && right == nil {
		return nil, nil
	}
	mk := func(r *[2]int) PMA {
		if r == nil {
			return nil
		}
		return &Identical{start: m.start + frame.Frame(r[0]), n: r[1] - r[0]}
	}
	midPMA, rightPMA := mk(mid), mk(right)
	if self != nil {
		m.start = m.start + frame.Frame(self[0])
		m.n = self[1] - self[0]
	}
	return midPMA, rightPMA
}

func (m *Identical) Extend(newSize int) defs.Err_t {
	return ErrUnimplemented
}

// IsMapped always reports false: an Identical area is never
// "present" in the allocator's sense, since the mapping has no backing
// store to query (spec.md §4.4).
func (m *Identical) IsMapped(i int) bool {
	return false
}
