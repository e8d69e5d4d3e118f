// Package mm implements the address space: an ordered set of VMAs
// each bound to a PMA, the page-fault handler, fork/COW, split/merge,
// and user-buffer translation (spec.md §4.5). Grounded on the
// teacher's vm/as.go Vm_t (embedded lock, Lock_pmap/Unlock_pmap,
// Userdmap8_inner) and vm/userbuf.go's Userbuf_t, translated from
// x86-64's 4-level walk to SV39.
package mm

import (
	"sort"

	"rv39kernel/defs"
	"rv39kernel/paging"
	"rv39kernel/pma"
)

// VMA flag bits (spec.md §4.5).
const (
	VMRead       = 1 << 0
	VMWrite      = 1 << 1
	VMExec       = 1 << 2
	VMUser       = 1 << 3
	VMShared     = 1 << 4
	VMGrowsDown  = 1 << 5
	VMIdentical  = 1 << 6
)

// VMA is a half-open virtual range with uniform access flags bound to
// a PMA. Invariants (spec.md §4.5): page-aligned, non-empty, never
// overlapping another VMA in the same MM.
type VMA struct {
	Start paging.VPage
	End   paging.VPage
	Flags uint
	Area  pma.PMA
}

// Pages returns the number of pages the VMA covers.
func (v *VMA) Pages() int {
	return int(v.End - v.Start)
}

// Contains reports whether page falls within [Start, End).
func (v *VMA) Contains(page paging.VPage) bool {
	return page >= v.Start && page < v.End
}

// index returns page's position within the VMA's PMA. GROWSDOWN VMAs
// (stacks) number pages from End downward instead of from Start, so
// that extending Start one page lower (on a downward stack-growth
// fault) only ever appends a new highest index to the PMA rather than
// renumbering every page already faulted in.
func (v *VMA) index(page paging.VPage) int {
	if v.Flags&VMGrowsDown != 0 {
		return int(v.End - page - 1)
	}
	return int(page - v.Start)
}

// vmaSet is the ordered-by-start-address collection of VMAs with
// O(log n) lookup and a one-element last-accessed cache (spec.md
// §4.5).
type vmaSet struct {
	list  []*VMA // kept sorted by Start
	cache *VMA
}

// insert adds v, keeping list sorted by Start. The caller must have
// already checked for overlap.
func (s *vmaSet) insert(v *VMA) {
	i := sort.Search(len(s.list), func(i int) bool { return s.list[i].Start >= v.Start })
	s.list = append(s.list, nil)
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = v
}

// remove deletes v from the set.
func (s *vmaSet) remove(v *VMA) {
	for i, c := range s.list {
		if c == v {
			s.list = append(s.list[:i], s.list[i+1:]...)
			if s.cache == v {
				s.cache = nil
			}
			return
		}
	}
}

// lookup returns the VMA covering page, using and maintaining the
// last-accessed cache.
func (s *vmaSet) lookup(page paging.VPage) (*VMA, bool) {
	if s.cache != nil && s.cache.Contains(page) {
		return s.cache, true
	}
	i := sort.Search(len(s.list), func(i int) bool { return s.list[i].End > page })
	if i < len(s.list) && s.list[i].Contains(page) {
		s.cache = s.list[i]
		return s.list[i], true
	}
	return nil, false
}

// overlaps reports whether [start,end) intersects any existing VMA.
func (s *vmaSet) overlaps(start, end paging.VPage) bool {
	for _, v := range s.list {
		if start < v.End && v.Start < end {
			return true
		}
	}
	return false
}

// lowerNeighbor returns the VMA immediately below page, if any — used
// to bound GROWSDOWN extension so it doesn't collide with the
// next-lower VMA (spec.md §4.5).
func (s *vmaSet) lowerNeighbor(page paging.VPage) (*VMA, bool) {
	var best *VMA
	for _, v := range s.list {
		if v.End <= page {
			if best == nil || v.End > best.End {
				best = v
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// ErrSegv is returned by the page-fault handler when no VMA covers
// the faulting address, or its flags forbid the access; the task
// layer converts this into SIGSEGV (spec.md §4.5, §7).
var ErrSegv = defs.Err_t(-1003)
