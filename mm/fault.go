package mm

import (
	"rv39kernel/defs"
	"rv39kernel/paging"
)

// Fault handles a page fault at va with the given access flags
// (VMRead/VMWrite/VMExec, whichever caused the trap): locate the
// covering VMA, extend a GROWSDOWN stack VMA by one page if the fault
// lies just below it, then fault in the page via alloc_frame (spec.md
// §4.5, "Page-fault handler").
func (m *MM) Fault(va uint64, access uint) defs.Err_t {
	m.lock.Lock()
	page := paging.VPageFromAddr(va)
	v, ok := m.vmas.lookup(page)
	if !ok {
		if grown, gerr := m.growDownLocked(page); gerr == 0 && grown {
			v, ok = m.vmas.lookup(page)
		}
		if !ok {
			m.lock.Unlock()
			return ErrSegv
		}
	}
	if !v.permits(access) {
		m.lock.Unlock()
		return ErrSegv
	}
	_, err := m.allocFrameLocked(v, page)
	m.lock.Unlock()
	return err
}

// growDownLocked extends the GROWSDOWN VMA immediately above page down
// by one page, provided page doesn't collide with the next-lower VMA.
// m.lock must already be held.
func (m *MM) growDownLocked(page paging.VPage) (bool, defs.Err_t) {
	v, ok := m.vmas.lookup(page + 1)
	if !ok || v.Flags&VMGrowsDown == 0 || v.Start != page+1 {
		return false, 0
	}
	if lower, ok := m.vmas.lowerNeighbor(v.Start); ok && lower.End > page {
		return false, ErrSegv
	}
	if err := v.Area.Extend(v.Pages() + 1); err != 0 {
		return false, err
	}
	m.vmas.remove(v)
	v.Start = page
	m.vmas.insert(v)
	return true, 0
}

// permits reports whether access (a VM* flag bit, possibly ORed with
// others) is allowed by the VMA's own flags.
func (v *VMA) permits(access uint) bool {
	if access&VMWrite != 0 && v.Flags&VMWrite == 0 {
		return false
	}
	if access&VMExec != 0 && v.Flags&VMExec == 0 {
		return false
	}
	if access&VMRead != 0 && v.Flags&VMRead == 0 {
		return false
	}
	return true
}
