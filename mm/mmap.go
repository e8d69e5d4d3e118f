package mm

import (
	"rv39kernel/defs"
	"rv39kernel/paging"
	"rv39kernel/pma"
)

// heapFlags marks the single VMA growBrk grows in place; any other VMA
// butting up against the break, however it got there, is left alone.
const heapFlags = VMRead | VMWrite | VMUser

func roundupPage(v uint64) uint64 {
	const pageSize = paging.PageSize
	return (v + pageSize - 1) &^ (pageSize - 1)
}

// Unmap tears down every page in [start,end), splitting any VMA that
// only partially overlaps the range so a partial munmap never disturbs
// memory outside the requested range (spec.md §4.6, munmap).
func (m *MM) Unmap(start, end paging.VPage) defs.Err_t {
	if start >= end {
		return defs.EINVAL
	}
	if err := m.alignBoundary(start); err != 0 {
		return err
	}
	if err := m.alignBoundary(end); err != 0 {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	var victims []*VMA
	for _, v := range m.vmas.list {
		if v.Start >= start && v.End <= end {
			victims = append(victims, v)
		}
	}
	for _, v := range victims {
		for i := 0; i < v.Pages(); i++ {
			m.table.Unmap(v.Start + paging.VPage(i))
		}
		releaseArea(v.Area)
		m.vmas.remove(v)
	}
	return 0
}

// Protect changes the access flags of every page in [start,end) to
// flags, splitting any VMA that only partially overlaps the range
// (spec.md §4.6, mprotect). Pages already faulted in are remapped with
// the new permissions immediately; pages not yet faulted pick up the
// new flags whenever they do fault, since alloc_frame always re-derives
// permissions from the covering VMA's Flags.
func (m *MM) Protect(start, end paging.VPage, flags uint) defs.Err_t {
	if start >= end {
		return defs.EINVAL
	}
	if err := m.alignBoundary(start); err != 0 {
		return err
	}
	if err := m.alignBoundary(end); err != 0 {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	const permBits = VMRead | VMWrite | VMExec
	for _, v := range m.vmas.list {
		if v.Start < start || v.End > end {
			continue
		}
		v.Flags = (v.Flags &^ permBits) | (flags & permBits)
		perms := vmaPerms(v.Flags)
		for i := 0; i < v.Pages(); i++ {
			page := v.Start + paging.VPage(i)
			f, err := v.Area.GetFrame(v.index(page), false)
			if err != 0 {
				continue // not yet faulted in; the next fault applies perms
			}
			if merr := m.table.Map(page, f, perms); merr != 0 {
				return merr
			}
		}
	}
	return 0
}

// alignBoundary splits whichever VMA straddles page so that page
// becomes a VMA boundary; a no-op if page already is one or no VMA
// covers it. Takes and releases m.lock itself (rather than requiring
// the caller to hold it) since it may call Split, which locks too.
func (m *MM) alignBoundary(page paging.VPage) defs.Err_t {
	m.lock.Lock()
	v, ok := m.vmas.lookup(page)
	m.lock.Unlock()
	if !ok || v.Start == page {
		return 0
	}
	return m.Split(page, v.End)
}

// releaseArea returns every frame an area owns to the allocator. Fixed
// areas release their whole contiguous run at once; Lazy areas release
// (and write back) page by page; Identical areas own nothing.
func releaseArea(area pma.PMA) {
	if f, ok := area.(*pma.Fixed); ok {
		f.Free()
		return
	}
	for i := 0; i < area.Len(); i++ {
		area.DeallocFrame(i)
	}
}

// FindFreeRegion scans upward from hint for a gap of n unmapped pages,
// grounded on the teacher's Vm_t.Unusedva_inner (vm/as.go): walk the
// VMAs in address order, advancing past any that overlap the
// candidate range, and return the first gap that fits (spec.md §4.6
// leaves mmap(addr=0) placement to the kernel).
func (m *MM) FindFreeRegion(hint paging.VPage, n int) (paging.VPage, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	cur := hint
	for _, v := range m.vmas.list {
		if v.Start >= cur+paging.VPage(n) {
			break
		}
		if v.End > cur {
			cur = v.End
		}
	}
	return cur, true
}

// SetBrk implements brk(addr): grows or shrinks the heap to end at
// newBrk, rounded up to a page, and returns the resulting break (spec.md
// §4.6, brk). Rejects addr below the original break; growth always
// succeeds unless memory is exhausted, by extending the existing heap
// VMA in place or creating one on the first call.
func (m *MM) SetBrk(newBrk uint64) (uint64, defs.Err_t) {
	if newBrk < m.StartBrk {
		return m.Brk, defs.EINVAL
	}
	oldEnd := paging.VPageFromAddr(roundupPage(m.Brk))
	newEnd := paging.VPageFromAddr(roundupPage(newBrk))

	switch {
	case newEnd > oldEnd:
		if err := m.growBrk(oldEnd, newEnd); err != 0 {
			return m.Brk, err
		}
	case newEnd < oldEnd:
		if err := m.Unmap(newEnd, oldEnd); err != 0 {
			return m.Brk, err
		}
	}
	m.Brk = newBrk
	return m.Brk, 0
}

// growBrk extends the heap VMA (identified by flags alone, since
// nothing else distinguishes it) by the pages between oldEnd and
// newEnd, or creates it on the very first growth past StartBrk.
func (m *MM) growBrk(oldEnd, newEnd paging.VPage) defs.Err_t {
	m.lock.Lock()
	v, ok := m.vmas.lookup(oldEnd - 1)
	if ok && v.End == oldEnd && v.Flags == heapFlags {
		if err := v.Area.Extend(v.Pages() + int(newEnd-oldEnd)); err != 0 {
			m.lock.Unlock()
			return err
		}
		m.vmas.remove(v)
		v.End = newEnd
		m.vmas.insert(v)
		m.lock.Unlock()
		return 0
	}
	m.lock.Unlock()

	_, err := m.AllocAnonVMA(oldEnd, newEnd, heapFlags)
	return err
}
