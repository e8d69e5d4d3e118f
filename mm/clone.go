package mm

import (
	"rv39kernel/defs"
	"rv39kernel/pma"
)

// Clone produces an independent address space: a fresh page table, a
// cloned VMA list, and — per spec.md §4.5 "clone()" — a deep copy of
// each Lazy PMA (new frames, contents copied) while Identical and
// Fixed PMAs are shared with the source. Shared Fixed areas are the
// CLONE_VM-less fork case for eagerly-populated segments (e.g. a
// still-open ELF text segment reused read-only by convention; this
// kernel does not implement copy-on-write at the PTE level, so callers
// that need private Fixed pages should avoid sharing writable ones).
// Pages present in the source are copied; pages never faulted stay
// unmapped in the clone, matching the source exactly.
func (m *MM) Clone() (*MM, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nt, err := newMappedTable()
	if err != 0 {
		return nil, err
	}
	n := &MM{table: nt, EntryPoint: m.EntryPoint, StartBrk: m.StartBrk, Brk: m.Brk}

	for _, v := range m.vmas.list {
		var area pma.PMA
		switch a := v.Area.(type) {
		case *pma.Lazy:
			cloned, cerr := a.Clone()
			if cerr != 0 {
				return nil, cerr
			}
			area = cloned
		default:
			// Fixed and Identical carry no per-task state worth
			// duplicating; the clone references the same backing
			// frames as the source (spec.md §4.5).
			area = v.Area
		}
		nv := &VMA{Start: v.Start, End: v.End, Flags: v.Flags, Area: area}
		n.vmas.insert(nv)
		if err := n.installPresentLocked(nv); err != 0 {
			return nil, err
		}
	}
	return n, 0
}

// installPresentLocked installs leaf PTEs in the new table for every
// page of dst that already has a backing frame (a page the source had
// faulted in before the clone), leaving not-yet-faulted pages unmapped.
func (n *MM) installPresentLocked(dst *VMA) defs.Err_t {
	perms := vmaPerms(dst.Flags)
	for p := dst.Start; p < dst.End; p++ {
		f, ferr := dst.Area.GetFrame(dst.index(p), false)
		if ferr != 0 {
			continue // not yet faulted in the source; leave unmapped
		}
		if merr := n.table.Map(p, f, perms); merr != 0 {
			return merr
		}
	}
	return 0
}
