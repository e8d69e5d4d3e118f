package mm

import (
	"rv39kernel/defs"
	"rv39kernel/file"
	"rv39kernel/frame"
	"rv39kernel/ksync"
	"rv39kernel/paging"
	"rv39kernel/pma"
)

// MM is an address space: one page table plus the ordered set of VMAs
// bound to it, each VMA's PMA reachable from exactly one MM unless
// explicitly shared for CLONE_VM (spec.md §3, §4.5).
type MM struct {
	lock ksync.SpinLock

	table *paging.Table
	vmas  vmaSet

	EntryPoint uint64
	StartBrk   uint64
	Brk        uint64
}

// New constructs an address space with a fresh page table and the
// trampoline mapped at the top virtual page with V|R|X, U=0 — kernel
// executable, never user-accessible (spec.md §4.5).
func New() (*MM, defs.Err_t) {
	t, err := newMappedTable()
	if err != 0 {
		return nil, err
	}
	return &MM{table: t}, 0
}

// newMappedTable allocates a fresh page table with the shared
// trampoline frame mapped at the top virtual page, the setup every MM
// needs regardless of how it was created (spec.md §4.5, §4.9).
func newMappedTable() (*paging.Table, defs.Err_t) {
	t, err := paging.NewTable(paging.Default)
	if err != 0 {
		return nil, err
	}
	tf := TrampolinePhys()
	if merr := t.Map(TrampolineVPage, tf, paging.FlagV|paging.FlagR|paging.FlagX); merr != 0 {
		return nil, merr
	}
	return t, 0
}

// Table returns the underlying page table, for use by the scheduler
// (reading satp) and the trap path (switching satp on user entry).
func (m *MM) Table() *paging.Table { return m.table }

func vmaPerms(flags uint) uint64 {
	var p uint64
	if flags&VMRead != 0 {
		p |= paging.FlagR
	}
	if flags&VMWrite != 0 {
		p |= paging.FlagW
	}
	if flags&VMExec != 0 {
		p |= paging.FlagX
	}
	if flags&VMUser != 0 {
		p |= paging.FlagU
	}
	return p
}

// choosePMA picks a PMA variant for a new VMA per spec.md §4.5:
// IDENTICAL -> Identical; otherwise Fixed for eager maps (data
// supplied up front) or Lazy for mmap-style deferred allocations.
func choosePMA(flags uint, n int, identStart paging.VPage, eager bool) (pma.PMA, defs.Err_t) {
	switch {
	case flags&VMIdentical != 0:
		return pma.NewIdentical(frame.Frame(identStart), n), 0
	case eager:
		return pma.NewFixed(n)
	default:
		return pma.NewLazy(n), 0
	}
}

// AllocWriteVMA chooses a PMA based on flags, constructs a VMA,
// installs its pages in the page table eagerly (IDENTICAL and Fixed)
// or leaves them deferred (Lazy), inserts it into the ordered set, and
// optionally copies data into the mapped pages (spec.md §4.5).
func (m *MM) AllocWriteVMA(data []byte, start, end paging.VPage, flags uint) (*VMA, defs.Err_t) {
	if start >= end {
		return nil, defs.EINVAL
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.vmas.overlaps(start, end) {
		return nil, defs.EINVAL
	}
	n := int(end - start)
	eager := data != nil || flags&VMIdentical != 0
	area, err := choosePMA(flags, n, start, eager)
	if err != 0 {
		return nil, err
	}
	v := &VMA{Start: start, End: end, Flags: flags, Area: area}
	perms := vmaPerms(flags)
	if flags&VMIdentical != 0 || eager {
		for i := 0; i < n; i++ {
			f, ferr := area.GetFrame(i, true)
			if ferr != 0 {
				return nil, ferr
			}
			if merr := m.table.Map(start+paging.VPage(i), f, perms); merr != 0 {
				return nil, merr
			}
		}
	}
	m.vmas.insert(v)
	if data != nil {
		if werr := m.writeLocked(data, start, end); werr != 0 {
			return nil, werr
		}
	}
	return v, 0
}

// AllocAnonVMA installs a Lazy, not-yet-backed mapping (the mmap-style
// deferred-allocation case).
func (m *MM) AllocAnonVMA(start, end paging.VPage, flags uint) (*VMA, defs.Err_t) {
	return m.AllocWriteVMA(nil, start, end, flags)
}

// AllocFileVMA installs a Lazy mapping backed by f starting at
// baseOffset, used by mmap(MAP_SHARED/PRIVATE, fd) and by the ELF
// loader for file-backed LOAD segments.
func (m *MM) AllocFileVMA(f file.File, baseOffset int64, start, end paging.VPage, flags uint) (*VMA, defs.Err_t) {
	m.lock.Lock()
	if m.vmas.overlaps(start, end) {
		m.lock.Unlock()
		return nil, defs.EINVAL
	}
	n := int(end - start)
	area := pma.NewLazyFile(n, f, baseOffset)
	v := &VMA{Start: start, End: end, Flags: flags, Area: area}
	m.vmas.insert(v)
	m.lock.Unlock()
	return v, 0
}

// Write copies data into [start,end) page by page, translating each
// virtual page through the page table; fails with
// paging.ErrPageTableInvalid on unmapped ranges (spec.md §4.5).
func (m *MM) Write(data []byte, start, end paging.VPage) defs.Err_t {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.writeLocked(data, start, end)
}

func (m *MM) writeLocked(data []byte, start, end paging.VPage) defs.Err_t {
	off := 0
	for p := start; p < end && off < len(data); p++ {
		pa, err := m.table.Translate(p.StartAddress())
		if err != 0 {
			return paging.ErrPageTableInvalid
		}
		n := len(data) - off
		if n > paging.PageSize {
			n = paging.PageSize
		}
		writePhys(pa, data[off:off+n])
		off += n
	}
	return 0
}

// writePhys copies src into the simulated physical memory at physical
// address pa, via frame.Bytes' frame-keyed byte storage. Real hardware
// would write through the kernel's direct map instead (spec.md §4.2);
// this mirrors the teacher's Dmaplen-backed byte access.
func writePhys(pa uint64, src []byte) {
	buf := frame.Bytes(frame.FromAddr(pa))
	off := pa & (frame.PageSize - 1)
	copy(buf[off:], src)
}

func readPhys(pa uint64, n int) []byte {
	buf := frame.Bytes(frame.FromAddr(pa))
	off := pa & (frame.PageSize - 1)
	return buf[off : off+uint64(n)]
}

// Translate walks the page table and returns the physical address of
// va (spec.md §4.5).
func (m *MM) Translate(va uint64) (uint64, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.table.Translate(va)
}

// GetBufMut returns a scatter-gather list of mutable byte slices
// spanning [va, va+length), validating every page against the
// covering VMA's flags as it walks (spec.md §4.5, §4.10: user
// pointers must be fault-checked through this routine, never
// dereferenced directly).
func (m *MM) GetBufMut(va uint64, length int, needWrite bool) ([][]byte, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	var out [][]byte
	remaining := length
	cur := va
	for remaining > 0 {
		page := paging.VPageFromAddr(cur)
		v, ok := m.vmas.lookup(page)
		if !ok {
			return nil, defs.EFAULT
		}
		if needWrite && v.Flags&VMWrite == 0 {
			return nil, defs.EFAULT
		}
		base, err := m.allocFrameLocked(v, page)
		if err != 0 {
			return nil, err
		}
		pageOff := cur & (paging.PageSize - 1)
		n := paging.PageSize - pageOff
		if uint64(remaining) < n {
			n = uint64(remaining)
		}
		out = append(out, readPhys(base+pageOff, int(n)))
		cur += n
		remaining -= int(n)
	}
	return out, 0
}

// allocFrameLocked implements the fault-in path shared by GetBufMut and
// the page-fault handler (spec.md §4.5 alloc_frame): ask the covering
// VMA's PMA for the backing frame (allocating it on first touch),
// install a leaf PTE with the VMA's permissions, and return the
// page-aligned physical base address. m.lock must already be held.
func (m *MM) allocFrameLocked(v *VMA, page paging.VPage) (uint64, defs.Err_t) {
	f, err := v.Area.GetFrame(v.index(page), true)
	if err != 0 {
		return 0, err
	}
	if merr := m.table.Map(page, f, vmaPerms(v.Flags)); merr != 0 {
		return 0, merr
	}
	// flush TLB for this page: a no-op in this simulation, since every
	// translation is re-walked from the in-memory table on each access
	// rather than cached (spec.md §4.2, "no hardware TLB to model").
	return f.Addr(), 0
}

// AllocFrame is the public entry point for alloc_frame(va) (spec.md
// §4.5): used directly by user-pointer validation and, later, by
// fork-time COW fault handling.
func (m *MM) AllocFrame(va uint64) (uint64, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	page := paging.VPageFromAddr(va)
	v, ok := m.vmas.lookup(page)
	if !ok {
		return 0, ErrSegv
	}
	base, err := m.allocFrameLocked(v, page)
	if err != 0 {
		return 0, err
	}
	return base + (va & (paging.PageSize - 1)), 0
}
