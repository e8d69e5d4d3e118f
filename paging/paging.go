// Package paging implements the SV39 three-level page table: walk,
// allocate-on-descend, map, unmap, and translate (spec.md §4.2),
// grounded on the teacher's mem/dmap.go bit-twiddling helpers
// (shl/pgbits/mkpg), translated from x86-64's 4-level recursive
// scheme to SV39's 3-level non-recursive one.
package paging

import (
	"rv39kernel/defs"
	"rv39kernel/frame"
)

const (
	// PageShift/PageSize mirror frame.PageShift/PageSize; duplicated as
	// untyped constants so callers need not import frame for arithmetic
	// on raw virtual addresses.
	PageShift = frame.PageShift
	PageSize  = frame.PageSize

	// VA bits per SV39 level: 9 bits of index per level, 12 bits of
	// page offset, three levels (2, 1, 0 from root to leaf).
	levelBits = 9
	levelMask = (1 << levelBits) - 1
)

// PTE flag bits, per spec.md §3: "bits 10..54 hold PPN, bits 0..7
// hold flags {V,R,W,X,U,G,A,D}".
const (
	FlagV = 1 << 0 // valid
	FlagR = 1 << 1 // readable
	FlagW = 1 << 2 // writable
	FlagX = 1 << 3 // executable
	FlagU = 1 << 4 // user-accessible
	FlagG = 1 << 5 // global
	FlagA = 1 << 6 // accessed
	FlagD = 1 << 7 // dirty

	ppnShift = 10
	ppnBits  = 45
	ppnMask  = ((uint64(1) << ppnBits) - 1) << ppnShift
)

// VPage is a virtual page number (virtual address >> PageShift, 27
// significant bits for SV39's 39-bit address space).
type VPage uint64

// StartAddress returns the virtual byte address at the start of the
// page.
func (p VPage) StartAddress() uint64 {
	return uint64(p) << PageShift
}

// VPageFromAddr rounds a virtual address down to its containing page.
func VPageFromAddr(va uint64) VPage {
	return VPage(va >> PageShift)
}

// indices returns the level-2 (root), level-1, and level-0 (leaf)
// indices into a page table for the given virtual page, the SV39
// split of a 39-bit address into three 9-bit indices (spec.md §4.2).
func (p VPage) indices() (l2, l1, l0 int) {
	v := uint64(p)
	l0 = int(v & levelMask)
	v >>= levelBits
	l1 = int(v & levelMask)
	v >>= levelBits
	l2 = int(v & levelMask)
	return
}

// PTE is a single 64-bit page table entry.
type PTE uint64

// Valid reports whether the V bit is set.
func (e PTE) Valid() bool { return e&FlagV != 0 }

// IsLeaf reports whether the entry is a leaf (maps a page) rather
// than a pointer to the next table: per spec.md §3, "an entry is a
// pointer to a next-level table iff V=1 and R=W=X=0".
func (e PTE) IsLeaf() bool {
	return e.Valid() && e&(FlagR|FlagW|FlagX) != 0
}

// PPN returns the physical page number the entry addresses.
func (e PTE) PPN() frame.Frame {
	return frame.Frame((uint64(e) & ppnMask) >> ppnShift)
}

// Flags returns the low flag byte.
func (e PTE) Flags() uint64 {
	return uint64(e) & 0xff
}

func mkPTE(f frame.Frame, flags uint64) PTE {
	return PTE((uint64(f)<<ppnShift)&ppnMask | (flags & 0xff))
}

// Table owns a root frame and every intermediate frame it has
// allocated while walking with create=true. Destroying the table
// releases every owned frame (spec.md §4.2, §9 "ownership of
// page-table intermediate frames").
type Table struct {
	Root  frame.Frame
	owned []*frame.AllocatedFrame
	// mem maps a frame to its in-memory 512-entry contents; in
	// a real kernel this would be the kernel's direct map. Tests and
	// the in-process scheduler substitute this in-memory store so the
	// paging logic can be exercised without real physical memory.
	mem PhysMem
}

// PhysMem abstracts access to the bytes backing a physical frame, so
// paging doesn't hard-code a particular direct-map scheme; mm installs
// the kernel's real direct map at boot.
type PhysMem interface {
	// Entries returns the 512 PTEs stored in frame f, as a mutable
	// view: writes through the returned slice are visible to
	// subsequent reads of the same frame.
	Entries(f frame.Frame) *[512]PTE
}

// NewTable allocates a fresh, zeroed root frame and returns the table
// that owns it.
func NewTable(mem PhysMem) (*Table, defs.Err_t) {
	af, err := frame.AllocFrame(true)
	if err != 0 {
		return nil, err
	}
	t := &Table{Root: af.Frame(), mem: mem}
	t.owned = append(t.owned, af)
	*mem.Entries(t.Root) = [512]PTE{}
	return t, 0
}

// ErrPageTableInvalid is returned by Walk when it encounters the
// first invalid entry before reaching the leaf level.
var ErrPageTableInvalid = defs.Err_t(-1000) // distinguished from errno space; translated at the mm boundary

// descend walks from the root toward page's leaf PTE. If create is
// true, any invalid non-leaf entry is replaced by a freshly allocated,
// zeroed intermediate table, installed with only the V flag (a
// pointer entry per spec.md §3). Returns the final-level table frame
// and the index within it of page's leaf entry.
func (t *Table) descend(page VPage, create bool) (frame.Frame, int, defs.Err_t) {
	l2, l1, l0 := page.indices()
	cur := t.Root
	for _, idx := range []int{l2, l1} {
		entries := t.mem.Entries(cur)
		e := entries[idx]
		if !e.Valid() {
			if !create {
				return 0, 0, ErrPageTableInvalid
			}
			af, err := frame.AllocFrame(true)
			if err != 0 {
				return 0, 0, err
			}
			t.owned = append(t.owned, af)
			*t.mem.Entries(af.Frame()) = [512]PTE{}
			entries[idx] = mkPTE(af.Frame(), FlagV)
			cur = af.Frame()
			continue
		}
		if e.IsLeaf() {
			// A superpage/huge mapping sits where we expected an
			// intermediate table; this kernel never creates those, so
			// encountering one means caller error.
			return 0, 0, defs.EINVAL
		}
		cur = e.PPN()
	}
	return cur, l0, 0
}

// Walk traverses levels 2->1->0, failing with ErrPageTableInvalid on
// the first invalid entry (spec.md §4.2).
func (t *Table) Walk(page VPage) (leafTable frame.Frame, idx int, pte PTE, err defs.Err_t) {
	leafTable, idx, err = t.descend(page, false)
	if err != 0 {
		return
	}
	pte = t.mem.Entries(leafTable)[idx]
	return
}

// Create is like Walk but allocates and zeroes a new intermediate
// frame on any invalid non-leaf entry (spec.md §4.2).
func (t *Table) Create(page VPage) (leafTable frame.Frame, idx int, pte PTE, err defs.Err_t) {
	leafTable, idx, err = t.descend(page, true)
	if err != 0 {
		return
	}
	pte = t.mem.Entries(leafTable)[idx]
	return
}

// Map installs a leaf entry for page pointing at f with flags. V is
// always set; W without R is rejected since the ISA forbids it
// (spec.md §4.2).
func (t *Table) Map(page VPage, f frame.Frame, flags uint64) defs.Err_t {
	if flags&FlagW != 0 && flags&FlagR == 0 {
		return defs.EINVAL
	}
	leafTable, idx, err := t.descend(page, true)
	if err != 0 {
		return err
	}
	t.mem.Entries(leafTable)[idx] = mkPTE(f, flags|FlagV)
	return 0
}

// Unmap walk-then-zeroes the leaf entry for page. It is not an error
// to unmap a page that was never mapped (the intermediate walk simply
// fails and Unmap is a no-op), matching the teacher's permissive
// unmap semantics elsewhere in vm/as.go.
func (t *Table) Unmap(page VPage) {
	leafTable, idx, err := t.descend(page, false)
	if err != 0 {
		return
	}
	t.mem.Entries(leafTable)[idx] = 0
}

// ErrPageUnmapped is returned by Translate when va has no valid leaf
// entry.
var ErrPageUnmapped = defs.Err_t(-1004)

// Translate walks page and adds the page-offset bits of va, returning
// ErrPageUnmapped if no leaf entry is installed (spec.md §4.2, §8.4).
func (t *Table) Translate(va uint64) (uint64, defs.Err_t) {
	page := VPageFromAddr(va)
	leafTable, idx, err := t.descend(page, false)
	if err != 0 {
		return 0, ErrPageUnmapped
	}
	pte := t.mem.Entries(leafTable)[idx]
	if !pte.Valid() || !pte.IsLeaf() {
		return 0, ErrPageUnmapped
	}
	off := va & (PageSize - 1)
	return pte.PPN().Addr() + off, 0
}

// Destroy releases every frame the table owns (its root and every
// intermediate table allocated via Create), per spec.md §4.2 "Every
// frame allocated for a table is owned by the table and released when
// the table is dropped."
func (t *Table) Destroy() {
	for _, af := range t.owned {
		af.Free()
	}
	t.owned = nil
}
