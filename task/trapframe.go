package task

import (
	"unsafe"

	"rv39kernel/defs"
	"rv39kernel/frame"
	"rv39kernel/mm"
)

// Trapframe is the fixed-layout record holding a task's user register
// file across a trap (spec.md §3): kernel satp, kernel sp, the kernel
// trap-handler entry, user pc/status, x1..x31, and the hart id. x0 is
// kept in the array (always hardwired to zero on RISC-V) so every
// register can be indexed directly by its number without an off-by-one.
type Trapframe struct {
	KernelSatp uint64
	KernelSP   uint64
	KernelTrap uint64
	Epc        uint64
	Status     uint64
	X          [32]uint64
	HartID     uint64
}

// allocTrapframeSlot installs a one-page trapframe VMA in m, trying
// slots starting at from and increasing until one doesn't collide with
// an existing VMA (spec.md §4.7: every thread sharing an MM needs its
// own trapframe slot). Returns the chosen slot and its virtual address.
func allocTrapframeSlot(m *mm.MM, from int) (int, uint64, defs.Err_t) {
	for slot := from; slot < mm.MaxTrapframeSlots; slot++ {
		page := mm.TrapframeVPageForSlot(slot)
		if _, err := m.AllocWriteVMA(nil, page, page+1, mm.VMRead|mm.VMWrite); err != 0 {
			continue
		}
		va := page.StartAddress()
		// AllocWriteVMA with no data installs a Lazy (not-yet-backed)
		// mapping; force the frame in now so Trapframe() can reinterpret
		// its bytes directly instead of faulting through the normal
		// user-access path.
		if _, ferr := m.AllocFrame(va); ferr != 0 {
			return 0, 0, ferr
		}
		return slot, va, 0
	}
	return 0, 0, defs.EAGAIN
}

// trapframeAt reinterprets the bytes backing va in m as a *Trapframe,
// the same frame.Bytes + unsafe.Pointer reinterpretation
// paging.DirectMem.Entries uses for page-table frames.
func trapframeAt(m *mm.MM, va uint64) (*Trapframe, defs.Err_t) {
	pa, err := m.Translate(va)
	if err != 0 {
		return nil, err
	}
	b := frame.Bytes(frame.FromAddr(pa))
	return (*Trapframe)(unsafe.Pointer(b)), 0
}
