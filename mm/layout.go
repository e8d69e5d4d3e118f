package mm

import "rv39kernel/paging"

// Kernel virtual layout constants (spec.md §4.5, §4.9), grounded on
// the teacher's mem/dmap.go slot scheme (VREC/VDIRECT/VEND/VUSER),
// reworked for SV39's 39-bit (not 48-bit) address space: the top
// virtual page of every address space is reserved for the trampoline,
// and the page below it for that task's trapframe.
const (
	// MaxVPage is the highest representable SV39 virtual page number
	// (2^27 - 1, since 39 - 12 = 27 bits of page number).
	MaxVPage = paging.VPage(1<<27 - 1)

	// TrampolineVPage is the fixed virtual page holding the shared
	// trap-vector code, mapped identically into every address space
	// (spec.md §4.9).
	TrampolineVPage = MaxVPage

	// TrapframeVPage is one page below the trampoline — the trapframe
	// slot for the thread-group leader (slot 0). Additional threads
	// sharing the same MM (CLONE_THREAD) get their own slot one page
	// lower each, via TrapframeVPageForSlot, so concurrent threads in
	// one address space never collide on a trapframe VA (spec.md §3,
	// original_source's kernel/src/task/task.rs trapframe_base).
	TrapframeVPage = MaxVPage - 1

	// UserStackTopVPage is the page just below the lowest possible
	// trapframe slot, the fixed upper bound of every task's initial
	// user stack VMA (spec.md §4.6).
	UserStackTopVPage = MaxVPage - 1 - paging.VPage(MaxTrapframeSlots)

	// MaxTrapframeSlots bounds how many threads may share one MM
	// before trapframe slots would run into the user stack region.
	MaxTrapframeSlots = 256

	// MmapSearchBase is the default hint FindFreeRegion starts scanning
	// from when mmap(addr=0) leaves placement up to the kernel: a fixed
	// gap below the stack region, large enough that the heap (which
	// grows up from the ELF image) and the mmap region (which grows up
	// from here) are exceedingly unlikely to collide in practice (spec.md
	// §4.6 leaves exact placement unspecified; biscuit's own
	// Vm_t.Unusedva_inner similarly just takes a hint and a length and
	// searches upward from it rather than reserving a dedicated band).
	MmapSearchBase = UserStackTopVPage - paging.VPage(1<<20)
)

// TrapframeVPageForSlot returns the virtual page holding the trapframe
// of the slot'th thread created in a given MM (0 for the thread-group
// leader).
func TrapframeVPageForSlot(slot int) paging.VPage {
	return MaxVPage - 1 - paging.VPage(slot)
}
