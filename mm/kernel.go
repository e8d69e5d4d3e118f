package mm

import (
	"sync"

	"rv39kernel/defs"
	"rv39kernel/paging"
)

// KernelStackPages is the number of pages in one task's kernel stack,
// grounded on original_source's config/kernel.rs KERNEL_STACK_SIZE
// (0x1_0000, 16 pages at 4 KiB).
const KernelStackPages = 16

var (
	kernelMM     *MM
	kernelMMOnce sync.Once
	kstackBase   paging.VPage // one page below the trampoline; set once
)

// Kernel returns the singleton kernel address space every hart shares
// (spec.md §3, "Global state ... Kernel MM (singleton)"). Boot-time
// identity maps (RAM, MMIO) are installed into this MM by package boot.
func Kernel() *MM {
	kernelMMOnce.Do(func() {
		m, err := New()
		if err != 0 {
			panic("out of memory constructing the kernel address space")
		}
		kernelMM = m
		kstackBase = TrampolineVPage - 1
	})
	return kernelMM
}

// kstackLayout returns the [top, base) virtual page range of the
// slot'th kernel stack, each separated from its neighbor by one unused
// guard page (original_source's kstack.rs kstack_layout, GUARD_PAGE).
func kstackLayout(slot int) (top, base paging.VPage) {
	Kernel() // ensure kstackBase is set
	stride := paging.VPage(KernelStackPages + 1)
	base = kstackBase - paging.VPage(slot)*stride
	top = base - paging.VPage(KernelStackPages)
	return top, base
}

// KstackAlloc installs the slot'th kernel stack into the kernel
// address space (not idempotent: a second call for a slot that is
// already installed fails, since the VMA would overlap) and returns the stack's initial top-of-stack virtual
// address (the base, since RISC-V stacks grow down).
func KstackAlloc(slot int) (uint64, defs.Err_t) {
	top, base := kstackLayout(slot)
	k := Kernel()
	if _, err := k.AllocWriteVMA(nil, top, base, VMRead|VMWrite); err != 0 {
		return 0, err
	}
	return base.StartAddress(), 0
}
