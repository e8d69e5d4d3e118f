package mm

import (
	"sync"

	"rv39kernel/frame"
)

// trampolineFrame is the single physical frame holding the
// trap-vector code, shared by every address space (spec.md §4.9,
// §9 "Trampoline shared between address spaces"). It is allocated
// once and never freed: teardown of the kernel's trampoline mapping
// is out of scope (spec.md §9, "Global singletons").
var (
	trampolineFrame frame.Frame
	trampolineOnce  sync.Once
)

// TrampolinePhys returns the shared trampoline frame, allocating it on
// first use. Nothing in this module writes uservec/userret/kernelvec
// code into the frame; package trap only computes the userret address
// within the page.
func TrampolinePhys() frame.Frame {
	trampolineOnce.Do(func() {
		af, err := frame.AllocFrame(true)
		if err != 0 {
			panic("out of memory allocating trampoline frame")
		}
		trampolineFrame = af.Frame()
		// deliberately never freed: the trampoline's AllocatedFrame
		// handle is intentionally leaked here since the frame must
		// outlive every address space that maps it, for the lifetime
		// of the kernel.
	})
	return trampolineFrame
}
