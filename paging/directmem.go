package paging

import (
	"unsafe"

	"rv39kernel/frame"
)

// DirectMem is an in-process stand-in for the kernel's direct map: on
// real hardware every physical frame is reachable at a fixed virtual
// offset (the teacher's mem/dmap.go Dmaplen); here it reinterprets a
// frame's simulated raw bytes (frame.Bytes) as a 512-entry PTE array,
// exactly as the teacher's pg2pmap casts a Pg_t to a Pmap_t in
// mem/dmap.go.
type DirectMem struct{}

// Entries returns the 512 PTEs stored in frame f as a mutable view;
// writes through the returned pointer are visible to subsequent reads
// of the same frame, including reads of the identical bytes as
// ordinary page data (e.g. by mm.writePhys/readPhys).
func (DirectMem) Entries(f frame.Frame) *[512]PTE {
	b := frame.Bytes(f)
	return (*[512]PTE)(unsafe.Pointer(b))
}

// Default is the process-wide simulated direct map, analogous to the
// teacher's single Physmem/direct-map singleton.
var Default = DirectMem{}
