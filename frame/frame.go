// Package frame implements the physical frame allocator: a buddy
// allocator over the physical range above the kernel image, and the
// AllocatedFrame/AllocatedFrameRange ownership types that return
// frames to the allocator when dropped (spec.md §4.1).
package frame

import (
	"fmt"
	"math/bits"
	"sync"

	"rv39kernel/defs"
	"rv39kernel/ksync"
)

// physPages simulates the bytes of every physical frame, since this
// module runs the kernel core under Go's own scheduler rather than on
// bare SV39 hardware. Production code instead has the MMU's own
// physical RAM; this stands in for it uniformly for both page-table
// pages and ordinary data pages, mirroring the teacher's
// Pg2bytes/Bytepg2pg reinterpretation of a page's raw bytes
// (mem/dmap.go) rather than inventing a second storage scheme.
var (
	physLock  sync.Mutex
	physPages = make(map[Frame]*[PageSize]byte)
)

// Bytes returns the PageSize-byte contents of frame f, allocating a
// zeroed page on first access.
func Bytes(f Frame) *[PageSize]byte {
	physLock.Lock()
	defer physLock.Unlock()
	p, ok := physPages[f]
	if !ok {
		p = &[PageSize]byte{}
		physPages[f] = p
	}
	return p
}

/// PageShift is the base-2 exponent of the page size.
const PageShift = 12

/// PageSize is the size of one physical frame in bytes.
const PageSize = 1 << PageShift

/// Frame is a physical page number (physical address >> PageShift).
type Frame uint64

/// Addr returns the physical byte address of the frame.
func (f Frame) Addr() uint64 {
	return uint64(f) << PageShift
}

/// FromAddr rounds a physical address down to its containing frame.
func FromAddr(pa uint64) Frame {
	return Frame(pa >> PageShift)
}

// maxOrder bounds the buddy allocator to runs of up to 2^maxOrder
// frames (4 GiB per run at 4 KiB pages); large enough for any
// practical contiguous request (kernel stacks, ELF segments).
const maxOrder = 20

// Allocator is a buddy allocator over [base, base+n) physical frames.
// Every free list is protected by a single interrupt-safe spin lock;
// section 5's hierarchy places the frame allocator at the bottom, so
// it must never block on or call into any other locked subsystem.
type Allocator struct {
	lock ksync.SpinLock

	base Frame
	n    uint64
	free [maxOrder + 1][]Frame // free[k] holds starting frames of free 2^k runs
}

var global Allocator
var globalOnce sync.Once

/// Global returns the process-wide frame allocator singleton,
/// initializing it lazily on first access (spec.md §9, "Global
/// singletons").
func Global() *Allocator {
	globalOnce.Do(func() {})
	return &global
}

/// AddRegion extends the managed set with [start, end). Called
/// exactly once at boot by the main hart, before any other hart may
/// allocate.
func (a *Allocator) AddRegion(start, end Frame) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.n != 0 {
		panic("add_region called more than once")
	}
	a.base = start
	a.n = uint64(end - start)
	a.seedFreeLists()
}

func order(count uint64) int {
	if count == 0 {
		return 0
	}
	k := bits.Len64(count - 1)
	if k > maxOrder {
		panic("run too large for buddy allocator")
	}
	return k
}

// seedFreeLists decomposes [0, n) into maximal aligned power-of-two
// runs and inserts each into the appropriate free list. Must be
// called with a.lock held.
func (a *Allocator) seedFreeLists() {
	var off uint64
	for off < a.n {
		remaining := a.n - off
		k := bits.Len64(remaining) - 1
		if k > maxOrder {
			k = maxOrder
		}
		run := uint64(1) << k
		for off&(run-1) != 0 {
			k--
			run >>= 1
		}
		for run > remaining {
			k--
			run >>= 1
		}
		a.free[k] = append(a.free[k], a.base+Frame(off))
		off += run
	}
}

/// Alloc returns the starting frame of a run of count contiguous free
/// frames, or ok=false if none is available.
func (a *Allocator) Alloc(count int) (Frame, bool) {
	if count <= 0 {
		panic("alloc: non-positive count")
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	want := order(uint64(count))
	k := want
	for k <= maxOrder && len(a.free[k]) == 0 {
		k++
	}
	if k > maxOrder {
		return 0, false
	}
	start := a.pop(k)
	// split the run down to the requested order, stashing the upper
	// buddies back onto their free lists.
	for k > want {
		k--
		buddy := start + Frame(uint64(1)<<k)
		a.free[k] = append(a.free[k], buddy)
	}
	runLen := uint64(1) << want
	// shrink the tail of the run to the exact requested count,
	// returning the excess as a separate (smaller) free run.
	if uint64(count) < runLen {
		excess := start + Frame(count)
		excessLen := runLen - uint64(count)
		for excessLen > 0 {
			ek := bits.Len64(excessLen) - 1
			run := uint64(1) << ek
			a.free[ek] = append(a.free[ek], excess)
			excess += Frame(run)
			excessLen -= run
		}
	}
	return start, true
}

func (a *Allocator) pop(k int) Frame {
	l := a.free[k]
	f := l[len(l)-1]
	a.free[k] = l[:len(l)-1]
	return f
}

/// Dealloc returns [start, start+count) to the allocator. Undefined
/// if the run was not previously allocated as a single unit via
/// Alloc.
func (a *Allocator) Dealloc(start Frame, count int) {
	a.lock.Lock()
	defer a.lock.Unlock()

	remaining := uint64(count)
	off := start
	for remaining > 0 {
		k := bits.Len64(remaining) - 1
		for off&Frame(uint64(1)<<k-1) != 0 {
			k--
		}
		run := uint64(1) << k
		a.free[k] = append(a.free[k], off)
		off += Frame(run)
		remaining -= run
	}
}

/// AllocatedFrame is the exclusive owner of a single physical frame.
/// Calling Free returns the frame to the global allocator; a frame
/// must not be used after Free.
type AllocatedFrame struct {
	f     Frame
	freed bool
}

/// AllocFrame allocates one frame, optionally zeroing it (required for
/// fresh user memory, skippable for kernel identity maps where the
/// caller will overwrite the contents immediately).
func AllocFrame(zero bool) (*AllocatedFrame, defs.Err_t) {
	r, err := AllocFrameRange(1, zero)
	if err != 0 {
		return nil, err
	}
	return &AllocatedFrame{f: r.Start}, 0
}

/// Frame returns the owned physical frame number.
func (af *AllocatedFrame) Frame() Frame {
	if af.freed {
		panic("use after free")
	}
	return af.f
}

/// Free releases the frame back to the global allocator. It is not
/// idempotent: a repeat call panics, so a double free is never
/// silently treated as success.
func (af *AllocatedFrame) Free() {
	if af.freed {
		panic("double free of AllocatedFrame")
	}
	af.freed = true
	Global().Dealloc(af.f, 1)
}

/// AllocatedFrameRange is the exclusive owner of a contiguous run of
/// physical frames.
type AllocatedFrameRange struct {
	Start Frame
	Count int
	freed bool
}

/// AllocFrameRange allocates count contiguous frames.
func AllocFrameRange(count int, zero bool) (*AllocatedFrameRange, defs.Err_t) {
	f, ok := Global().Alloc(count)
	if !ok {
		return nil, defs.ENOMEM
	}
	r := &AllocatedFrameRange{Start: f, Count: count}
	if zero {
		r.Zero()
	}
	return r, 0
}

/// Zero fills every owned frame with zero bytes in the simulated
/// physical memory. A frame whose bytes were never touched is already
/// zero, since Bytes allocates a zeroed page on first access.
func (r *AllocatedFrameRange) Zero() {
	physLock.Lock()
	defer physLock.Unlock()
	for f := r.Start; f < r.Start+Frame(r.Count); f++ {
		if p, ok := physPages[f]; ok {
			*p = [PageSize]byte{}
		}
	}
}

/// Free releases every frame in the range.
func (r *AllocatedFrameRange) Free() {
	if r.freed {
		panic("double free of AllocatedFrameRange")
	}
	r.freed = true
	Global().Dealloc(r.Start, r.Count)
}

/// Split transfers [0, at) and [at, Count) into two disjoint owners;
/// the receiver becomes invalid (Start/Count are zeroed) since its
/// frames have been transferred to the two new owners, matching the
/// exclusive-ownership contract: no two owners may ever reference the
/// same physical frame.
func (r *AllocatedFrameRange) Split(at int) (*AllocatedFrameRange, *AllocatedFrameRange) {
	if r.freed {
		panic("split of freed range")
	}
	if at <= 0 || at >= r.Count {
		panic("split index out of range")
	}
	left := &AllocatedFrameRange{Start: r.Start, Count: at}
	right := &AllocatedFrameRange{Start: r.Start + Frame(at), Count: r.Count - at}
	r.freed = true
	r.Start, r.Count = 0, 0
	return left, right
}

/// String renders the range for diagnostics.
func (r *AllocatedFrameRange) String() string {
	return fmt.Sprintf("frames[%#x,%#x)", r.Start, r.Start+Frame(r.Count))
}
