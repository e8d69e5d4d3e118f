// Package id implements a monotonic counter with a free list for
// recycling integer identifiers, used for pids, kernel-stack-slot
// numbers, and sleep-lock channel ids (spec.md §3, §4.1).
package id

import "sync"

// Allocator hands out small non-negative integers, preferring to
// recycle a previously freed id over growing the monotonic counter,
// so long-lived kernels don't exhaust the id space under steady
// churn (many short-lived tasks). id is a leaf package (spec.md §5's
// lock hierarchy places the id allocators alongside the frame
// allocator, below everything else), so it uses a plain mutex rather
// than ksync.SpinLock to avoid a dependency cycle with ksync's own
// sleep-lock channel ids.
type Allocator struct {
	lock  sync.Mutex
	next  int
	free  []int
	inUse map[int]bool
}

// New returns an allocator whose ids start at floor (inclusive).
func New(floor int) *Allocator {
	return &Allocator{next: floor, inUse: make(map[int]bool)}
}

// Alloc returns a fresh id: the most recently freed id if one
// exists, otherwise the next never-used integer.
func (a *Allocator) Alloc() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	var v int
	if n := len(a.free); n > 0 {
		v = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		v = a.next
		a.next++
	}
	a.inUse[v] = true
	return v
}

// Free returns id to the free list. Panics on a double free, which
// would otherwise hand the same id to two live owners.
func (a *Allocator) Free(v int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.inUse[v] {
		panic("id: double free")
	}
	delete(a.inUse, v)
	a.free = append(a.free, v)
}
