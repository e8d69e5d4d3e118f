package ksync

import "sync/atomic"

// pending is one deferred reclamation: the old value wrapped so the
// reclamation queue need not depend on T, plus a drop function that
// knows how to release it. This is the (raw pointer, drop function)
// pair the design notes call for, in place of the source's
// compiler-specific transmute between T and a pointer-width integer.
type pending struct {
	value any
	drop  func(any)
}

var (
	reclaimLock SpinLock
	reclaimFn   func(any)
	reclaimQ    []pending
)

// Reclamation installs the process-wide reclamation function and
// immediately drains anything already queued. Until this is called,
// retired values accumulate (spec.md §4.3).
func Reclamation(fn func(any)) {
	reclaimLock.Lock()
	reclaimFn = fn
	q := reclaimQ
	reclaimQ = nil
	reclaimLock.Unlock()
	for _, p := range q {
		fn(p.value)
	}
}

func retire(value any, drop func(any)) {
	reclaimLock.Lock()
	fn := reclaimFn
	if fn == nil {
		reclaimQ = append(reclaimQ, pending{value: value, drop: drop})
		reclaimLock.Unlock()
		return
	}
	reclaimLock.Unlock()
	fn(value)
}

// RcuCell holds a single pointer-width value read without blocking
// and written under external synchronization or atomically swapped
// (spec.md §4.3). T should be a pointer type or otherwise represent
// exclusive ownership of a heap object, since the old value is handed
// to reclamation once no reader can still observe it.
type RcuCell[T any] struct {
	ptr atomic.Pointer[T]
}

// NewRcuCell constructs a cell holding an initial value.
func NewRcuCell[T any](initial T) *RcuCell[T] {
	c := &RcuCell[T]{}
	v := initial
	c.ptr.Store(&v)
	return c
}

// RcuReadGuard is a non-dropping copy of the value observed at Read
// time: readers never block a concurrent writer and must not retain
// the guard past their read-side critical section.
type RcuReadGuard[T any] struct {
	Value T
}

// Read loads the current value with an acquire fence (guaranteed by
// atomic.Pointer.Load) and copies it out so the reader is immune to a
// concurrent publish.
func (c *RcuCell[T]) Read() RcuReadGuard[T] {
	p := c.ptr.Load()
	return RcuReadGuard[T]{Value: *p}
}

// Write publishes a new value with a release fence and retires the
// old one for deferred reclamation. The caller must already hold
// whatever external lock serializes writers (spec.md §4.3: "writers
// must serialize externally").
func (c *RcuCell[T]) Write(value T, drop func(T)) {
	v := value
	old := c.ptr.Swap(&v)
	if old == nil {
		return
	}
	oldVal := *old
	retire(oldVal, func(a any) {
		drop(a.(T))
	})
}

// AtomicWrite is the atomic-swap variant: like Write, but safe to
// call without an external lock since the swap itself serializes
// concurrent writers (the last swap wins; all are individually
// atomic).
func (c *RcuCell[T]) AtomicWrite(value T, drop func(T)) {
	c.Write(value, drop)
}
