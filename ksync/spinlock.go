// Package ksync implements the synchronization primitives that bind
// the kernel core together: an interrupt-safe spin lock, a
// channel-based sleep lock, a reader-priority-inverted seqlock, and an
// RCU cell with deferred reclamation (spec.md §4.3).
package ksync

import (
	"sync/atomic"
)

// NHART bounds the number of harts this kernel schedules across
// (spec.md §5: "parallel harts (up to 16)").
const NHART = 16

// hartState is the per-hart push_off bookkeeping: how many spin locks
// this hart currently holds, and whether interrupts were enabled
// before the first (outermost) acquisition.
type hartState struct {
	depth  int32
	intEnA bool
}

var harts [NHART]hartState

// CurrentHart is overridden by the scheduler/bootstrap at hart-start
// time; it must return a stable, distinct id per hart (0..NHART-1). It
// defaults to always-0 so single-hart tests and callers outside the
// scheduler still behave deterministically.
var CurrentHart func() int = func() int { return 0 }

// IntrOn/IntrOff/IntrGet abstract the RISC-V sstatus.SIE bit; they are
// overridden by the trap package at boot, since toggling real
// interrupts requires a CSR write this package must not depend on
// directly (ksync sits below trap in the lock hierarchy).
var (
	IntrOn  func()     = func() {}
	IntrOff func()     = func() {}
	IntrGet func() bool = func() bool { return false }
)

// PushOff disables interrupts, nesting safely: only the outermost
// call records the pre-existing interrupt-enable state, matching
// spec.md §4.3 and the invariant in spec.md §8.5.
func PushOff() {
	old := IntrGet()
	IntrOff()
	h := &harts[CurrentHart()]
	if h.depth == 0 {
		h.intEnA = old
	}
	h.depth++
}

// PopOff restores the interrupt-enable state saved by the outermost
// PushOff. Panics if interrupts are observed enabled while a lock is
// still logically held, or if called without a matching PushOff —
// both are invariant violations (spec.md §7).
func PopOff() {
	h := &harts[CurrentHart()]
	if IntrGet() {
		panic("pop_off: interrupts enabled while locks held")
	}
	if h.depth < 1 {
		panic("pop_off: unbalanced with push_off")
	}
	h.depth--
	if h.depth == 0 && h.intEnA {
		IntrOn()
	}
}

// PushOffDepth reports the current hart's push_off nesting depth,
// exposed for the invariant check in spec.md §8.5.
func PushOffDepth() int {
	return int(harts[CurrentHart()].depth)
}

// SpinLock is a one-bit mutex acquired with compare-and-swap and held
// with interrupts disabled, so a hart can never be preempted by its
// own timer handler while holding it (spec.md §4.3).
type SpinLock struct {
	held atomic.Bool
}

// Lock disables interrupts (via PushOff) then spins until the lock is
// acquired.
func (s *SpinLock) Lock() {
	PushOff()
	for !s.held.CompareAndSwap(false, true) {
		for s.held.Load() {
			// spin
		}
	}
}

// TryLock attempts a non-blocking acquisition. On failure it restores
// the interrupt state exactly as if PushOff/PopOff had never been
// called.
func (s *SpinLock) TryLock() bool {
	PushOff()
	if s.held.CompareAndSwap(false, true) {
		return true
	}
	PopOff()
	return false
}

// Unlock releases the lock and re-enables interrupts if this was the
// outermost held lock on this hart.
func (s *SpinLock) Unlock() {
	if !s.held.CompareAndSwap(true, false) {
		panic("unlock of unheld SpinLock")
	}
	PopOff()
}

// Held reports whether the lock is currently held by some hart. Only
// meant for assertions, never for control flow (TOCTOU).
func (s *SpinLock) Held() bool {
	return s.held.Load()
}
