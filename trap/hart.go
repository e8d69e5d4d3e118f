package trap

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"rv39kernel/ksync"
	"rv39kernel/task"
)

// hartTable maps an OS thread id (as returned by unix.Gettid) to the
// hart id RegisterHart pinned it to. golang.org/x/sys/unix is already
// wired into this module for errno constants (defs/defs.go); this
// extends it to the same package's process/thread-introspection
// surface rather than reaching for a second dependency. This is the
// portable-Go substitute for the teacher's patched-runtime
// Gptr/Setgptr hart-local storage (task.go's own doc comment on
// task.Current explains why that hook is unavailable here).
var (
	hartTableLock sync.Mutex
	hartTable     = map[int]int{}
)

// switchCount is incremented on every simulated context switch, purely
// as an observable effect standing in for the naked asm routine's
// register save/restore (there is no real machine state to move).
var switchCount atomic.Int64

// RegisterHart pins the calling goroutine to its own OS thread for the
// rest of its lifetime and records it as hartID, so CurrentHart can
// later identify it. Must be called once, at the top of each hart's
// boot entry, before anything on that hart touches a SpinLock or
// task.Current (spec.md §4.11: "per-hart entry").
func RegisterHart(hartID int) {
	runtime.LockOSThread()
	tid := unix.Gettid()
	hartTableLock.Lock()
	hartTable[tid] = hartID
	hartTableLock.Unlock()
}

func currentHart() int {
	tid := unix.Gettid()
	hartTableLock.Lock()
	id, ok := hartTable[tid]
	hartTableLock.Unlock()
	if !ok {
		return 0
	}
	return id
}

// perHartIntr tracks the simulated sstatus.SIE bit per hart, since
// there is no real CSR to read or write here.
var perHartIntr [ksync.NHART]atomic.Bool

func init() {
	for i := range perHartIntr {
		perHartIntr[i].Store(true)
	}
}

// Install wires this package's simulated hardware hooks into ksync and
// task, the step spec.md §4.11 calls "kernel page table activation"'s
// software-side counterpart: every hook task/ksync need before running
// a single hart must point at a real (simulated) implementation rather
// than their harmless boot-time no-op defaults. Called once from
// package boot before any hart runs.
func Install() {
	ksync.CurrentHart = currentHart
	ksync.IntrOn = func() { perHartIntr[currentHart()].Store(true) }
	ksync.IntrOff = func() { perHartIntr[currentHart()].Store(false) }
	ksync.IntrGet = func() bool { return perHartIntr[currentHart()].Load() }
	task.Switch = Switch
	task.UserTrapReturnAddr = 0
}

// Switch stands in for the naked context-switch routine (spec.md
// §4.8's "saves ra, sp, and s0..s11 ... and restores them from the
// next context"): there is no real machine state to move since no
// instruction stream actually executes between traps in this
// simulation, so the only externally observable effect is the
// switch counter; prev/next are otherwise untouched, matching what a
// real switch into a context already holding the correct saved values
// would do.
func Switch(prev, next *task.Context) {
	switchCount.Add(1)
}

// SwitchCount reports how many simulated context switches have
// occurred, for tests asserting that a scheduling path actually went
// through Switch rather than short-circuiting around it.
func SwitchCount() int64 {
	return switchCount.Load()
}
