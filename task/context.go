// Package task implements the thread control block: kernel stack,
// trapframe, task context, parent/child tree, file table, and signal
// state (spec.md §3, §4.7). Grounded on the teacher's accnt.Accnt_t
// (per-task accounting), tinfo.Tnote_t/Threadinfo_t (the locked
// per-thread note, generalized below into lockedInner), and
// fd.Fd_t/Copyfd (file-descriptor sharing/duplication).
package task

// Context holds the callee-saved registers a hart-local context
// switch preserves across a task (spec.md §4.8: "ra, sp, and s0..s11
// of the current context"). The teacher has no equivalent — it runs
// every task as a goroutine under a patched Go runtime and lets that
// runtime's own scheduler do the switching (see tinfo.Tnote_t's use of
// runtime.Gptr/Setgptr) — so this is grounded instead on
// original_source's kernel/src/task/context.rs, whose fields it
// mirrors one-for-one. The real implementation is a naked RISC-V
// routine swapping these fields between two Context values; that
// asm routine cannot be expressed in portable Go, so Switch is a
// function variable the trap/scheduler packages install, standing in
// for it (see DESIGN.md).
type Context struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// NewContext builds the context a brand new task resumes into:
// execution begins at entry (user_trap_return in the real kernel) on
// top of the kernel stack whose top is kstackTop.
func NewContext(entry, kstackTop uint64) Context {
	return Context{RA: entry, SP: kstackTop}
}

// Switch is installed by package trap at boot with the real
// (simulated) context-switch routine; the default is a harmless
// no-op so task unit tests don't need a trap package dependency.
var Switch func(prev, next *Context) = func(prev, next *Context) {}

// UserTrapReturnAddr is the entry address every fresh task's context
// resumes into (the real kernel's user_trap_return); package trap
// installs the real value at boot. Zero is a harmless placeholder for
// unit tests that construct tasks without a trap package dependency.
var UserTrapReturnAddr uint64

