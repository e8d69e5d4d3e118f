package task

import "rv39kernel/ksync"

// Exit records code as the task's exit status, clears and futex-wakes
// *clear_child_tid if CLONE_CHILD_CLEARTID was set at creation, wakes
// the parent's wait4 (parked on the parent's own tid channel; see
// Wait4Channel), and marks the task ZOMBIE. Reparenting children to
// init is the scheduler's job at the next idle-loop pass over a ZOMBIE
// task (spec.md §4.8), and the task leaves its parent's child list when
// wait4 reaps it (DetachFromParent); Exit only does what the exiting
// task itself must do before it stops running.
func (t *Task) Exit(code int) {
	t.inner.exitCode = code
	if ctid := t.inner.clearChildTid; ctid != 0 {
		writeU64(t.MM, ctid, 0)
		WakeFutex(ctid)
	}
	t.SetState(Zombie)
	if p := t.Parent(); p != nil {
		ksync.Wake(Wait4Channel(p))
	}
}

// Wait4Channel is the sleep channel a parent's wait4 parks on and
// every one of its children's Exit wakes: the parent's own tid, reused
// as a channel number rather than allocated from ksync's sleep-lock id
// pool, since any number of (unrelated) uses of the same int as a
// channel only ever causes a harmless spurious wakeup.
func Wait4Channel(parent *Task) int { return int(parent.Tid) }

// WakeFutex is installed by package sched (it owns the sleep-channel
// mapping a futex address resolves to); the default is a harmless
// no-op for tests that exit a task without a scheduler present.
var WakeFutex func(addr uint64) = func(uint64) {}
