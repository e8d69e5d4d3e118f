// Package sched implements the per-hart idle loop, the single global
// run queue, and the ksync.Sched park/wake hook (spec.md §4.8).
// Grounded on the teacher's tinfo.Threadinfo_t locked map-of-notes
// pattern, generalized here into a locked run queue plus a registry of
// every live task (needed since a parked task is off the run queue
// entirely and WakeChannel must still find it), and the teacher's
// sync.Cond-based park/wake idiom for the idle loop itself.
package sched

import (
	"rv39kernel/ksync"
	"rv39kernel/task"
)

// Scheduler owns the run queue, the task registry, and one idle
// context per hart. There is exactly one instance, installed into
// ksync via SetSched at boot.
type Scheduler struct {
	lock     ksync.SpinLock
	runQ     []*task.Task
	all      []*task.Task
	idleCtx  [ksync.NHART]task.Context
	initTask *task.Task
}

var global = &Scheduler{}

// Init installs the scheduler hook into ksync and task, and records
// initTask as the reparent target for orphaned children (spec.md
// §4.8's zombie handler). Called once from package boot.
func Init(initTask *task.Task) {
	global.initTask = initTask
	ksync.SetSched(global)
	task.WakeFutex = func(addr uint64) { global.WakeChannel(int(addr)) }
	Register(initTask)
}

// Register adds t to the task registry a WakeChannel scan searches;
// every task that can ever be parked (every task, in practice) must be
// registered once at creation.
func Register(t *task.Task) {
	global.lock.Lock()
	global.all = append(global.all, t)
	global.lock.Unlock()
}

// Enqueue pushes t to the back of the run queue, making it eligible to
// run on any hart.
func Enqueue(t *task.Task) {
	global.lock.Lock()
	global.runQ = append(global.runQ, t)
	global.lock.Unlock()
}

func (s *Scheduler) popFront() (*task.Task, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.runQ) == 0 {
		return nil, false
	}
	t := s.runQ[0]
	s.runQ = s.runQ[1:]
	return t, true
}

// RunHart runs the idle loop for hartID forever (spec.md §4.8, steps
// 1-4). Called once per hart at boot; never returns.
func RunHart(hartID int) {
	for {
		t, ok := global.popFront()
		if !ok {
			continue // no runnable task; keep polling the queue
		}
		t.SetState(task.Running)
		task.SetCurrent(t)

		task.Switch(&global.idleCtx[hartID], t.Context())

		switch t.State() {
		case task.Runnable:
			Enqueue(t)
		case task.Zombie:
			global.handleZombie(t)
		default:
			// Interruptible/Uninterruptible/Stopped: stays out of the
			// queue until ParkOnChannel's caller or an explicit wake
			// (e.g. a signal, not modeled here) makes it runnable again.
		}
		task.SetCurrent(nil)
	}
}

// handleZombie reparents t's children to init and leaves t itself
// reachable from its own parent's child list until wait4 reaps it (see
// task.DetachFromParent; spec.md §4.8 names this step but a zombie
// still needs to be discoverable by the parent's wait4 in the
// meantime, so outright removal is deferred to reap time).
func (s *Scheduler) handleZombie(t *task.Task) {
	if s.initTask != nil {
		t.ReparentChildrenTo(s.initTask)
	}
}

// DoYield implements voluntary yield: mark the calling task RUNNABLE
// and switch back to this hart's idle context (spec.md §4.8). A timer
// interrupt returning to user space calls this too (spec.md §4.9,
// Interrupt:SupervisorTimer).
func DoYield() {
	t := task.Current()
	if t == nil {
		return
	}
	t.SetState(task.Runnable)
	hart := ksync.CurrentHart()
	task.Switch(t.Context(), &global.idleCtx[hart])
}

// ParkOnChannel implements ksync.Sched: mark the calling task
// INTERRUPTIBLE, record the channel it is waiting on, and switch away
// until WakeChannel makes it RUNNABLE again (spec.md §4.8, §5
// "Suspension points").
func (s *Scheduler) ParkOnChannel(channel int) {
	t := task.Current()
	if t == nil {
		return
	}
	t.SetSleepChannel(channel)
	t.SetState(task.Interruptible)
	hart := ksync.CurrentHart()
	task.Switch(t.Context(), &s.idleCtx[hart])
}

// WakeChannel implements ksync.Sched: every registered task parked on
// channel is marked RUNNABLE and pushed onto the run queue.
func (s *Scheduler) WakeChannel(channel int) {
	s.lock.Lock()
	var woken []*task.Task
	for _, t := range s.all {
		st := t.State()
		if (st == task.Interruptible || st == task.Uninterruptible) && t.SleepChannel() == channel {
			t.SetState(task.Runnable)
			woken = append(woken, t)
		}
	}
	s.lock.Unlock()
	for _, t := range woken {
		Enqueue(t)
	}
}
