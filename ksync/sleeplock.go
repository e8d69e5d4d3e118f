package ksync

import "rv39kernel/id"

// chanIDs is the sleep-lock channel id allocator singleton (spec.md
// §4.3: "Channel IDs are issued by the sleep-lock id allocator").
var chanIDs = id.New(1)

// Sched is the hook ksync calls into to actually park and wake the
// current task. It is implemented by package sched and installed via
// SetSched during bootstrap; this keeps ksync below sched in the
// import graph (sched needs locks; locks must not import sched)
// while still letting SleepLock block the caller, per the design
// notes in spec.md §9.
type Sched interface {
	// ParkOnChannel marks the calling task INTERRUPTIBLE, records
	// channel as the value it is sleeping on, and switches away to
	// the scheduler. It returns once the task has been woken and is
	// RUNNING again.
	ParkOnChannel(channel int)
	// WakeChannel sets RUNNABLE every task whose "sleeping on" value
	// equals channel.
	WakeChannel(channel int)
}

var sched Sched

// SetSched installs the scheduler hook. Called once from sched.Init.
func SetSched(s Sched) {
	sched = s
}

// Park blocks the calling task on channel via the installed scheduler
// hook, for blocking operations that aren't a SleepLock (e.g. wait4
// parking on a child's exit).
func Park(channel int) {
	if sched == nil {
		panic("ksync: Park used before SetSched")
	}
	sched.ParkOnChannel(channel)
}

// Wake wakes every task parked on channel via the installed scheduler
// hook; a no-op before SetSched, matching SleepLockGuard.Unlock's own
// nil check.
func Wake(channel int) {
	if sched != nil {
		sched.WakeChannel(channel)
	}
}

// SleepLock is a spin-locked mutex whose waiters block the calling
// task (via the scheduler) instead of spinning, appropriate for
// critical sections that may take a while (spec.md §4.3).
type SleepLock[T any] struct {
	inner   SpinLock
	channel int
	locked  bool
	data    T
}

// NewSleepLock constructs a sleep lock wrapping data, with a fresh
// channel id from the shared sleep-lock id allocator.
func NewSleepLock[T any](data T) *SleepLock[T] {
	return &SleepLock[T]{channel: chanIDs.Alloc(), data: data}
}

// SleepLockGuard grants access to the protected data while held;
// releasing it (via Unlock) wakes every task sleeping on this lock's
// channel, guaranteeing no waiter present at release time is missed
// (spec.md §8.6).
type SleepLockGuard[T any] struct {
	l *SleepLock[T]
}

// Lock acquires the lock, parking the calling task via the installed
// Sched hook whenever another holder is in the critical section.
func (l *SleepLock[T]) Lock() *SleepLockGuard[T] {
	for {
		l.inner.Lock()
		if !l.locked {
			l.locked = true
			l.inner.Unlock()
			return &SleepLockGuard[T]{l: l}
		}
		channel := l.channel
		l.inner.Unlock()
		if sched == nil {
			panic("ksync: SleepLock used before SetSched")
		}
		sched.ParkOnChannel(channel)
	}
}

// Unlock releases the lock and wakes every waiter on its channel.
func (g *SleepLockGuard[T]) Unlock() {
	l := g.l
	l.inner.Lock()
	l.locked = false
	channel := l.channel
	l.inner.Unlock()
	if sched != nil {
		sched.WakeChannel(channel)
	}
}

// Data returns a pointer to the protected value; only valid while the
// guard is held.
func (g *SleepLockGuard[T]) Data() *T {
	return &g.l.data
}
