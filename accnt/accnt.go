// Package accnt tracks per-task CPU usage for getrusage/wait4-style
// accounting. Grounded on the teacher's accnt.Accnt_t, kept as a field
// on task.Task rather than process-wide since this module tracks
// accounting at thread granularity (spec.md §3).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"rv39kernel/util"
)

// Accnt accumulates user and system time in nanoseconds. The embedded
// mutex lets Fetch/Add take a consistent snapshot.
type Accnt struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds of system time.
func (a *Accnt) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt) Now() int {
	return int(time.Now().UnixNano())
}

// IOTime removes time spent waiting for I/O from system time, so
// blocking syscalls don't inflate a task's reported CPU usage.
func (a *Accnt) IOTime(since int) {
	a.Systadd(-(a.Now() - since))
}

// SleepTime removes time spent parked on a channel from system time
// (spec.md §4.8's ParkOnChannel).
func (a *Accnt) SleepTime(since int) {
	a.Systadd(-(a.Now() - since))
}

// Finish adds the time since inttime to system time, called when a
// syscall returns to user space.
func (a *Accnt) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges a child's exited accounting into this one, called when a
// zombie child is reaped (spec.md §4.7, wait4 accumulates children's
// usage into the parent's).
func (a *Accnt) Add(n *Accnt) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

// Fetch returns a consistent snapshot encoded as a struct rusage
// (ru_utime, ru_stime; the remaining rusage fields are always zero
// since this module tracks only CPU time, spec.md §1).
func (a *Accnt) Fetch() []uint8 {
	a.Lock()
	ru := a.toRusage()
	a.Unlock()
	return ru
}

func (a *Accnt) toRusage() []uint8 {
	ret := make([]uint8, 16*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
