// Package syscall decodes a syscall number and its six arguments and
// routes to an in-scope handler (spec.md §4.10, §6). Named dispatch.go
// rather than syscall.go to avoid shadowing the standard library's
// import path, the same avoidance the teacher applies to its own
// package names. Bodies for syscalls whose semantics are out of scope
// (file I/O, signal delivery, timers beyond the clock read) report
// ENOSYS rather than being silently absent, matching what a real but
// incomplete kernel actually returns.
package syscall

import (
	"encoding/binary"
	"time"

	"rv39kernel/defs"
	"rv39kernel/ksync"
	"rv39kernel/limits"
	"rv39kernel/mm"
	"rv39kernel/paging"
	"rv39kernel/sched"
	"rv39kernel/task"
)

// Args is the six-register argument vector a trap handler extracts
// from a task's trapframe (a0..a5) before calling Dispatch.
type Args [6]uint64

// Dispatch decodes number and routes it to a handler, returning the
// value for a0 and the errno to report (0 on success).
func Dispatch(t *task.Task, number uint64, a Args) (uint64, defs.Err_t) {
	switch number {
	case defs.SYS_EXIT, defs.SYS_EXIT_GROUP:
		return sysExit(t, a)
	case defs.SYS_GETPID:
		return uint64(t.Pid), 0
	case defs.SYS_GETTID:
		return uint64(t.Tid), 0
	case defs.SYS_SET_TID_ADDRESS:
		t.SetClearChildTid(a[0])
		return uint64(t.Tid), 0
	case defs.SYS_BRK:
		return sysBrk(t, a)
	case defs.SYS_MUNMAP:
		return sysMunmap(t, a)
	case defs.SYS_MMAP:
		return sysMmap(t, a)
	case defs.SYS_MPROTECT:
		return sysMprotect(t, a)
	case defs.SYS_CLONE:
		return sysClone(t, a)
	case defs.SYS_WAIT4:
		return sysWait4(t, a)
	case defs.SYS_PRLIMIT64:
		return sysPrlimit64(t, a)
	case defs.SYS_CLOCK_GETTIME, defs.SYS_GETTIMEOFDAY:
		return sysClock(t, number, a)
	case defs.SYS_EXECVE:
		// Resolving a path and reading its contents needs a working
		// filesystem/open path, a Non-goal here (spec.md §1).
		return 0, defs.ENOSYS
	default:
		// openat/close/pipe/lseek/read/write/readv/writev/nanosleep/
		// sigaction/sigprocmask/sigreturn: bodies beyond dispatch are a
		// Non-goal (spec.md §1).
		return 0, defs.ENOSYS
	}
}

func sysExit(t *task.Task, a Args) (uint64, defs.Err_t) {
	t.Exit(int(int32(a[0])))
	return 0, 0
}

func sysBrk(t *task.Task, a Args) (uint64, defs.Err_t) {
	if a[0] == 0 {
		return t.MM.Brk, 0
	}
	nb, err := t.MM.SetBrk(a[0])
	return nb, err
}

func sysMunmap(t *task.Task, a Args) (uint64, defs.Err_t) {
	addr, length := a[0], a[1]
	if length == 0 {
		return 0, defs.EINVAL
	}
	start := paging.VPageFromAddr(addr)
	end := paging.VPageFromAddr(roundup(addr + length))
	return 0, t.MM.Unmap(start, end)
}

func sysMprotect(t *task.Task, a Args) (uint64, defs.Err_t) {
	addr, length, prot := a[0], a[1], uint(a[2])
	if length == 0 {
		return 0, defs.EINVAL
	}
	start := paging.VPageFromAddr(addr)
	end := paging.VPageFromAddr(roundup(addr + length))
	return 0, t.MM.Protect(start, end, protToVM(prot))
}

func sysMmap(t *task.Task, a Args) (uint64, defs.Err_t) {
	addr, length, prot, flags := a[0], a[1], uint(a[2]), uint(a[3])
	if length == 0 {
		return 0, defs.EINVAL
	}
	if flags&defs.MAP_ANONYMOUS == 0 {
		// File-backed mmap needs a working openat/read path (Non-goal).
		return 0, defs.ENOSYS
	}
	n := int(roundup(length) / paging.PageSize)
	vflags := mm.VMUser | protToVM(prot)
	if flags&defs.MAP_SHARED != 0 {
		vflags |= mm.VMShared
	}
	if flags&defs.MAP_GROWSDOWN != 0 {
		vflags |= mm.VMGrowsDown
	}

	start := paging.VPageFromAddr(addr)
	if addr == 0 || flags&defs.MAP_FIXED == 0 {
		var ok bool
		start, ok = t.MM.FindFreeRegion(mm.MmapSearchBase, n)
		if !ok {
			return 0, defs.ENOMEM
		}
	}
	if _, err := t.MM.AllocAnonVMA(start, start+paging.VPage(n), vflags); err != 0 {
		return 0, err
	}
	return start.StartAddress(), 0
}

func protToVM(prot uint) uint {
	var v uint
	if prot&defs.PROT_READ != 0 {
		v |= mm.VMRead
	}
	if prot&defs.PROT_WRITE != 0 {
		v |= mm.VMWrite
	}
	if prot&defs.PROT_EXEC != 0 {
		v |= mm.VMExec
	}
	return v
}

func roundup(v uint64) uint64 {
	return (v + paging.PageSize - 1) &^ (paging.PageSize - 1)
}

func sysClone(t *task.Task, a Args) (uint64, defs.Err_t) {
	flags := uint(a[0])
	child, err := t.Clone(flags, a[1], a[2], a[3], a[4])
	if err != 0 {
		return 0, err
	}
	sched.Register(child)
	sched.Enqueue(child)
	return uint64(child.Tid), 0
}

// sysWait4 reaps an already-zombie child matching pid (pid<=0 matches
// any), blocking on the parent's own wait channel (task.Wait4Channel)
// until one appears (spec.md §4.7/§4.8, wait4). options (a[2]) is
// ignored: WNOHANG isn't distinguished since nothing here ever blocks
// the calling hart itself, only the calling task.
func sysWait4(t *task.Task, a Args) (uint64, defs.Err_t) {
	pid := int64(int32(a[0]))
	statusAddr := a[1]
	rusageAddr := a[3]

	for {
		if child, ok := findZombieChild(t, pid); ok {
			return finishWait4(t, child, statusAddr, rusageAddr)
		}
		if len(t.Children()) == 0 {
			return 0, defs.ECHILD
		}
		ksync.Park(task.Wait4Channel(t))
	}
}

func findZombieChild(t *task.Task, pid int64) (*task.Task, bool) {
	for _, c := range t.Children() {
		if c.State() != task.Zombie {
			continue
		}
		if pid > 0 && int64(c.Pid) != pid {
			continue
		}
		return c, true
	}
	return nil, false
}

func finishWait4(t *task.Task, child *task.Task, statusAddr, rusageAddr uint64) (uint64, defs.Err_t) {
	if statusAddr != 0 {
		writeBytes(t.MM, statusAddr, encodeWaitStatus(child.ExitCode()))
	}
	if rusageAddr != 0 {
		writeBytes(t.MM, rusageAddr, child.Accnt.Fetch())
	}
	gotPid := uint64(child.Pid)
	child.DetachFromParent()
	return gotPid, 0
}

// encodeWaitStatus packs a normal-exit status the way Linux's
// wait(2)/WIFEXITED/WEXITSTATUS macros expect: exit code in bits 8-15,
// low byte zero.
func encodeWaitStatus(code int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(code&0xff)<<8)
	return b[:]
}

func writeBytes(m *mm.MM, va uint64, data []byte) {
	bufs, err := m.GetBufMut(va, len(data), true)
	if err != 0 {
		return
	}
	off := 0
	for _, b := range bufs {
		n := copy(b, data[off:])
		off += n
	}
}

func sysPrlimit64(t *task.Task, a Args) (uint64, defs.Err_t) {
	resource := int(a[1])
	newAddr := a[2]
	oldAddr := a[3]

	if oldAddr != 0 {
		cur, ok := t.Limits.Get(resource)
		if !ok {
			return 0, defs.EINVAL
		}
		writeBytes(t.MM, oldAddr, cur.Bytes())
	}
	if newAddr != 0 {
		bufs, err := t.MM.GetBufMut(newAddr, 16, false)
		if err != 0 {
			return 0, err
		}
		var raw [16]byte
		off := 0
		for _, b := range bufs {
			n := copy(raw[off:], b)
			off += n
		}
		t.Limits.Set(resource, limits.RlimitFromBytes(raw[:]))
	}
	return 0, 0
}

// clockEpoch is the process-wide reference instant clock_gettime and
// gettimeofday both measure against, present so the two syscalls share
// one time source instead of being independently stubbed (spec.md §6,
// SPEC_FULL supplement).
var clockEpoch = time.Now()

func sysClock(t *task.Task, number uint64, a Args) (uint64, defs.Err_t) {
	now := time.Since(clockEpoch)
	var buf []byte
	switch number {
	case defs.SYS_CLOCK_GETTIME:
		buf = encodeTimespec(now)
	default:
		buf = encodeTimeval(now)
	}
	addr := a[1]
	if number == defs.SYS_GETTIMEOFDAY {
		addr = a[0]
	}
	writeBytes(t.MM, addr, buf)
	return 0, 0
}

func encodeTimespec(d time.Duration) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(d/time.Second))
	binary.LittleEndian.PutUint64(b[8:], uint64(d%time.Second))
	return b[:]
}

func encodeTimeval(d time.Duration) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(d/time.Second))
	binary.LittleEndian.PutUint64(b[8:], uint64((d%time.Second)/time.Microsecond))
	return b[:]
}
