package syscall

import (
	"encoding/binary"
	"os"
	"testing"

	"rv39kernel/defs"
	"rv39kernel/frame"
	"rv39kernel/limits"
	"rv39kernel/paging"
	"rv39kernel/task"
)

// TestMain seeds the physical frame allocator once for the whole
// package's test binary, the same fix applied to the task/sched/mm
// packages: frame.Global starts with no region at all, and every
// handler here eventually allocates a frame through some task's MM.
// Sized larger than those packages' own TestMain since this file
// constructs many independent tasks (one or more per test function)
// rather than reusing a handful across the whole suite.
func TestMain(m *testing.M) {
	frame.Global().AddRegion(0, 1<<20)
	os.Exit(m.Run())
}

// buildMinimalELF assembles the smallest ELF64 RISC-V executable
// debug/elf.NewFile will accept: one PT_LOAD segment, entry point at
// the start of that segment. Duplicated from the task package's own
// test fixture since it isn't exported.
func buildMinimalELF(vaddr uint64, code []byte) []byte {
	const (
		ehsize  = 64
		phentsz = 56
	)
	phoff := uint64(ehsize)
	dataOff := phoff + phentsz

	buf := make([]byte, dataOff+uint64(len(code)))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 243)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], phoff)
	le.PutUint64(buf[40:], 0)
	le.PutUint32(buf[48:], 0)
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsz)
	le.PutUint16(buf[56:], 1)
	le.PutUint16(buf[58:], 0)
	le.PutUint16(buf[60:], 0)
	le.PutUint16(buf[62:], 0)

	p := buf[phoff:]
	le.PutUint32(p[0:], 1)
	le.PutUint32(p[4:], 5)
	le.PutUint64(p[8:], dataOff)
	le.PutUint64(p[16:], vaddr)
	le.PutUint64(p[24:], vaddr)
	le.PutUint64(p[32:], uint64(len(code)))
	le.PutUint64(p[40:], uint64(len(code)))
	le.PutUint64(p[48:], 0x1000)

	copy(buf[dataOff:], code)
	return buf
}

func testELF() []byte {
	return buildMinimalELF(0x1000, make([]byte, 16))
}

func newTestTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.NewInit(testELF(), nil, nil)
	if err != 0 {
		t.Fatalf("NewInit: %v", err)
	}
	return tk
}

func TestDispatchGetpidGettid(t *testing.T) {
	tk := newTestTask(t)

	ret, err := Dispatch(tk, defs.SYS_GETPID, Args{})
	if err != 0 || ret != uint64(tk.Pid) {
		t.Fatalf("getpid = (%d,%v), want (%d,0)", ret, err, tk.Pid)
	}

	ret, err = Dispatch(tk, defs.SYS_GETTID, Args{})
	if err != 0 || ret != uint64(tk.Tid) {
		t.Fatalf("gettid = (%d,%v), want (%d,0)", ret, err, tk.Tid)
	}
}

func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	tk := newTestTask(t)
	if _, err := Dispatch(tk, 0xffff, Args{}); err != defs.ENOSYS {
		t.Fatalf("unknown syscall = %v, want ENOSYS", err)
	}
}

func TestSysBrkGrowsAndQueries(t *testing.T) {
	tk := newTestTask(t)
	startBrk := tk.MM.Brk

	queried, err := Dispatch(tk, defs.SYS_BRK, Args{0})
	if err != 0 || queried != startBrk {
		t.Fatalf("brk(0) = (%d,%v), want (%d,0)", queried, err, startBrk)
	}

	newBrk := startBrk + paging.PageSize*3
	got, err := Dispatch(tk, defs.SYS_BRK, Args{newBrk})
	if err != 0 || got != newBrk {
		t.Fatalf("brk(grow) = (%d,%v), want (%d,0)", got, err, newBrk)
	}
}

func TestSysMmapAnonThenMunmap(t *testing.T) {
	tk := newTestTask(t)

	length := uint64(paging.PageSize * 2)
	flags := uint64(defs.MAP_ANONYMOUS)
	prot := uint64(defs.PROT_READ | defs.PROT_WRITE)

	addr, err := Dispatch(tk, defs.SYS_MMAP, Args{0, length, prot, flags})
	if err != 0 || addr == 0 {
		t.Fatalf("mmap = (%#x,%v), want a nonzero address and no error", addr, err)
	}

	if _, err := Dispatch(tk, defs.SYS_MUNMAP, Args{addr, length}); err != 0 {
		t.Fatalf("munmap after mmap: %v", err)
	}
}

func TestSysMmapFileBackedIsENOSYS(t *testing.T) {
	tk := newTestTask(t)
	if _, err := Dispatch(tk, defs.SYS_MMAP, Args{0, paging.PageSize, 0, 0}); err != defs.ENOSYS {
		t.Fatalf("file-backed mmap = %v, want ENOSYS", err)
	}
}

func TestSysMprotectChangesFlagsOnMappedRegion(t *testing.T) {
	tk := newTestTask(t)

	length := uint64(paging.PageSize)
	flags := uint64(defs.MAP_ANONYMOUS)
	prot := uint64(defs.PROT_READ | defs.PROT_WRITE)
	addr, err := Dispatch(tk, defs.SYS_MMAP, Args{0, length, prot, flags})
	if err != 0 {
		t.Fatalf("mmap: %v", err)
	}

	readOnly := uint64(defs.PROT_READ)
	if _, err := Dispatch(tk, defs.SYS_MPROTECT, Args{addr, length, readOnly}); err != 0 {
		t.Fatalf("mprotect: %v", err)
	}
}

func TestSysWait4NoChildrenReturnsECHILD(t *testing.T) {
	tk := newTestTask(t)
	if _, err := Dispatch(tk, defs.SYS_WAIT4, Args{0, 0, 0, 0}); err != defs.ECHILD {
		t.Fatalf("wait4 with no children = %v, want ECHILD", err)
	}
}

func TestSysWait4ReapsZombieChild(t *testing.T) {
	parent := newTestTask(t)
	child, err := parent.Clone(defs.CLONE_VM, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	child.Exit(7)

	gotPid, werr := Dispatch(parent, defs.SYS_WAIT4, Args{uint64(child.Pid), 0, 0, 0})
	if werr != 0 || gotPid != uint64(child.Pid) {
		t.Fatalf("wait4 = (%d,%v), want (%d,0)", gotPid, werr, child.Pid)
	}

	if len(parent.Children()) != 0 {
		t.Fatalf("reaped child still present in parent's child list")
	}
}

// growHeap grows tk's heap by one page via brk(2) and returns an
// address inside that freshly-mapped, writable page, for tests that
// need a valid user pointer to exercise.
func growHeap(t *testing.T, tk *task.Task) uint64 {
	t.Helper()
	start := tk.MM.Brk
	newBrk, err := Dispatch(tk, defs.SYS_BRK, Args{start + paging.PageSize})
	if err != 0 {
		t.Fatalf("brk(grow): %v", err)
	}
	return newBrk - 16
}

func TestSysPrlimit64GetAndSet(t *testing.T) {
	tk := newTestTask(t)
	addr := growHeap(t, tk)

	if _, err := Dispatch(tk, defs.SYS_PRLIMIT64, Args{0, uint64(limits.RlimitNoFile), 0, addr}); err != 0 {
		t.Fatalf("prlimit64(GET): %v", err)
	}

	cur, ok := tk.Limits.Get(limits.RlimitNoFile)
	if !ok {
		t.Fatalf("RlimitNoFile missing after GET")
	}
	bufs, err := tk.MM.GetBufMut(addr, 16, false)
	if err != 0 || len(bufs) == 0 {
		t.Fatalf("re-reading written limit: %v", err)
	}
	var raw [16]byte
	off := 0
	for _, b := range bufs {
		off += copy(raw[off:], b)
	}
	decoded := limits.RlimitFromBytes(raw[:])
	if decoded.Cur() != cur.Cur() || decoded.Max() != cur.Max() {
		t.Fatalf("GET wrote {%d,%d}, want {%d,%d}", decoded.Cur(), decoded.Max(), cur.Cur(), cur.Max())
	}
}

func TestSysClockWritesTimespec(t *testing.T) {
	tk := newTestTask(t)
	addr := growHeap(t, tk)
	if _, err := Dispatch(tk, defs.SYS_CLOCK_GETTIME, Args{0, addr}); err != 0 {
		t.Fatalf("clock_gettime: %v", err)
	}
}
