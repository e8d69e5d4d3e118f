package mm

import (
	"os"
	"testing"

	"rv39kernel/defs"
	"rv39kernel/frame"
	"rv39kernel/paging"
)

// TestMain seeds the physical frame allocator once for the package's
// test binary; every test constructs at least one MM, which needs
// frames for its page table and any eagerly-backed VMA (spec.md §4.1,
// AddRegion "called exactly once at boot").
func TestMain(m *testing.M) {
	frame.Global().AddRegion(0, 1<<16)
	os.Exit(m.Run())
}

const testBase = paging.VPage(0x10)

func newTestMM(t *testing.T) *MM {
	t.Helper()
	m, err := New()
	if err != 0 {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestAllocWriteVMARoundTrip(t *testing.T) {
	m := newTestMM(t)
	data := []byte("hello world")
	v, err := m.AllocWriteVMA(data, testBase, testBase+1, VMRead|VMWrite|VMUser)
	if err != 0 {
		t.Fatalf("AllocWriteVMA: %v", err)
	}
	if v.Start != testBase || v.End != testBase+1 {
		t.Fatalf("VMA bounds = [%v,%v), want [%v,%v)", v.Start, v.End, testBase, testBase+1)
	}

	bufs, gerr := m.GetBufMut(testBase.StartAddress(), len(data), false)
	if gerr != 0 {
		t.Fatalf("GetBufMut: %v", gerr)
	}
	if len(bufs) != 1 || string(bufs[0][:len(data)]) != string(data) {
		t.Fatalf("GetBufMut returned %q, want %q", bufs, data)
	}
}

func TestAllocWriteVMARejectsOverlap(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocWriteVMA(nil, testBase, testBase+4, VMRead|VMWrite); err != 0 {
		t.Fatalf("first AllocWriteVMA: %v", err)
	}
	if _, err := m.AllocWriteVMA(nil, testBase+1, testBase+2, VMRead); err != defs.EINVAL {
		t.Fatalf("overlapping AllocWriteVMA = %v, want EINVAL", err)
	}
}

func TestFaultLazyPageThenTranslate(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocAnonVMA(testBase, testBase+1, VMRead|VMWrite|VMUser); err != 0 {
		t.Fatalf("AllocAnonVMA: %v", err)
	}
	va := testBase.StartAddress()
	if _, err := m.Translate(va); err == 0 {
		t.Fatalf("Translate succeeded before any fault")
	}
	if err := m.Fault(va, VMWrite); err != 0 {
		t.Fatalf("Fault: %v", err)
	}
	if _, err := m.Translate(va); err != 0 {
		t.Fatalf("Translate after Fault: %v", err)
	}
}

func TestUnmapRemovesPartialRangeOnly(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocAnonVMA(testBase, testBase+4, VMRead|VMWrite|VMUser); err != 0 {
		t.Fatalf("AllocAnonVMA: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := m.Fault((testBase + paging.VPage(i)).StartAddress(), VMWrite); err != 0 {
			t.Fatalf("Fault page %d: %v", i, err)
		}
	}

	if err := m.Unmap(testBase+1, testBase+3); err != 0 {
		t.Fatalf("Unmap: %v", err)
	}

	if _, err := m.Translate(testBase.StartAddress()); err != 0 {
		t.Fatalf("page 0 unmapped unexpectedly: %v", err)
	}
	if _, err := m.Translate((testBase + 3).StartAddress()); err != 0 {
		t.Fatalf("page 3 unmapped unexpectedly: %v", err)
	}
	for i := 1; i < 3; i++ {
		if _, err := m.Translate((testBase + paging.VPage(i)).StartAddress()); err == 0 {
			t.Fatalf("page %d still mapped after Unmap", i)
		}
	}
}

func TestUnmapWholeVMA(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocAnonVMA(testBase, testBase+2, VMRead|VMWrite|VMUser); err != 0 {
		t.Fatalf("AllocAnonVMA: %v", err)
	}
	if err := m.Unmap(testBase, testBase+2); err != 0 {
		t.Fatalf("Unmap: %v", err)
	}
	if len(m.vmas.list) != 0 {
		t.Fatalf("vmas.list still has %d entries after full unmap", len(m.vmas.list))
	}
}

func TestProtectRemapsFaultedPagesAndFlagsFuturePages(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocAnonVMA(testBase, testBase+2, VMRead|VMWrite|VMUser); err != 0 {
		t.Fatalf("AllocAnonVMA: %v", err)
	}
	va0 := testBase.StartAddress()
	if err := m.Fault(va0, VMWrite); err != 0 {
		t.Fatalf("Fault: %v", err)
	}

	if err := m.Protect(testBase, testBase+2, VMRead); err != 0 {
		t.Fatalf("Protect: %v", err)
	}

	v, ok := m.vmas.lookup(testBase)
	if !ok {
		t.Fatalf("VMA missing after Protect")
	}
	if v.Flags&VMWrite != 0 {
		t.Fatalf("VMWrite still set after Protect to read-only")
	}
	if _, err := m.GetBufMut(va0, 1, true); err != defs.EFAULT {
		t.Fatalf("write to read-only page = %v, want EFAULT", err)
	}

	// The never-faulted second page must pick up the new permissions the
	// first time it does fault.
	va1 := (testBase + 1).StartAddress()
	if err := m.Fault(va1, VMWrite); err != ErrSegv {
		t.Fatalf("write-fault on read-only unfaulted page = %v, want ErrSegv", err)
	}
}

func TestProtectSplitsPartialOverlap(t *testing.T) {
	m := newTestMM(t)
	if _, err := m.AllocAnonVMA(testBase, testBase+4, VMRead|VMWrite|VMUser); err != 0 {
		t.Fatalf("AllocAnonVMA: %v", err)
	}
	if err := m.Protect(testBase+1, testBase+3, VMRead); err != 0 {
		t.Fatalf("Protect: %v", err)
	}
	if len(m.vmas.list) != 3 {
		t.Fatalf("vmas.list has %d entries after partial Protect, want 3", len(m.vmas.list))
	}
	v, ok := m.vmas.lookup(testBase + 1)
	if !ok || v.Flags&VMWrite != 0 {
		t.Fatalf("middle VMA not downgraded to read-only")
	}
	left, ok := m.vmas.lookup(testBase)
	if !ok || left.Flags&VMWrite == 0 {
		t.Fatalf("left remainder lost its write permission")
	}
}

func TestSetBrkGrowsAndShrinks(t *testing.T) {
	m := newTestMM(t)
	m.StartBrk = testBase.StartAddress()
	m.Brk = m.StartBrk

	grown, err := m.SetBrk(m.StartBrk + 3*paging.PageSize)
	if err != 0 {
		t.Fatalf("SetBrk grow: %v", err)
	}
	if grown != m.StartBrk+3*paging.PageSize {
		t.Fatalf("SetBrk grow returned %#x, want %#x", grown, m.StartBrk+3*paging.PageSize)
	}
	if err := m.Fault(m.StartBrk+2*paging.PageSize, VMWrite); err != 0 {
		t.Fatalf("Fault within grown heap: %v", err)
	}

	shrunk, serr := m.SetBrk(m.StartBrk + paging.PageSize)
	if serr != 0 {
		t.Fatalf("SetBrk shrink: %v", serr)
	}
	if shrunk != m.StartBrk+paging.PageSize {
		t.Fatalf("SetBrk shrink returned %#x, want %#x", shrunk, m.StartBrk+paging.PageSize)
	}
	if _, terr := m.Translate(m.StartBrk + 2*paging.PageSize); terr == 0 {
		t.Fatalf("page beyond shrunk brk still mapped")
	}
}

func TestSetBrkRejectsBelowStart(t *testing.T) {
	m := newTestMM(t)
	m.StartBrk = testBase.StartAddress()
	m.Brk = m.StartBrk
	if _, err := m.SetBrk(m.StartBrk - paging.PageSize); err != defs.EINVAL {
		t.Fatalf("SetBrk below StartBrk = %v, want EINVAL", err)
	}
}
