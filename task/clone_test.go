package task

import (
	"testing"

	"rv39kernel/defs"
)

func mustInit(t *testing.T, name string) *Task {
	t.Helper()
	tsk, err := NewInit(testELF(), []string{name}, nil)
	if err != 0 {
		t.Fatalf("NewInit(%s): %v", name, err)
	}
	return tsk
}

func TestCloneVMSharesAddressSpace(t *testing.T) {
	p := mustInit(t, "p")
	c, err := p.Clone(defs.CLONE_VM, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if c.MM != p.MM {
		t.Fatalf("CLONE_VM child got a different MM")
	}
	if c.TrapframeVA == p.TrapframeVA {
		t.Fatalf("CLONE_VM child shares a trapframe VA with its parent")
	}
}

func TestCloneWithoutVMCopiesAddressSpace(t *testing.T) {
	p := mustInit(t, "p")
	c, err := p.Clone(0, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if c.MM == p.MM {
		t.Fatalf("fork-style clone shares the parent's MM")
	}
}

func TestCloneSighandRequiresVM(t *testing.T) {
	p := mustInit(t, "p")
	if _, err := p.Clone(defs.CLONE_SIGHAND, 0, 0, 0, 0); err != defs.EINVAL {
		t.Fatalf("CLONE_SIGHAND without CLONE_VM: got %v, want EINVAL", err)
	}
}

func TestCloneThreadRequiresSighand(t *testing.T) {
	p := mustInit(t, "p")
	if _, err := p.Clone(defs.CLONE_VM|defs.CLONE_THREAD, 0, 0, 0, 0); err != defs.EINVAL {
		t.Fatalf("CLONE_THREAD without CLONE_SIGHAND: got %v, want EINVAL", err)
	}
}

func TestCloneThreadSharesPidAndSkipsChildTree(t *testing.T) {
	p := mustInit(t, "p")
	flags := uint(defs.CLONE_VM | defs.CLONE_SIGHAND | defs.CLONE_THREAD)
	c, err := p.Clone(flags, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if c.Pid != p.Pid {
		t.Fatalf("thread child pid = %v, want %v", c.Pid, p.Pid)
	}
	if c.Parent() != nil {
		t.Fatalf("thread child should not be registered in the process tree")
	}
	if len(p.Children()) != 0 {
		t.Fatalf("parent gained a child entry for a CLONE_THREAD sibling")
	}
}

func TestCloneFilesDefaultCopies(t *testing.T) {
	p := mustInit(t, "p")
	c, err := p.Clone(0, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if c.Files == p.Files {
		t.Fatalf("clone without CLONE_FILES shared the file table")
	}
	if c.SigHand == p.SigHand {
		t.Fatalf("clone without CLONE_SIGHAND shared the signal table")
	}
	if c.FS == p.FS {
		t.Fatalf("clone without CLONE_FS shared the fs-info record")
	}
}

func TestCloneFilesSharedFlag(t *testing.T) {
	p := mustInit(t, "p")
	c, err := p.Clone(defs.CLONE_FILES, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if c.Files != p.Files {
		t.Fatalf("CLONE_FILES child did not share the file table")
	}
}

func TestCloneChildSeesZeroReturn(t *testing.T) {
	p := mustInit(t, "p")
	c, err := p.Clone(0, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	tf, terr := c.Trapframe()
	if terr != 0 {
		t.Fatalf("Trapframe: %v", terr)
	}
	if tf.X[10] != 0 {
		t.Fatalf("child a0 = %#x, want 0", tf.X[10])
	}
}

func TestCloneChildSettidWritesTid(t *testing.T) {
	p := mustInit(t, "p")
	// Use an address inside the parent's already-mapped stack VMA so the
	// write has somewhere valid to land.
	ptf, terr := p.Trapframe()
	if terr != 0 {
		t.Fatalf("Trapframe: %v", terr)
	}
	ctidAddr := ptf.X[2] // the parent's own stack pointer, definitely mapped

	c, err := p.Clone(defs.CLONE_CHILD_SETTID, 0, 0, 0, ctidAddr)
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	bufs, berr := c.MM.GetBufMut(ctidAddr, 8, false)
	if berr != 0 || len(bufs) == 0 {
		t.Fatalf("reading back ctid: %v", berr)
	}
	var raw []byte
	for _, b := range bufs {
		raw = append(raw, b...)
	}
	got := uint64(0)
	for i := 0; i < 8; i++ {
		got |= uint64(raw[i]) << (8 * i)
	}
	if got != uint64(c.Tid) {
		t.Fatalf("ctid written = %d, want %d", got, c.Tid)
	}
}
