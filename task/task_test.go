package task

import (
	"testing"

	"rv39kernel/defs"
)

func TestNewInitBasics(t *testing.T) {
	t0, err := NewInit(testELF(), []string{"init"}, nil)
	if err != 0 {
		t.Fatalf("NewInit: %v", err)
	}
	if t0.State() != Runnable {
		t.Fatalf("new task state = %v, want Runnable", t0.State())
	}
	if t0.Tid == 0 {
		t.Fatalf("tid not assigned")
	}
	if t0.Pid != defs.Pid_t(t0.Tid) {
		t.Fatalf("leader pid = %v, want %v", t0.Pid, t0.Tid)
	}

	tf, terr := t0.Trapframe()
	if terr != 0 {
		t.Fatalf("Trapframe: %v", terr)
	}
	if tf.Epc == 0 {
		t.Fatalf("trapframe epc not set from ELF entry")
	}
	if tf.X[2] == 0 {
		t.Fatalf("trapframe sp not set")
	}
	if tf.KernelSP != t0.KstackTop {
		t.Fatalf("trapframe KernelSP = %#x, want %#x", tf.KernelSP, t0.KstackTop)
	}
}

func TestCurrentPerHart(t *testing.T) {
	t0, err := NewInit(testELF(), []string{"a"}, nil)
	if err != 0 {
		t.Fatalf("NewInit: %v", err)
	}
	if got := Current(); got != nil {
		t.Fatalf("Current() = %v before SetCurrent, want nil", got)
	}
	SetCurrent(t0)
	if got := Current(); got != t0 {
		t.Fatalf("Current() = %v, want %v", got, t0)
	}
	SetCurrent(nil)
	if got := Current(); got != nil {
		t.Fatalf("Current() after clearing = %v, want nil", got)
	}
}

func TestParentChildTree(t *testing.T) {
	parent, err := NewInit(testELF(), []string{"parent"}, nil)
	if err != 0 {
		t.Fatalf("NewInit: %v", err)
	}
	child, cerr := parent.Clone(0, 0, 0, 0, 0)
	if cerr != 0 {
		t.Fatalf("Clone: %v", cerr)
	}
	if child.Parent() != parent {
		t.Fatalf("child.Parent() = %v, want %v", child.Parent(), parent)
	}
	kids := parent.Children()
	if len(kids) != 1 || kids[0] != child {
		t.Fatalf("parent.Children() = %v, want [child]", kids)
	}
}
