package task

import (
	"testing"

	"rv39kernel/fd"
)

func TestExecReplacesAddressSpaceAndResetsState(t *testing.T) {
	tsk := mustInit(t, "p")
	oldMM := tsk.MM
	oldKstackTop := tsk.KstackTop

	tsk.SigHand.Set(10, SigAction{Handler: 0x4000})
	fdno := tsk.Files.Install(&fd.Fd_t{Perms: fd.FD_CLOEXEC})

	if err := tsk.Exec(testELF(), []string{"p2"}, nil); err != 0 {
		t.Fatalf("Exec: %v", err)
	}

	if tsk.MM == oldMM {
		t.Fatalf("Exec did not replace the address space")
	}
	if tsk.KstackTop != oldKstackTop {
		t.Fatalf("Exec reallocated the kernel stack: got %#x, want %#x", tsk.KstackTop, oldKstackTop)
	}
	if act := tsk.SigHand.Get(10); act.Handler != 0 {
		t.Fatalf("Exec did not reset a caught signal disposition")
	}
	if _, ok := tsk.Files.Get(fdno); ok {
		t.Fatalf("Exec did not close a close-on-exec descriptor")
	}

	tf, terr := tsk.Trapframe()
	if terr != 0 {
		t.Fatalf("Trapframe: %v", terr)
	}
	if tf.Epc == 0 || tf.X[2] == 0 {
		t.Fatalf("Exec did not reinitialize the trapframe")
	}
	if tf.KernelSP != oldKstackTop {
		t.Fatalf("trapframe KernelSP = %#x, want %#x", tf.KernelSP, oldKstackTop)
	}
}
