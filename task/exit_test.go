package task

import "testing"

func TestExitSetsZombieAndExitCode(t *testing.T) {
	tsk := mustInit(t, "p")
	tsk.Exit(7)
	if tsk.State() != Zombie {
		t.Fatalf("state after Exit = %v, want Zombie", tsk.State())
	}
	if tsk.ExitCode() != 7 {
		t.Fatalf("ExitCode() = %d, want 7", tsk.ExitCode())
	}
}

func TestExitClearsChildTid(t *testing.T) {
	tsk := mustInit(t, "p")
	tf, terr := tsk.Trapframe()
	if terr != 0 {
		t.Fatalf("Trapframe: %v", terr)
	}
	addr := tf.X[2]
	tsk.SetClearChildTid(addr)

	var woke uint64
	prev := WakeFutex
	WakeFutex = func(a uint64) { woke = a }
	defer func() { WakeFutex = prev }()

	tsk.Exit(0)

	if woke != addr {
		t.Fatalf("WakeFutex called with %#x, want %#x", woke, addr)
	}
	bufs, err := tsk.MM.GetBufMut(addr, 8, false)
	if err != 0 || len(bufs) == 0 {
		t.Fatalf("reading back cleared child tid: %v", err)
	}
	for _, b := range bufs {
		for _, byteVal := range b {
			if byteVal != 0 {
				t.Fatalf("clear_child_tid address not zeroed")
			}
		}
	}
}
