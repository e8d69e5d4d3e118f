package task

import (
	"testing"

	"rv39kernel/defs"
)

func TestSigTableSetAndGet(t *testing.T) {
	s := NewSigTable()
	if err := s.Set(2, SigAction{Handler: 0x1000}); err != 0 {
		t.Fatalf("Set: %v", err)
	}
	if got := s.Get(2); got.Handler != 0x1000 {
		t.Fatalf("Get(2).Handler = %#x, want 0x1000", got.Handler)
	}
}

func TestSigTableRejectsKillAndStop(t *testing.T) {
	s := NewSigTable()
	if err := s.Set(defs.SIGKILL, SigAction{Handler: 1}); err != defs.EINVAL {
		t.Fatalf("Set(SIGKILL): got %v, want EINVAL", err)
	}
	if err := s.Set(defs.SIGSTOP, SigAction{Handler: 1}); err != defs.EINVAL {
		t.Fatalf("Set(SIGSTOP): got %v, want EINVAL", err)
	}
}

func TestSigTableCloneIsIndependent(t *testing.T) {
	s := NewSigTable()
	s.Set(3, SigAction{Handler: 0x2000})
	clone := s.Clone()
	clone.Set(3, SigAction{Handler: 0x3000})
	if s.Get(3).Handler != 0x2000 {
		t.Fatalf("original table mutated by clone's Set")
	}
}

func TestSigTableResetToDefault(t *testing.T) {
	s := NewSigTable()
	s.Set(3, SigAction{Handler: 0x2000})
	s.ResetToDefault()
	if got := s.Get(3); got.Handler != 0 {
		t.Fatalf("ResetToDefault left Handler = %#x, want 0", got.Handler)
	}
}
