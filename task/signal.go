package task

import (
	"rv39kernel/defs"
	"rv39kernel/ksync"
)

// SigAction is one entry of a signal-action table (spec.md §6:
// sigaction flags SA_NOCLDSTOP/SA_NOCLDWAIT/SA_SIGINFO/SA_RESTART/
// SA_NODEFER/SA_RESETHAND/SA_ONSTACK). Handler is the user-space
// handler address; signal delivery mechanics themselves are out of
// scope (spec.md §1) — this module only tracks the table so clone's
// CLONE_SIGHAND sharing and execve's reset-to-default have something
// to operate on.
type SigAction struct {
	Handler uint64
	Flags   uint
	Mask    uint64
}

// SigTable is the shared signal-action table a thread group agrees on
// under CLONE_SIGHAND (spec.md §4.7).
type SigTable struct {
	lock    ksync.SpinLock
	actions [defs.NSIG + 1]SigAction
}

// NewSigTable returns a table with every signal at its default
// disposition (the zero SigAction).
func NewSigTable() *SigTable {
	return &SigTable{}
}

// Clone returns an independent copy of the table, used when
// CLONE_SIGHAND is absent.
func (s *SigTable) Clone() *SigTable {
	s.lock.Lock()
	defer s.lock.Unlock()
	nt := &SigTable{actions: s.actions}
	return nt
}

// Get returns the action installed for signal sig.
func (s *SigTable) Get(sig int) SigAction {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.actions[sig]
}

// Set installs act for signal sig. SIGKILL and SIGSTOP cannot be
// caught or ignored (spec.md §6); callers attempting to change them
// get EINVAL.
func (s *SigTable) Set(sig int, act SigAction) defs.Err_t {
	if sig == defs.SIGKILL || sig == defs.SIGSTOP {
		return defs.EINVAL
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.actions[sig] = act
	return 0
}

// ResetToDefault reinitializes every caught signal's disposition,
// called by execve (spec.md §4.7).
func (s *SigTable) ResetToDefault() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.actions = [defs.NSIG + 1]SigAction{}
}
