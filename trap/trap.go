// Package trap implements user trap dispatch and the trampoline's
// surrounding bookkeeping (spec.md §4.9). The trampoline page itself —
// uservec/userret/kernelvec — is a naked RISC-V routine that cannot be
// expressed in portable Go (context.go's own doc comment makes the
// same point about context switch); this package instead owns the
// parts of the trap path that ARE ordinary Go: deciding what a given
// scause means, routing UserEnvCall to the syscall dispatcher, routing
// page faults to the MM fault handler, and computing the
// (satp, trapframe_va, userret_va) triple user_trap_return installs.
package trap

import (
	"fmt"

	"golang.org/x/arch/riscv64/riscv64asm"

	"rv39kernel/defs"
	"rv39kernel/mm"
	"rv39kernel/sched"
	"rv39kernel/syscall"
	"rv39kernel/task"
)

// Cause mirrors the subset of RISC-V scause values this kernel
// distinguishes (spec.md §4.9). The interrupt bit is bit 63.
type Cause uint64

const interruptBit = Cause(1) << 63

const (
	CauseIllegalInstruction   Cause = 2
	CauseBreakpoint           Cause = 3
	CauseInstructionPageFault Cause = 12
	CauseLoadPageFault        Cause = 13
	CauseStorePageFault       Cause = 15
	CauseUserEnvCall          Cause = 8
	CauseSupervisorTimer            = interruptBit | 5
)

// satpModeSV39 is the mode field (bits 60-63) selecting 39-bit virtual
// addressing, per the RISC-V privileged spec.
const satpModeSV39 = uint64(8) << 60

// HandleUserTrap dispatches one trap raised while t was running in
// user mode, per the scause table in spec.md §4.9. stval carries the
// faulting address for the page-fault causes and is ignored otherwise.
// On any unhandled or unrecoverable cause the task is terminated with
// exit code -1, matching "Anything else -> terminate".
func HandleUserTrap(t *task.Task, cause Cause, stval uint64) {
	switch cause {
	case CauseUserEnvCall:
		handleSyscall(t)
	case CauseInstructionPageFault, CauseLoadPageFault, CauseStorePageFault:
		if err := t.MM.Fault(stval, accessFor(cause)); err != 0 {
			fmt.Printf("trap: %s (pid %d): unhandled fault at %#x, killing\n", t.Comm, t.Pid, stval)
			t.Exit(-1)
		}
	case CauseIllegalInstruction:
		handleIllegalInstruction(t)
	case CauseBreakpoint:
		t.SetPendingSignal(defs.SIGTRAP)
	case CauseSupervisorTimer:
		sched.DoYield()
	default:
		fmt.Printf("trap: %s (pid %d): unrecognized scause %#x, killing\n", t.Comm, t.Pid, uint64(cause))
		t.Exit(-1)
	}
}

// handleIllegalInstruction disassembles the faulting instruction word
// for the panic message, the same way a native RISC-V kernel's panic
// path symbolizes the PC, then terminates the task (spec.md §4.9's
// supplemented illegal-instruction case: present in the original,
// dropped by the distilled scause list, restored here since nothing
// in the Non-goals excludes it).
func handleIllegalInstruction(t *task.Task) {
	tf, err := t.Trapframe()
	if err != 0 {
		t.Exit(-1)
		return
	}
	word, werr := fetchBytes(t, tf.Epc, 4)
	if werr != 0 {
		fmt.Printf("trap: %s (pid %d): illegal instruction at %#x (word unreadable), killing\n", t.Comm, t.Pid, tf.Epc)
		t.Exit(-1)
		return
	}
	raw := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
	inst, derr := riscv64asm.Decode(word)
	if derr != nil {
		fmt.Printf("trap: %s (pid %d): illegal instruction %#08x at %#x (undecodable: %v), killing\n",
			t.Comm, t.Pid, raw, tf.Epc, derr)
	} else {
		fmt.Printf("trap: %s (pid %d): illegal instruction %#08x (%s) at %#x, killing\n",
			t.Comm, t.Pid, raw, inst, tf.Epc)
	}
	t.Exit(-1)
}

// fetchBytes reads n bytes at va through the task's own MM (never read
// directly: spec.md §4.5/§4.10 require every user pointer to pass
// through the fault-checked path), flattening GetBufMut's
// scatter-gather result into one contiguous slice.
func fetchBytes(t *task.Task, va uint64, n int) ([]byte, defs.Err_t) {
	bufs, err := t.MM.GetBufMut(va, n, false)
	if err != 0 {
		return nil, err
	}
	out := make([]byte, 0, n)
	for _, buf := range bufs {
		out = append(out, buf...)
	}
	return out, 0
}

func accessFor(cause Cause) uint {
	switch cause {
	case CauseStorePageFault:
		return mm.VMWrite
	case CauseInstructionPageFault:
		return mm.VMExec
	default:
		return mm.VMRead
	}
}

// handleSyscall implements the UserEnvCall branch of spec.md §4.9:
// advance sepc past the ecall instruction, decode a7/a0..a5, dispatch,
// and write the result (or negative errno) back to a0.
func handleSyscall(t *task.Task) {
	tf, err := t.Trapframe()
	if err != 0 {
		t.Exit(-1)
		return
	}
	tf.Epc += 4

	var a syscall.Args
	for i := range a {
		a[i] = tf.X[10+i]
	}
	number := tf.X[17]

	ret, serr := syscall.Dispatch(t, number, a)
	if serr != 0 {
		tf.X[10] = uint64(-int64(serr))
	} else {
		tf.X[10] = ret
	}
}

// ComputeReturnTriple computes the (satp, trapframe_va, userret_va)
// values user_trap_return recomputes from the current task before
// jumping to userret (spec.md §4.9). satp encodes SV39 mode plus the
// task's page-table root frame; userret_va is the fixed offset of the
// userret entry point within the shared trampoline page.
func ComputeReturnTriple(t *task.Task) (satp, trapframeVA, userretVA uint64) {
	root := t.MM.Table().Root
	satp = satpModeSV39 | uint64(root)
	trapframeVA = t.TrapframeVA
	userretVA = mm.TrampolineVPage.StartAddress() + userretOffset
	return
}

// userretOffset is userret's byte offset within the trampoline page.
// No trampoline code is placed in the page in this module, so the
// offset is 0; nothing in this package reads it beyond
// ComputeReturnTriple's return value.
const userretOffset = 0

// UserTrapReturn re-installs stvec to the trampoline and returns the
// triple userret needs (spec.md §4.9's "every return to user passes
// through user_trap_return"). Reinstalling stvec is a real CSR write
// with no portable Go equivalent, so this only performs the
// computation half of that step; the caller (the trampoline/boot
// wiring) is responsible for actually transferring control.
func UserTrapReturn(t *task.Task) (satp, trapframeVA, userretVA uint64) {
	return ComputeReturnTriple(t)
}
