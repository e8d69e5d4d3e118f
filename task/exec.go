package task

import (
	"rv39kernel/defs"
	"rv39kernel/elf"
	"rv39kernel/mm"
)

// Exec replaces t's MM entirely, resets caught signals to their
// default disposition, closes close-on-exec descriptors, and
// re-initializes the trapframe with the new entry point and stack
// (spec.md §4.7). The task context is restarted at the trap-return
// path exactly as a freshly cloned task's is.
func (t *Task) Exec(elfData []byte, argv, envp []string) defs.Err_t {
	nm, err := mm.New()
	if err != 0 {
		return err
	}
	slot, tfVA, verr := allocTrapframeSlot(nm, 0)
	if verr != 0 {
		return verr
	}

	img, lerr := elf.Load(nm, elfData, argv, envp)
	if lerr != 0 {
		return lerr
	}

	t.MM = nm
	t.TrapframeSlot = slot
	t.TrapframeVA = tfVA
	t.SigHand.ResetToDefault()
	t.Files.CloseOnExec()

	tf, terr := t.Trapframe()
	if terr != 0 {
		return terr
	}
	*tf = Trapframe{}
	tf.Epc = img.Entry
	tf.X[2] = img.StackPointer
	tf.KernelSP = t.KstackTop

	t.inner.ctx = NewContext(UserTrapReturnAddr, t.KstackTop)
	return 0
}
