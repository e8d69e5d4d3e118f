package task

import (
	"encoding/binary"

	"rv39kernel/defs"
	"rv39kernel/mm"
)

// Clone creates a new task from t according to flags (spec.md §4.7).
// userStack, if non-zero, becomes the child's stack pointer (used by
// thread-creation clones that supply a fresh stack instead of sharing
// the parent's via CLONE_VM's COW-free aliasing); tls is installed
// into the child's thread-pointer register when CLONE_SETTLS is set;
// ptid/ctid are user addresses written per CLONE_PARENT_SETTID/
// CLONE_CHILD_SETTID.
func (t *Task) Clone(flags uint, userStack, tls, ptid, ctid uint64) (*Task, defs.Err_t) {
	if flags&defs.CLONE_SIGHAND != 0 && flags&defs.CLONE_VM == 0 {
		return nil, defs.EINVAL
	}
	if flags&defs.CLONE_THREAD != 0 && flags&defs.CLONE_SIGHAND == 0 {
		return nil, defs.EINVAL
	}

	childMM := t.MM
	startSlot := 1 // slot 0 belongs to the thread-group leader
	if flags&defs.CLONE_VM == 0 {
		cm, err := t.MM.Clone()
		if err != 0 {
			return nil, err
		}
		childMM = cm
		startSlot = 0
	}

	tid := defs.Tid_t(tidAlloc.Alloc())
	kstackTop, kerr := mm.KstackAlloc(tid2slot(tid))
	if kerr != 0 {
		return nil, kerr
	}

	slot, tfVA, tferr := allocTrapframeSlot(childMM, startSlot)
	if tferr != 0 {
		return nil, tferr
	}

	child := &Task{
		Tid:           tid,
		Pid:           t.Pid,
		ExitSignal:    int(flags & defs.CLONE_CSIGNAL_MASK),
		KstackSlot:    tid2slot(tid),
		KstackTop:     kstackTop,
		TrapframeSlot: slot,
		TrapframeVA:   tfVA,
		MM:            childMM,
	}

	if flags&defs.CLONE_THREAD == 0 {
		child.Pid = defs.Pid_t(tid)
	}

	if flags&defs.CLONE_FILES != 0 {
		child.Files = t.Files
	} else {
		child.Files = t.Files.Clone()
	}
	if flags&defs.CLONE_SIGHAND != 0 {
		child.SigHand = t.SigHand
	} else {
		child.SigHand = t.SigHand.Clone()
	}
	if flags&defs.CLONE_FS != 0 {
		child.FS = t.FS
	} else {
		child.FS = t.FS.Clone()
	}
	// Resource limits are always copied, never shared: no clone flag
	// governs them on Linux.
	child.Limits = t.Limits.Clone()

	parent := t
	if flags&defs.CLONE_PARENT != 0 {
		if p := t.Parent(); p != nil {
			parent = p
		}
	}
	if flags&defs.CLONE_THREAD == 0 {
		child.setParent(parent)
		parent.addChild(child)
	}

	child.locked.state = Runnable
	child.inner.ctx = NewContext(UserTrapReturnAddr, kstackTop)
	child.inner.clearChildTid = 0
	if flags&defs.CLONE_CHILD_CLEARTID != 0 {
		child.inner.clearChildTid = ctid
	}

	ptf, pferr := t.Trapframe()
	if pferr != 0 {
		return nil, pferr
	}
	ctf, cferr := child.Trapframe()
	if cferr != 0 {
		return nil, cferr
	}
	*ctf = *ptf
	ctf.X[10] = 0 // a0: child sees a return value of 0 from clone
	if userStack != 0 {
		ctf.X[2] = userStack
	}
	if flags&defs.CLONE_SETTLS != 0 {
		ctf.X[4] = tls // tp (x4) is the thread pointer
	}

	if flags&defs.CLONE_PARENT_SETTID != 0 {
		writeU64(t.MM, ptid, uint64(tid))
	}
	if flags&defs.CLONE_CHILD_SETTID != 0 {
		writeU64(childMM, ctid, uint64(tid))
	}

	return child, 0
}

func writeU64(m *mm.MM, va, v uint64) {
	bufs, err := m.GetBufMut(va, 8, true)
	if err != 0 || len(bufs) == 0 {
		return
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	off := 0
	for _, b := range bufs {
		n := copy(b, tmp[off:])
		off += n
	}
}
