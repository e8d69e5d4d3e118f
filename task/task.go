package task

import (
	"sync/atomic"

	"rv39kernel/accnt"
	"rv39kernel/defs"
	"rv39kernel/elf"
	"rv39kernel/fd"
	"rv39kernel/id"
	"rv39kernel/ksync"
	"rv39kernel/limits"
	"rv39kernel/mm"
	"rv39kernel/ustr"
)

// State is one of the five-plus-one states a task may occupy (spec.md
// §3).
type State int

const (
	Runnable State = iota
	Running
	Interruptible
	Uninterruptible
	Stopped
	Zombie
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Interruptible:
		return "INTERRUPTIBLE"
	case Uninterruptible:
		return "UNINTERRUPTIBLE"
	case Stopped:
		return "STOPPED"
	case Zombie:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// lockedInner is the spin-locked portion of a task's state, generalized
// from the teacher's tinfo.Tnote_t (State/Alive/Killed fields under a
// sync.Mutex) into the richer state machine and parent/child tree
// spec.md §3 describes.
type lockedInner struct {
	lock     ksync.SpinLock
	state    State
	parent   *Task // weak edge (spec.md §9): never the sole reference keeping a parent alive
	children []*Task
	sleepOn  int // channel id this task is parked on, meaningful iff state == Interruptible/Uninterruptible
}

// unsyncInner is exclusive to the owning task except during clone,
// where the parent holds the write while constructing the child
// (spec.md §5, "Task's inner ... exclusive to the owning task except
// during clone").
type unsyncInner struct {
	ctx           Context
	pending       uint64 // pending signal bitmask
	blocked       uint64 // blocked signal bitmask
	clearChildTid uint64
	exitCode      int
}

// Task is the thread control block (spec.md §3). Grounded on the
// teacher's accnt.Accnt_t (kept as the Accnt field), tinfo.Tnote_t (the
// locked note, generalized into lockedInner below), and fd.Fd_t/Copyfd
// (Files table sharing).
type Task struct {
	Tid        defs.Tid_t
	Pid        defs.Pid_t
	ExitSignal int

	// Comm is argv[0], sanitized to valid UTF-8 at creation so it can
	// be interpolated into a diagnostic or panic message without a
	// hostile argv corrupting the console stream (spec.md §6's
	// console interface sits directly downstream of these prints).
	Comm string

	KstackSlot  int
	KstackTop   uint64
	TrapframeSlot int
	TrapframeVA uint64

	MM      *mm.MM
	Files   *fd.Table
	SigHand *SigTable
	FS      *FSInfo
	Accnt   accnt.Accnt
	Limits  *limits.Table

	locked lockedInner
	inner  unsyncInner
}

var (
	tidAlloc = id.New(1)
	current  [ksync.NHART]atomic.Pointer[Task]
)

// Current returns the task running on the calling hart, or nil if the
// hart is idle. Grounded on tinfo.Current, re-architected per
// DESIGN.md since the teacher's runtime.Gptr/Setgptr hook is a
// biscuit-specific patched-runtime API unavailable here: the current
// task is tracked in a per-hart array instead, mirroring ksync's own
// harts[NHART] push_off bookkeeping.
func Current() *Task {
	return current[ksync.CurrentHart()].Load()
}

// SetCurrent installs t as the task running on the calling hart,
// called by the scheduler immediately before switching to it.
func SetCurrent(t *Task) {
	current[ksync.CurrentHart()].Store(t)
}

// State returns the task's current state.
func (t *Task) State() State {
	t.locked.lock.Lock()
	defer t.locked.lock.Unlock()
	return t.locked.state
}

// SetState updates the task's state.
func (t *Task) SetState(s State) {
	t.locked.lock.Lock()
	t.locked.state = s
	t.locked.lock.Unlock()
}

// Parent returns the task's current parent, or nil for init.
func (t *Task) Parent() *Task {
	t.locked.lock.Lock()
	defer t.locked.lock.Unlock()
	return t.locked.parent
}

// Children returns a snapshot of the task's child list.
func (t *Task) Children() []*Task {
	t.locked.lock.Lock()
	defer t.locked.lock.Unlock()
	out := make([]*Task, len(t.locked.children))
	copy(out, t.locked.children)
	return out
}

func (t *Task) addChild(c *Task) {
	t.locked.lock.Lock()
	t.locked.children = append(t.locked.children, c)
	t.locked.lock.Unlock()
}

func (t *Task) removeChild(c *Task) {
	t.locked.lock.Lock()
	for i, ch := range t.locked.children {
		if ch == c {
			t.locked.children = append(t.locked.children[:i], t.locked.children[i+1:]...)
			break
		}
	}
	t.locked.lock.Unlock()
}

func (t *Task) setParent(p *Task) {
	t.locked.lock.Lock()
	t.locked.parent = p
	t.locked.lock.Unlock()
}

// ReparentChildrenTo moves every child of t onto newParent's child
// list, used by the scheduler's zombie handler (spec.md §4.8:
// "reparent children to init").
func (t *Task) ReparentChildrenTo(newParent *Task) {
	t.locked.lock.Lock()
	kids := t.locked.children
	t.locked.children = nil
	t.locked.lock.Unlock()

	for _, c := range kids {
		c.setParent(newParent)
		newParent.addChild(c)
	}
}

// DetachFromParent removes t from its parent's child list, called once
// a zombie has been reaped by wait4 (spec.md §4.8's "remove from
// parent's child list" is deferred to reap time so wait4 can still
// find the zombie via Children() in the interim).
func (t *Task) DetachFromParent() {
	if p := t.Parent(); p != nil {
		p.removeChild(t)
	}
}

// SleepChannel returns the channel id the task is parked on, valid
// only while State() is Interruptible or Uninterruptible.
func (t *Task) SleepChannel() int {
	t.locked.lock.Lock()
	defer t.locked.lock.Unlock()
	return t.locked.sleepOn
}

// SetSleepChannel records the channel id the scheduler is about to
// park the task on.
func (t *Task) SetSleepChannel(channel int) {
	t.locked.lock.Lock()
	t.locked.sleepOn = channel
	t.locked.lock.Unlock()
}

// ExitCode returns the code recorded at exit.
func (t *Task) ExitCode() int { return t.inner.exitCode }

// Context returns a pointer to this task's saved switch context, used
// by package sched.
func (t *Task) Context() *Context { return &t.inner.ctx }

// PendingSignals returns the task's pending-signal bitmask.
func (t *Task) PendingSignals() uint64 { return t.inner.pending }

// SetPendingSignal ORs sig into the task's pending-signal bitmask.
// Delivery mechanics (checking this bitmask against the blocked mask
// and invoking a handler) are out of scope per spec.md §1; this only
// records the bit, e.g. for ebreak's SIGTRAP (spec.md §4.9's
// supplemented breakpoint case).
func (t *Task) SetPendingSignal(sig int) {
	t.inner.pending |= 1 << uint(sig)
}

// ClearChildTid returns the address CHILD_CLEARTID asked to be
// zeroed and futex-woken at exit (spec.md §4.7), or 0 if none.
func (t *Task) ClearChildTid() uint64 { return t.inner.clearChildTid }

// SetClearChildTid records the CHILD_CLEARTID address.
func (t *Task) SetClearChildTid(v uint64) { t.inner.clearChildTid = v }

// Trapframe returns this task's trapframe, reinterpreting the bytes of
// the frame mapped at its trapframe VA in its MM.
func (t *Task) Trapframe() (*Trapframe, defs.Err_t) {
	return trapframeAt(t.MM, t.TrapframeVA)
}

// NewInit constructs the very first task: a fresh MM, a loaded ELF
// image, a kernel stack, and a trapframe primed with the loader's
// entry point and stack pointer (spec.md §4.7, "Task creation").
func NewInit(elfData []byte, argv, envp []string) (*Task, defs.Err_t) {
	m, err := mm.New()
	if err != 0 {
		return nil, err
	}
	slot, tfVA, verr := allocTrapframeSlot(m, 0)
	if verr != 0 {
		return nil, verr
	}

	img, lerr := elf.Load(m, elfData, argv, envp)
	if lerr != 0 {
		return nil, lerr
	}

	tid := defs.Tid_t(tidAlloc.Alloc())
	kstackTop, kerr := mm.KstackAlloc(tid2slot(tid))
	if kerr != 0 {
		return nil, kerr
	}

	t := &Task{
		Tid:         tid,
		Pid:         defs.Pid_t(tid),
		KstackSlot:  tid2slot(tid),
		KstackTop:   kstackTop,
		TrapframeSlot: slot,
		TrapframeVA: tfVA,
		MM:          m,
		Files:       fd.NewTable(),
		SigHand:     NewSigTable(),
		FS:          NewFSInfo(),
		Limits:      limits.NewTable(),
		Comm:        commOf(argv),
	}
	t.locked.state = Runnable
	t.inner.ctx = NewContext(UserTrapReturnAddr, kstackTop)

	tf, terr := t.Trapframe()
	if terr != 0 {
		return nil, terr
	}
	tf.Epc = img.Entry
	tf.X[2] = img.StackPointer // x2 is sp
	tf.KernelSatp = 0          // installed by package trap at boot
	tf.KernelSP = kstackTop

	return t, 0
}

// commOf sanitizes argv[0] into the task's short display name, safe to
// drop straight into a console print (ustr.SafeString replaces any
// invalid UTF-8 a hostile argv might contain).
func commOf(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return ustr.Ustr(argv[0]).SafeString()
}

// tid2slot maps a tid to its kernel-stack/trapframe slot. Tids are
// allocated densely starting at 1, so the tid itself is a fine slot
// number; kept as a named conversion so the mapping can change
// independently of tid allocation without touching call sites.
func tid2slot(tid defs.Tid_t) int { return int(tid) }
