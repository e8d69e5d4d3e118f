// Package boot wires together the frame allocator, the kernel address
// space, the simulated trap/hart hooks, and the scheduler, then hands
// control to the first task (spec.md §4.11). Grounded on the teacher's
// kernel/chentry.go: a small, flat package main with a validate-then-act
// shape, adapted here from "patch an ELF's entry point" to "bring up a
// machine and start init".
package boot

import (
	"fmt"
	"os"

	"rv39kernel/defs"
	"rv39kernel/frame"
	"rv39kernel/mm"
	"rv39kernel/sched"
	"rv39kernel/task"
	"rv39kernel/trap"
)

// Config describes the machine being booted onto. In production this
// is discovered at runtime from SBI/DTB rather than compiled in
// (spec.md §4.11's per-hart entry runs before any such probing is
// possible, so whatever drives __entry must assemble one of these
// first); here it is just the plain struct that discovery would fill
// in.
type Config struct {
	HartCount int
	RAMBase   uint64
	RAMBytes  uint64

	InitELF  []byte
	InitArgv []string
	InitEnvp []string
}

// Bootstrap performs the single-hart, one-time half of __entry(0):
// seed the physical frame allocator over the usable RAM range, install
// the simulated trap/hart hooks, bring up the kernel address space,
// load the init task from its ELF image, and register it with the
// scheduler. Must be called exactly once, before any hart calls
// RunForever or EnterOthers; a second call panics, via the same
// one-shot guard frame.Allocator.AddRegion already enforces.
func Bootstrap(cfg Config) (*task.Task, defs.Err_t) {
	base := frame.FromAddr(cfg.RAMBase)
	end := frame.FromAddr(cfg.RAMBase + cfg.RAMBytes)
	frame.Global().AddRegion(base, end)

	trap.Install()
	trap.RegisterHart(0)

	mm.Kernel() // construct the shared kernel address space before any other hart starts

	it, err := task.NewInit(cfg.InitELF, cfg.InitArgv, cfg.InitEnvp)
	if err != 0 {
		return nil, err
	}

	sched.Init(it)
	sched.Enqueue(it)
	return it, 0
}

// RunForever drives hart hartID's idle loop after Bootstrap has run on
// hart 0 (spec.md §4.11, §4.8). It never returns; callers that need a
// return (tests, mainly) should call trap.RegisterHart and
// sched.RunHart directly instead.
func RunForever(hartID int) {
	trap.RegisterHart(hartID)
	sched.RunHart(hartID)
}

// EnterOthers is __entry_others(hartid): every secondary hart skips
// Bootstrap entirely (spec.md §4.11 assigns frame-allocator seeding,
// kernel-MM construction, and init's creation to the boot hart alone)
// and goes straight to its idle loop.
func EnterOthers(hartID int) {
	RunForever(hartID)
}

// Fatal reports an unrecoverable boot failure and terminates the
// process. Boot errors have no recovery path (spec.md §7 reserves
// panics for invariant violations; a machine that cannot even start is
// the same kind of situation), so this mirrors the teacher's plain
// fmt.Fprintf-to-stderr-then-exit diagnostic texture rather than
// introducing a logging library for a path that runs exactly once.
func Fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
