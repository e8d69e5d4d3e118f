// Package ktrace provides small diagnostic helpers used across the
// kernel packages: a caller-stack dump for panics and unexpected error
// paths, and a "have I seen this call chain before" filter so a noisy
// log site can print once per distinct caller instead of once per
// call. Grounded on the teacher's caller/caller.go.
package ktrace

import (
	"fmt"
	"runtime"
	"sync"
)

// Callerdump prints the call stack starting at the given skip depth
// (1 skips Callerdump itself), one frame per line, innermost first.
func Callerdump(skip int) {
	i := skip
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// DistinctCaller records whether a given call chain has already been
// reported, so a hot logging site can emit a stack trace once per
// distinct path of ancestor callers rather than flooding the console.
type DistinctCaller struct {
	mu      sync.Mutex
	Enabled bool
	seen    map[uintptr]bool
}

func (dc *DistinctCaller) hash(pcs []uintptr) uintptr {
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Distinct reports whether the chain calling it (starting 3 frames up,
// past Distinct/runtime.Callers/the caller's own frame) is new, along
// with a formatted trace when it is.
func (dc *DistinctCaller) Distinct() (bool, string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if !dc.Enabled {
		return false, ""
	}
	if dc.seen == nil {
		dc.seen = make(map[uintptr]bool)
	}
	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, sz)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			return false, ""
		}
		pcs = pcs[:got]
	}
	h := dc.hash(pcs)
	if dc.seen[h] {
		return false, ""
	}
	dc.seen[h] = true
	frames := runtime.CallersFrames(pcs)
	fs := ""
	for {
		fr, more := frames.Next()
		if fs == "" {
			fs = fmt.Sprintf("%v (%v:%v)\n", fr.Function, fr.File, fr.Line)
		} else {
			fs += fmt.Sprintf("\t%v (%v:%v)\n", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, fs
}
