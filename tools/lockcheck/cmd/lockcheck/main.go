// Command lockcheck runs the lockcheck analyzer over a package list,
// the same way `go vet` runs a single analyzer. Parallel in spirit to
// the teacher's misc/depgraph: a small, single-purpose command wrapping
// one piece of Go-toolchain analysis rather than anything shipped
// inside the kernel binary.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"rv39kernel/tools/lockcheck"
)

func main() {
	singlechecker.Main(lockcheck.Analyzer)
}
