// Package fd implements the per-descriptor table entry the task layer
// shares or duplicates according to clone flags (spec.md §4.7: CLONE_FILES).
// Grounded on the teacher's fd/fd.go (Fd_t, Copyfd), adapted to this
// module's file.File capability in place of the teacher's fdops.Fdops_i.
package fd

import "rv39kernel/file"

// Permission bits, carried over from the teacher's FD_READ/WRITE/CLOEXEC.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is one open file descriptor: a shared File capability plus the
// permission bits the descriptor itself (not the underlying file) was
// opened with.
type Fd_t struct {
	File  file.File
	Perms int
}

// Copyfd duplicates a descriptor. Unlike the teacher's version (which
// calls Fops.Reopen to get an independent struct whose offset advances
// separately), this module's File capability has no Reopen method —
// file I/O bodies are out of scope (spec.md §1) — so the duplicate
// simply shares the same File, which is the correct semantics for
// dup()-style sharing and for CLONE_FILES tables holding the same
// entry twice.
func Copyfd(f *Fd_t) *Fd_t {
	nf := *f
	return &nf
}

// Table is the per-process file-descriptor table, shared across
// threads in the same thread group unless CLONE_FILES is absent at
// clone time (spec.md §4.7).
type Table struct {
	fds map[int]*Fd_t
}

// NewTable returns an empty descriptor table.
func NewTable() *Table {
	return &Table{fds: make(map[int]*Fd_t)}
}

// Clone returns an independent Table holding a Copyfd of every live
// descriptor, used when CLONE_FILES is absent (spec.md §4.7: "deep-copy
// otherwise" is the FILES-absent case, mirroring VM's copy semantics).
func (t *Table) Clone() *Table {
	nt := NewTable()
	for k, f := range t.fds {
		nt.fds[k] = Copyfd(f)
	}
	return nt
}

// Install inserts f at the lowest unused descriptor number and returns it.
func (t *Table) Install(f *Fd_t) int {
	n := 0
	for {
		if _, used := t.fds[n]; !used {
			break
		}
		n++
	}
	t.fds[n] = f
	return n
}

// Get returns the descriptor at fdno, if any.
func (t *Table) Get(fdno int) (*Fd_t, bool) {
	f, ok := t.fds[fdno]
	return f, ok
}

// Close removes fdno from the table. Reports false if it was not open.
func (t *Table) Close(fdno int) bool {
	if _, ok := t.fds[fdno]; !ok {
		return false
	}
	delete(t.fds, fdno)
	return true
}

// CloseOnExec closes every descriptor marked FD_CLOEXEC, called by
// execve (spec.md §4.7: "closes close-on-exec descriptors").
func (t *Table) CloseOnExec() {
	for k, f := range t.fds {
		if f.Perms&FD_CLOEXEC != 0 {
			delete(t.fds, k)
		}
	}
}
