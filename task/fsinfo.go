package task

import "rv39kernel/ksync"

// FSInfo is the shared filesystem-info record (current working
// directory) a thread group agrees on under CLONE_FS (spec.md §4.7).
// Grounded on the teacher's fd.Cwd_t, with the path kept as a plain
// string since ustr.Ustr's canonicalization helpers operate above this
// layer (the core only needs to share or copy the record, not resolve
// paths — path resolution is filesystem territory, out of scope per
// spec.md §1).
type FSInfo struct {
	lock ksync.SpinLock
	Cwd  string
}

// NewFSInfo returns a record rooted at "/".
func NewFSInfo() *FSInfo {
	return &FSInfo{Cwd: "/"}
}

// Clone returns an independent copy, used when CLONE_FS is absent.
func (f *FSInfo) Clone() *FSInfo {
	f.lock.Lock()
	defer f.lock.Unlock()
	return &FSInfo{Cwd: f.Cwd}
}

// Chdir updates the working directory.
func (f *FSInfo) Chdir(path string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Cwd = path
}

// GetCwd returns the current working directory.
func (f *FSInfo) GetCwd() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.Cwd
}
