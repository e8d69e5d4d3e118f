// Package file defines the capability the core consumes to read and
// write file-backed pages without depending on any particular
// filesystem. The on-disk filesystem, block cache, and virtio-blk
// driver that implement it are out of scope (spec.md §1, §6).
package file

import "rv39kernel/defs"

// File is the capability a Lazy PMA or the ELF loader uses to pull
// bytes from backing storage. Implementations live outside the core
// (spec.md §6): "the core treats the filesystem as an opaque File
// capability".
type File interface {
	ReadAtOff(buf []byte, off int64) (int, defs.Err_t)
	WriteAtOff(buf []byte, off int64) (int, defs.Err_t)
	Seek(off int64, whence int) (int64, defs.Err_t)
	GetSize() (int64, defs.Err_t)
	ReadReady() bool
	WriteReady() bool
}
