// Package elf loads a 64-bit little-endian RISC-V ELF executable into
// an address space and constructs the initial user stack (spec.md
// §4.6). Grounded on the teacher's kernel/chentry.go, which already
// manipulates ELF headers via the standard library's debug/elf and
// encoding/binary instead of a hand-rolled parser; this package keeps
// that idiom for reading instead of writing.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"rv39kernel/defs"
	"rv39kernel/mm"
	"rv39kernel/paging"
)

// ErrInvalidHeader and ErrInvalidSegment are the two ELF-specific
// failure modes named in spec.md §7.
var (
	ErrInvalidHeader  = defs.Err_t(-1010)
	ErrInvalidSegment = defs.Err_t(-1011)
)

// baseRelocate is the fixed non-zero base position-independent
// executables are rebased to when their first LOAD segment starts at
// virtual address 0 (spec.md §4.6), chosen well clear of the null page
// and any reasonable stack/trampoline placement.
const baseRelocate = 0x10000

// Auxv types implemented (spec.md §6); values match Linux's
// include/uapi/linux/auxvec.h, per spec.md §9 "follow the original
// where the spec is silent on exact constants".
const (
	atNull   = 0
	atPhdr   = 3
	atPhent  = 4
	atPhnum  = 5
	atPagesz = 6
	atRandom = 25
)

// Image is the result of loading an ELF file: the entry point and the
// initial stack pointer, both ready to be written into the task's
// trapframe (spec.md §4.6).
type Image struct {
	Entry uint64
	StackPointer uint64
}

// Load validates data as a 64-bit little-endian RISC-V Executable or
// SharedObject, installs every LOAD segment as a Fixed-backed VMA in
// m, records the program break, and builds the initial stack
// containing argv/envp/auxv (spec.md §4.6).
func Load(m *mm.MM, data []byte, argv, envp []string) (*Image, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidHeader
	}
	if e := checkHeader(&f.FileHeader); e != 0 {
		return nil, e
	}

	var hdr elf.Header64
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, ErrInvalidHeader
	}

	dynBase := uint64(0)
	if firstLoadAtZero(f) {
		dynBase = baseRelocate
	}

	var maxEnd uint64
	stackExec := false
	for _, phdr := range f.Progs {
		switch phdr.Type {
		case elf.PT_LOAD:
			start := phdr.Vaddr + dynBase
			end := phdr.Vaddr + phdr.Memsz + dynBase
			if end > maxEnd {
				maxEnd = end
			}
			flags := uint(mm.VMUser)
			if phdr.Flags&elf.PF_R != 0 {
				flags |= mm.VMRead
			}
			if phdr.Flags&elf.PF_W != 0 {
				flags |= mm.VMWrite
			}
			if phdr.Flags&elf.PF_X != 0 {
				flags |= mm.VMExec
			}
			if phdr.Off+phdr.Filesz > uint64(len(data)) {
				return nil, ErrInvalidSegment
			}
			segData := data[phdr.Off : phdr.Off+phdr.Filesz]
			startPage := paging.VPageFromAddr(start)
			endPage := paging.VPageFromAddr(roundup(end))
			if _, verr := m.AllocWriteVMA(segData, startPage, endPage, flags); verr != 0 {
				return nil, verr
			}
		case elf.PT_INTERP:
			// Recorded as a no-op load per spec.md §6: "INTERP currently
			// no-op". A future dynamic loader would read the interpreter
			// path out of data[phdr.Off:phdr.Off+phdr.Filesz] here.
		case elf.PT_GNU_STACK:
			stackExec = phdr.Flags&elf.PF_X != 0
		}
	}

	startBrk := roundup(maxEnd)
	m.StartBrk = startBrk
	m.Brk = startBrk
	entry := hdr.Entry + dynBase
	m.EntryPoint = entry

	sp, serr := buildStack(m, argv, envp, hdr, dynBase, stackExec)
	if serr != 0 {
		return nil, serr
	}
	return &Image{Entry: entry, StackPointer: sp}, 0
}

func checkHeader(h *elf.FileHeader) defs.Err_t {
	if h.Class != elf.ELFCLASS64 {
		return ErrInvalidHeader
	}
	if h.Data != elf.ELFDATA2LSB {
		return ErrInvalidHeader
	}
	if h.Type != elf.ET_EXEC && h.Type != elf.ET_DYN {
		return ErrInvalidHeader
	}
	if h.Machine != elf.EM_RISCV {
		return ErrInvalidHeader
	}
	return 0
}

func firstLoadAtZero(f *elf.File) bool {
	for _, phdr := range f.Progs {
		if phdr.Type == elf.PT_LOAD {
			return phdr.Off == 0 && phdr.Vaddr == 0
		}
	}
	return false
}

func roundup(v uint64) uint64 {
	const pageSize = paging.PageSize
	return (v + pageSize - 1) &^ (pageSize - 1)
}
