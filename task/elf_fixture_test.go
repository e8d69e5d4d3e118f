package task

import (
	"encoding/binary"
	"os"
	"testing"

	"rv39kernel/frame"
)

// TestMain seeds the physical frame allocator once for the whole
// package's test binary; every test in this package constructs at
// least one MM via NewInit/Clone, and frame.Global starts out with no
// region at all (spec.md §4.1, AddRegion "called exactly once at
// boot").
func TestMain(m *testing.M) {
	frame.Global().AddRegion(0, 1<<16)
	os.Exit(m.Run())
}

// buildMinimalELF assembles the smallest ELF64 RISC-V executable
// debug/elf.NewFile will accept: one PT_LOAD segment, no section
// headers, entry point at the start of that segment. Used by the
// tests below in place of a real toolchain-produced binary, since
// none can be built without invoking one.
func buildMinimalELF(vaddr uint64, code []byte) []byte {
	const (
		ehsize  = 64
		phentsz = 56
	)
	phoff := uint64(ehsize)
	dataOff := phoff + phentsz

	buf := make([]byte, dataOff+uint64(len(code)))

	// e_ident
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)   // e_type = ET_EXEC
	le.PutUint16(buf[18:], 243) // e_machine = EM_RISCV
	le.PutUint32(buf[20:], 1)   // e_version
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], phoff)
	le.PutUint64(buf[40:], 0) // e_shoff
	le.PutUint32(buf[48:], 0) // e_flags
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsz)
	le.PutUint16(buf[56:], 1) // e_phnum
	le.PutUint16(buf[58:], 0) // e_shentsize
	le.PutUint16(buf[60:], 0) // e_shnum
	le.PutUint16(buf[62:], 0) // e_shstrndx

	p := buf[phoff:]
	le.PutUint32(p[0:], 1)              // p_type = PT_LOAD
	le.PutUint32(p[4:], 5)              // p_flags = PF_R|PF_X
	le.PutUint64(p[8:], dataOff)        // p_offset
	le.PutUint64(p[16:], vaddr)         // p_vaddr
	le.PutUint64(p[24:], vaddr)         // p_paddr
	le.PutUint64(p[32:], uint64(len(code))) // p_filesz
	le.PutUint64(p[40:], uint64(len(code))) // p_memsz
	le.PutUint64(p[48:], 0x1000)         // p_align

	copy(buf[dataOff:], code)
	return buf
}

// testELF is a ready-to-load minimal image: one RWX-free (R|X) page at
// 0x1000 containing a handful of zero bytes (RISC-V illegal
// instruction, never actually executed since nothing in this module
// runs user code).
func testELF() []byte {
	return buildMinimalELF(0x1000, make([]byte, 16))
}
