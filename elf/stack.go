package elf

import (
	"crypto/rand"
	"debug/elf"
	"encoding/binary"

	"rv39kernel/defs"
	"rv39kernel/mm"
	"rv39kernel/paging"
)

// userStackSize is the fixed size of the initial stack VMA; the
// GROWSDOWN flag lets the page-fault handler extend it further on
// demand (spec.md §4.5, §4.6).
const userStackSize = 32 * paging.PageSize

// userStackTopVA returns the fixed virtual address the stack starts
// just below, one page under the trapframe slot so the stack can never
// grow into it.
func userStackTopVA() uint64 {
	return mm.UserStackTopVPage.StartAddress()
}

// stackBuilder assembles the initial stack content top-down, exactly
// mirroring the teacher-adjacent original's InitStack::push_slice
// (original_source/kernel/src/loader/init.rs): each push reserves
// room for its payload, then further lowers the pointer to the
// payload's natural alignment, leaving any rounding slack as an
// unused gap *above* the payload. Units are recorded in push order;
// reversing them yields the final low-to-high byte image.
type stackBuilder struct {
	sp    uint64
	units [][]byte // push order; each unit is payload followed by its alignment slack
}

func newStackBuilder(top uint64) *stackBuilder {
	return &stackBuilder{sp: top}
}

// push reserves and writes data, aligning the resulting address down
// to align bytes, and returns that address.
func (b *stackBuilder) push(data []byte, align uint64) uint64 {
	size := uint64(len(data))
	afterSize := b.sp - size
	pad := afterSize % align
	aligned := afterSize - pad
	unit := make([]byte, size+pad)
	copy(unit, data)
	b.units = append(b.units, unit)
	b.sp = aligned
	return aligned
}

// pushStr writes s's bytes followed by a NUL terminator (the teacher's
// own C-string push order: "push_slice(&[0u8]); push_slice(s)").
func (b *stackBuilder) pushStr(s string) uint64 {
	b.push([]byte{0}, 1)
	return b.push([]byte(s), 1)
}

// pushWords writes a little-endian array of 8-byte words, 8-byte
// aligned.
func (b *stackBuilder) pushWords(words ...uint64) uint64 {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return b.push(buf, 8)
}

// image returns the final low-to-high byte image and the stack
// pointer it starts at.
func (b *stackBuilder) image() ([]byte, uint64) {
	total := 0
	for _, u := range b.units {
		total += len(u)
	}
	out := make([]byte, 0, total)
	for i := len(b.units) - 1; i >= 0; i-- {
		out = append(out, b.units[i]...)
	}
	return out, b.sp
}

// auxPair is one (type, value) entry of the auxiliary vector.
type auxPair struct {
	typ, val uint64
}

// buildStack allocates the fixed-size initial stack VMA and serializes
// argv/envp/auxv into it in the exact order spec.md §4.6 specifies,
// returning the final stack pointer.
func buildStack(m *mm.MM, argv, envp []string, hdr elf.Header64, dynBase uint64, stackExec bool) (uint64, defs.Err_t) {
	if len(argv) == 0 {
		return 0, defs.EINVAL
	}

	top := userStackTopVA()
	bottom := top - userStackSize
	flags := uint(mm.VMRead | mm.VMWrite | mm.VMUser | mm.VMGrowsDown)
	if stackExec {
		flags |= mm.VMExec
	}
	if _, err := m.AllocAnonVMA(paging.VPageFromAddr(bottom), paging.VPageFromAddr(top), flags); err != 0 {
		return 0, err
	}

	sb := newStackBuilder(top)

	// 1. argv[0] as a C string.
	sb.pushStr(argv[0])

	// 2. a 16-byte random value.
	var randBytes [16]byte
	rand.Read(randBytes[:]) // failure leaves zeros, a harmless AT_RANDOM seed
	randomVA := sb.push(randBytes[:], 8)

	// 3. envp strings.
	envpVA := make([]uint64, len(envp))
	for i, e := range envp {
		envpVA[i] = sb.pushStr(e)
	}

	// 4. argv strings.
	argvVA := make([]uint64, len(argv))
	for i, a := range argv {
		argvVA[i] = sb.pushStr(a)
	}

	// 5. 16 zero bytes — doubles as the implicit AT_NULL terminator for
	// the auxv table read forward from this point (spec.md §4.6).
	sb.pushWords(0, 0)

	// 6. auxv entries, terminated implicitly by step 5's zero pair.
	aux := []auxPair{
		{atPhdr, dynBase + hdr.Phoff},
		{atPhent, uint64(hdr.Phentsize)},
		{atPhnum, uint64(hdr.Phnum)},
		{atPagesz, paging.PageSize},
		{atRandom, randomVA},
	}
	for _, a := range aux {
		sb.pushWords(a.typ, a.val)
	}

	// 7. envp pointer array terminated by NULL.
	sb.pushWords(0)
	for i := len(envpVA) - 1; i >= 0; i-- {
		sb.pushWords(envpVA[i])
	}

	// 8. argv pointer array terminated by NULL.
	sb.pushWords(0)
	for i := len(argvVA) - 1; i >= 0; i-- {
		sb.pushWords(argvVA[i])
	}

	// 9. argc.
	sb.pushWords(uint64(len(argv)))

	image, sp := sb.image()
	bufs, err := m.GetBufMut(sp, len(image), true)
	if err != 0 {
		return 0, err
	}
	off := 0
	for _, chunk := range bufs {
		n := copy(chunk, image[off:])
		off += n
	}
	return sp, 0
}
