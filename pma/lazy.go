package pma

import (
	"rv39kernel/defs"
	"rv39kernel/file"
	"rv39kernel/frame"
)

// backend describes an optional file backing a Lazy area: reads and
// writes of page i go to baseOffset + i*PageSize in f.
type backend struct {
	f          file.File
	baseOffset int64
}

// Lazy demand-pages its frames: each is allocated (and, if a backend
// file is present, populated) on first access, matching mmap-style
// allocations and lazily-loaded ELF/file-backed pages (spec.md §4.4).
// Grounded on the teacher's circbuf.Circbuf_t, which likewise carries
// a lazily-allocated backing page plus an explicit mem.Page_i
// allocator.
type Lazy struct {
	frames  []*frame.AllocatedFrame // nil entry == not yet backed
	backend *backend
}

// NewLazy describes n not-yet-backed pages with no file backing
// (anonymous mmap).
func NewLazy(n int) *Lazy {
	return &Lazy{frames: make([]*frame.AllocatedFrame, n)}
}

// NewLazyFile is like NewLazy but reads page contents from f starting
// at baseOffset on first access (an mmap'd or ELF-loaded file).
func NewLazyFile(n int, f file.File, baseOffset int64) *Lazy {
	return &Lazy{frames: make([]*frame.AllocatedFrame, n), backend: &backend{f: f, baseOffset: baseOffset}}
}

func (l *Lazy) Len() int { return len(l.frames) }

// GetFrame allocates and zero-fills the i-th slot on first access when
// alloc is true, reading PageSize bytes from the backend at
// baseOffset+i*PageSize if one is configured; with alloc false it
// fails with ErrFrameNotFound if the slot is still empty (spec.md
// §4.4).
func (l *Lazy) GetFrame(i int, alloc bool) (frame.Frame, defs.Err_t) {
	if i < 0 || i >= len(l.frames) {
		return 0, defs.EINVAL
	}
	if l.frames[i] != nil {
		return l.frames[i].Frame(), 0
	}
	if !alloc {
		return 0, ErrFrameNotFound
	}
	af, err := frame.AllocFrame(true)
	if err != 0 {
		return 0, err
	}
	if l.backend != nil {
		buf := make([]byte, frame.PageSize)
		off := l.backend.baseOffset + int64(i)*frame.PageSize
		// A short or failed read (e.g. past EOF into the BSS tail of
		// an ELF segment) leaves the zero-filled frame in place,
		// matching standard demand-paging of file-backed segments
		// whose file size is smaller than memory size.
		l.backend.f.ReadAtOff(buf, off)
		l.writeFrameContents(af, buf)
	}
	l.frames[i] = af
	return af.Frame(), 0
}

// writeFrameContents copies buf into the physical frame's bytes.
func (l *Lazy) writeFrameContents(af *frame.AllocatedFrame, buf []byte) {
	copy(frame.Bytes(af.Frame())[:], buf)
}

func (l *Lazy) GetFrames(alloc bool) ([]frame.Frame, defs.Err_t) {
	out := make([]frame.Frame, 0, len(l.frames))
	for i := range l.frames {
		f, err := l.GetFrame(i, alloc)
		if err != 0 {
			if err == ErrFrameNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, 0
}

// DeallocFrame writes the page back to the backend (if present) then
// releases the frame (spec.md §4.4).
func (l *Lazy) DeallocFrame(i int) defs.Err_t {
	if i < 0 || i >= len(l.frames) {
		return defs.EINVAL
	}
	af := l.frames[i]
	if af == nil {
		return 0
	}
	if l.backend != nil {
		off := l.backend.baseOffset + int64(i)*frame.PageSize
		buf := frame.Bytes(af.Frame())[:]
		if _, err := l.backend.f.WriteAtOff(buf, off); err != 0 {
			return ErrFailedIO
		}
	}
	af.Free()
	l.frames[i] = nil
	return 0
}

// Split partitions the frame vector and the backend offset
// accordingly (spec.md §4.4).
func (l *Lazy) Split(start, end *int) (PMA, PMA) {
	self, mid, right := splitRange(len(l.frames), start, end)
	if self == nil && mid == nil && right == nil {
		return nil, nil
	}
	mk := func(r *[2]int) *Lazy {
		if r == nil {
			return nil
		}
		nl := &Lazy{frames: append([]*frame.AllocatedFrame(nil), l.frames[r[0]:r[1]]...)}
		if l.backend != nil {
			nl.backend = &backend{f: l.backend.f, baseOffset: l.backend.baseOffset + int64(r[0])*frame.PageSize}
		}
		return nl
	}
	var midPMA, rightPMA PMA
	if mp := mk(mid); mp != nil {
		midPMA = mp
	}
	if rp := mk(right); rp != nil {
		rightPMA = rp
	}
	if self != nil {
		nl := mk(self)
		l.frames = nl.frames
		l.backend = nl.backend
	}
	return midPMA, rightPMA
}

// Clone produces an independent Lazy area: every currently-backed slot
// gets a freshly allocated frame with the source frame's contents
// copied byte-for-byte; slots not yet faulted stay unbacked in the
// clone too (spec.md §4.5 "clone()": "Pages present in the source are
// copied; pages not yet faulted remain unmapped").
func (l *Lazy) Clone() (*Lazy, defs.Err_t) {
	nl := &Lazy{frames: make([]*frame.AllocatedFrame, len(l.frames))}
	if l.backend != nil {
		b := *l.backend
		nl.backend = &b
	}
	for i, af := range l.frames {
		if af == nil {
			continue
		}
		naf, err := frame.AllocFrame(false)
		if err != 0 {
			return nil, err
		}
		*frame.Bytes(naf.Frame()) = *frame.Bytes(af.Frame())
		nl.frames[i] = naf
	}
	return nl, 0
}

// Extend appends newSize-Len() empty (not-yet-backed) slots.
func (l *Lazy) Extend(newSize int) defs.Err_t {
	if newSize < len(l.frames) {
		return defs.EINVAL
	}
	l.frames = append(l.frames, make([]*frame.AllocatedFrame, newSize-len(l.frames))...)
	return 0
}
