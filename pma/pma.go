// Package pma implements the three Physical Memory Area variants that
// back a VMA: Fixed (pre-allocated), Identical (MMIO/kernel, no
// backing storage), and Lazy (demand-paged, optional file backing)
// (spec.md §4.4). Grounded on the teacher's mem.Page_i
// allocate/refcount/dmap interface and circbuf.Circbuf_t's
// lazily-allocated, page-backed buffer.
package pma

import (
	"rv39kernel/defs"
	"rv39kernel/frame"
)

// PMA is the common contract every variant implements (spec.md §4.4).
type PMA interface {
	// Len reports the area's size in pages.
	Len() int
	// GetFrame returns the i-th page's backing frame. If alloc is
	// true and the page isn't yet backed, one is allocated (and
	// populated from a backing file, for Lazy areas); if alloc is
	// false and the page isn't backed, ErrFrameNotFound is returned.
	GetFrame(i int, alloc bool) (frame.Frame, defs.Err_t)
	// GetFrames returns every page's backing frame, allocating any
	// that are missing iff alloc is true.
	GetFrames(alloc bool) ([]frame.Frame, defs.Err_t)
	// DeallocFrame releases the i-th page's backing frame, writing it
	// back to a backend file first if one is configured.
	DeallocFrame(i int) defs.Err_t
	// Split partitions the area at the given page indices (both
	// relative to the start of the area, half-open). See splitRange
	// for the exact four-combination contract.
	Split(start, end *int) (mid PMA, right PMA)
	// Extend grows the area to newSize pages, appending unbacked
	// pages. Fixed and Identical areas don't support this.
	Extend(newSize int) defs.Err_t
}

// ErrFrameNotFound is returned by GetFrame(alloc=false) when the
// requested page has no backing frame yet.
var ErrFrameNotFound = defs.Err_t(-1001)

// ErrUnimplemented is returned by Identical's DeallocFrame and Extend,
// since Identical PMAs carry no backing storage of their own (spec.md
// §4.4).
var ErrUnimplemented = defs.ENOSYS

// ErrFailedIO is returned when a Lazy area's write-back to its
// backend file fails (spec.md §7, "PMAFailedIO").
var ErrFailedIO = defs.Err_t(-1002)

// splitRange implements the four-combination splitting contract
// shared by every variant (spec.md §4.4 "Splitting contract"):
//
//	neither given: no-op, self unchanged, mid and right absent
//	start only:    self keeps [0,start); returns mid=[start,n), right=nil
//	end only:      self keeps [end,n);   returns mid=[0,end),   right=nil
//	both given:    self keeps [0,start); returns mid=[start,end), right=[end,n)
//
// self is nil when the receiver's range is unchanged (the no-op case);
// callers must check for that before reslicing their own state.
func splitRange(n int, start, end *int) (self *[2]int, mid *[2]int, right *[2]int) {
	switch {
	case start == nil && end == nil:
		return nil, nil, nil
	case start != nil && end == nil:
		return &[2]int{0, *start}, &[2]int{*start, n}, nil
	case start == nil && end != nil:
		return &[2]int{*end, n}, &[2]int{0, *end}, nil
	default:
		return &[2]int{0, *start}, &[2]int{*start, *end}, &[2]int{*end, n}
	}
}
