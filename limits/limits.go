// Package limits implements the per-task resource-limit table
// prlimit64 reads and writes (spec.md §6). Grounded on the teacher's
// limits.Syslimit_t fixed-field table, generalized from a single
// system-wide struct into a per-task map keyed by resource number,
// since prlimit64 operates per task rather than system-wide; the
// wire-format Rlimit64 type mirrors stat.Stat_t's
// private-field-plus-setter-plus-Bytes idiom for packing a
// fixed-layout struct into raw bytes.
package limits

import "unsafe"

// Resource identifiers: the Linux RLIMIT_* subset a kernel without a
// filesystem or process-count enforcement can still meaningfully track.
const (
	RlimitStack  = 3
	RlimitNoFile = 7
	RlimitAS     = 9
)

// Infinity marks a limit as unbounded (RLIM_INFINITY).
const Infinity = ^uint64(0)

// Rlimit64 is one resource's current soft/hard pair, laid out to match
// the wire format prlimit64 reads and writes 16 bytes at a time.
type Rlimit64 struct {
	cur uint64
	max uint64
}

func (r *Rlimit64) Wcur(v uint64) { r.cur = v }
func (r *Rlimit64) Wmax(v uint64) { r.max = v }
func (r *Rlimit64) Cur() uint64   { return r.cur }
func (r *Rlimit64) Max() uint64   { return r.max }

// Bytes exposes the raw 16-byte wire encoding of the pair.
func (r *Rlimit64) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*r)
	sl := (*[sz]uint8)(unsafe.Pointer(&r.cur))
	return sl[:]
}

// RlimitFromBytes decodes a 16-byte {cur,max} pair as written by
// userspace ahead of a prlimit64(SET) call.
func RlimitFromBytes(b []byte) Rlimit64 {
	var r Rlimit64
	dst := (*[unsafe.Sizeof(r)]byte)(unsafe.Pointer(&r))
	copy(dst[:], b)
	return r
}

// Table holds every resource limit for one task.
type Table struct {
	limits map[int]Rlimit64
}

// NewTable returns a table seeded with the defaults a freshly
// constructed task starts with.
func NewTable() *Table {
	return &Table{limits: map[int]Rlimit64{
		RlimitNoFile: {cur: 1024, max: 1024},
		RlimitAS:     {cur: Infinity, max: Infinity},
		RlimitStack:  {cur: 8 << 20, max: Infinity},
	}}
}

// Get returns resource's current pair, or false if the resource is
// unknown to this table.
func (t *Table) Get(resource int) (Rlimit64, bool) {
	r, ok := t.limits[resource]
	return r, ok
}

// Set installs a new pair for resource (prlimit64's SET half).
func (t *Table) Set(resource int, r Rlimit64) {
	t.limits[resource] = r
}

// Clone returns an independent copy, inherited by every new task
// regardless of clone flags (Linux rlimits are always copied, never
// shared, at clone/fork time).
func (t *Table) Clone() *Table {
	nt := &Table{limits: make(map[int]Rlimit64, len(t.limits))}
	for k, v := range t.limits {
		nt.limits[k] = v
	}
	return nt
}
