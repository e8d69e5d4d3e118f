// Package profdev implements the profiling device (defs.D_PROF): a
// File the kernel exposes to userspace so a sampling profiler can read
// back accumulated hart program-counter samples as a standard pprof
// profile. Grounded on the teacher's stats.go device-as-File pattern
// (stats/stats.go) but serializing through
// github.com/google/pprof/profile instead of a bespoke text format, one
// of the domain-stack libraries the retrieval pack pulls in for this
// purpose.
package profdev

import (
	"bytes"
	"sync"

	"github.com/google/pprof/profile"

	"rv39kernel/defs"
)

// sampleUnit is the single value type this device records: a raw
// sample count per program-counter location, the minimal shape a
// consumer like `go tool pprof` understands without CPU-time scaling.
var sampleUnit = &profile.ValueType{Type: "samples", Unit: "count"}

// Device accumulates PC samples from every hart and serializes them as
// a pprof profile on read. One Device instance backs defs.D_PROF.
type Device struct {
	mu      sync.Mutex
	counts  map[uint64]int64 // pc -> sample count
	period  int64            // sampling period in nanoseconds, 0 if unset
	cache   []byte           // last-marshaled snapshot, invalidated by Sample
	dirty   bool
}

// New returns an empty profiling device.
func New(periodNanos int64) *Device {
	return &Device{counts: make(map[uint64]int64), period: periodNanos}
}

// Sample records one observation of the program counter pc. Neither
// the scheduler nor the trap path calls it; samples come only from
// direct callers.
func (d *Device) Sample(pc uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[pc]++
	d.dirty = true
}

// snapshotLocked builds a profile.Profile from the current sample
// counts. d.mu must be held.
func (d *Device) snapshotLocked() *profile.Profile {
	p := &profile.Profile{
		SampleType:    []*profile.ValueType{sampleUnit},
		PeriodType:    sampleUnit,
		Period:        d.period,
		DefaultSampleType: "samples",
	}
	// Every distinct PC becomes its own synthetic Location/Function:
	// this kernel has no symbol table to resolve addresses to names, so
	// the function name is just the hex address, matching how the
	// teacher's own diagnostic dumps print raw PCs when symbols are
	// unavailable.
	locs := make(map[uint64]*profile.Location, len(d.counts))
	var nextID uint64 = 1
	for pc, count := range d.counts {
		fn := &profile.Function{ID: nextID, Name: hexpc(pc), SystemName: hexpc(pc)}
		loc := &profile.Location{ID: nextID, Address: pc, Line: []profile.Line{{Function: fn, Line: 0}}}
		nextID++
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		locs[pc] = loc
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{count},
		})
	}
	return p
}

func hexpc(pc uint64) string {
	const hexdigits = "0123456789abcdef"
	if pc == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	for pc > 0 {
		i--
		buf[i] = hexdigits[pc&0xf]
		pc >>= 4
	}
	i -= 2
	buf[i], buf[i+1] = '0', 'x'
	return string(buf[i:])
}

// marshal returns the gzip-compressed protobuf encoding of the current
// samples, caching it until the next Sample call invalidates it.
func (d *Device) marshal() ([]byte, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty && d.cache != nil {
		return d.cache, 0
	}
	p := d.snapshotLocked()
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, defs.EIO
	}
	d.cache = buf.Bytes()
	d.dirty = false
	return d.cache, 0
}

// ReadAtOff implements file.File: reads of /dev/prof always return the
// full current snapshot truncated/offset like a regular seekable file.
func (d *Device) ReadAtOff(buf []byte, off int64) (int, defs.Err_t) {
	data, err := d.marshal()
	if err != 0 {
		return 0, err
	}
	if off < 0 || off > int64(len(data)) {
		return 0, defs.EINVAL
	}
	n := copy(buf, data[off:])
	return n, 0
}

// WriteAtOff is unsupported: the profile is derived from scheduler
// samples, not writable content.
func (d *Device) WriteAtOff(buf []byte, off int64) (int, defs.Err_t) {
	return 0, defs.EINVAL
}

// Seek is meaningless for a device whose contents are regenerated on
// every read; it reports success at offset 0 for SEEK_SET(0),
// otherwise fails, matching the teacher's handling of non-seekable
// device files.
func (d *Device) Seek(off int64, whence int) (int64, defs.Err_t) {
	if whence == 0 && off == 0 {
		return 0, 0
	}
	return 0, defs.ESPIPE
}

// GetSize returns the length of the current snapshot.
func (d *Device) GetSize() (int64, defs.Err_t) {
	data, err := d.marshal()
	if err != 0 {
		return 0, err
	}
	return int64(len(data)), 0
}

func (d *Device) ReadReady() bool  { return true }
func (d *Device) WriteReady() bool { return false }
