package mm

import (
	"rv39kernel/defs"
	"rv39kernel/paging"
)

// Split divides the VMA covering [start,end) at those boundaries,
// delegating the backing-storage split to the PMA and producing up to
// three VMAs with coherent flags and PMA ownership (spec.md §4.5, "VMA
// split/merge"). start and end must each be Contains-or-equal-to-End
// boundaries of a single existing VMA; anything else is EINVAL.
func (m *MM) Split(start, end paging.VPage) defs.Err_t {
	m.lock.Lock()
	defer m.lock.Unlock()

	v, ok := m.vmas.lookup(start)
	if !ok || end > v.End || start < v.Start {
		return defs.EINVAL
	}
	var sidx, eidx *int
	if start != v.Start {
		i := v.index(start)
		sidx = &i
	}
	if end != v.End {
		i := v.index(end)
		eidx = &i
	}
	if sidx == nil && eidx == nil {
		return 0 // whole-VMA "split" is a no-op
	}

	midArea, rightArea := v.Area.Split(sidx, eidx)

	origStart, origEnd, flags := v.Start, v.End, v.Flags
	m.vmas.remove(v)

	switch {
	case sidx != nil && eidx == nil:
		// self keeps [origStart, start); mid = [start, origEnd)
		v.Start, v.End = origStart, start
		m.vmas.insert(v)
		m.vmas.insert(&VMA{Start: start, End: origEnd, Flags: flags, Area: midArea})
	case sidx == nil && eidx != nil:
		// self keeps [end, origEnd); mid = [origStart, end)
		v.Start, v.End = end, origEnd
		m.vmas.insert(v)
		m.vmas.insert(&VMA{Start: origStart, End: end, Flags: flags, Area: midArea})
	default:
		v.Start, v.End = origStart, start
		m.vmas.insert(v)
		m.vmas.insert(&VMA{Start: start, End: end, Flags: flags, Area: midArea})
		m.vmas.insert(&VMA{Start: end, End: origEnd, Flags: flags, Area: rightArea})
	}
	return 0
}

// Merge folds b into a when they are adjacent, share identical flags,
// and reference the same PMA instance (the only case the spec permits
// merging, since two distinct PMAs cannot be coalesced without risking
// a gap in backing storage). Returns EINVAL otherwise.
func (m *MM) Merge(a, b *VMA) defs.Err_t {
	m.lock.Lock()
	defer m.lock.Unlock()
	if a.End != b.Start || a.Flags != b.Flags || a.Area != b.Area {
		return defs.EINVAL
	}
	a.End = b.End
	m.vmas.remove(b)
	return 0
}
