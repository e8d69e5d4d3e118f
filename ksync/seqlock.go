package ksync

import "sync/atomic"

// SeqLock is a reader-priority-inverted lock: writers hold the inner
// spin lock; readers observe a sequence number, read optimistically,
// and retry if it changed or was odd (write in progress). Readers
// never block writers (spec.md §4.3).
type SeqLock struct {
	seq   atomic.Uint64
	write SpinLock
}

// WriteBegin must be called before mutating the protected data,
// serializing with any other writer via the inner spin lock.
func (s *SeqLock) WriteBegin() {
	s.write.Lock()
	s.seq.Add(1) // now odd: a write is in progress
}

// WriteEnd completes the write, publishing the new even sequence
// number and releasing the inner lock.
func (s *SeqLock) WriteEnd() {
	s.seq.Add(1) // now even again
	s.write.Unlock()
}

// ReadBegin returns the sequence number a reader should pass to
// ReadRetry after copying out the protected data.
func (s *SeqLock) ReadBegin() uint64 {
	for {
		v := s.seq.Load()
		if v&1 == 0 {
			return v
		}
		// a writer is in progress; spin until it finishes.
	}
}

// ReadRetry reports whether the data read since the matching
// ReadBegin may have been torn by a concurrent writer and must be
// re-read.
func (s *SeqLock) ReadRetry(start uint64) bool {
	return s.seq.Load() != start
}

// Read runs fn repeatedly until it observes a consistent snapshot
// (no writer raced it), returning fn's result.
func Read[T any](s *SeqLock, fn func() T) T {
	for {
		start := s.ReadBegin()
		v := fn()
		if !s.ReadRetry(start) {
			return v
		}
	}
}
