package history

import (
	"errors"
	"iter"
	"sync"
	"time"
)

// DefaultCapacity is the number of samples retained per series.
const DefaultCapacity = 100

// ErrFutureSample rejects samples dated after the buffer's clock.
var ErrFutureSample = errors.New("history: sample timestamp is in the future")

// Sample is one immutable observation of a tracked value.
type Sample[T any] struct {
	Timestamp time.Time
	Value     T
}

// Option customises a Buffer.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to reject future-dated samples.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Buffer is a bounded, insertion-ordered time series. Once full, every push
// evicts the oldest sample.
type Buffer[T any] struct {
	mu       sync.RWMutex
	capacity int
	samples  []Sample[T]
	now      func() time.Time
}

// New returns an empty buffer holding at most capacity samples. A
// non-positive capacity falls back to DefaultCapacity.
func New[T any](capacity int, opts ...Option) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Buffer[T]{
		capacity: capacity,
		samples:  make([]Sample[T], 0, capacity),
		now:      o.now,
	}
}

// Push appends a sample, evicting the oldest ones beyond capacity.
func (b *Buffer[T]) Push(s Sample[T]) error {
	if s.Timestamp.After(b.now()) {
		return ErrFutureSample
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, s)
	if over := len(b.samples) - b.capacity; over > 0 {
		n := copy(b.samples, b.samples[over:])
		clear(b.samples[n:])
		b.samples = b.samples[:n]
	}
	return nil
}

// Snapshot returns a copy of the samples in insertion order.
func (b *Buffer[T]) Snapshot() []Sample[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample[T], len(b.samples))
	copy(out, b.samples)
	return out
}

// FilterSince yields, in insertion order, the samples whose timestamp is at or
// after since. Each iteration works on a fresh snapshot, so the sequence can
// be ranged over repeatedly.
func (b *Buffer[T]) FilterSince(since time.Time) iter.Seq[Sample[T]] {
	return func(yield func(Sample[T]) bool) {
		for _, s := range b.Snapshot() {
			if s.Timestamp.Before(since) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Last returns the most recently pushed sample.
func (b *Buffer[T]) Last() (Sample[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) == 0 {
		var zero Sample[T]
		return zero, false
	}
	return b.samples[len(b.samples)-1], true
}

// Len reports the number of retained samples.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Cap reports the configured capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}
