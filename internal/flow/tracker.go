package flow

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/market"
)

// Retention bounds how long conversion records are kept.
const Retention = 24 * time.Hour

var (
	// ErrInvalidDirection is returned when recording an unsupported direction.
	ErrInvalidDirection = errors.New("flow: invalid direction")
	// ErrNegativeVolume is returned when recording a negative volume.
	ErrNegativeVolume = errors.New("flow: volume must not be negative")
)

// Record is one conversion contributing to flow.
type Record struct {
	Timestamp time.Time
	Direction market.Direction
	Volume    decimal.Decimal
}

// Totals aggregates volume per direction over a window.
type Totals struct {
	AtoB decimal.Decimal
	BtoA decimal.Decimal
}

// Same returns the volume that moved in direction d.
func (t Totals) Same(d market.Direction) decimal.Decimal {
	if d == market.BtoA {
		return t.BtoA
	}
	return t.AtoB
}

// Sum returns the volume in both directions.
func (t Totals) Sum() decimal.Decimal {
	return t.AtoB.Add(t.BtoA)
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker keeps a time-ordered log of recent conversion volumes.
type Tracker struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends a conversion at the current instant and drops everything
// older than Retention.
func (t *Tracker) Record(d market.Direction, volume decimal.Decimal) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidDirection, d)
	}
	if volume.IsNegative() {
		return ErrNegativeVolume
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.records = append(t.records, Record{Timestamp: now, Direction: d, Volume: volume})
	t.prune(now)
	return nil
}

// WindowedTotals sums volumes recorded within [now-window, now]. Records past
// Retention are never counted, even when window is longer.
func (t *Tracker) WindowedTotals(window time.Duration) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if window > Retention {
		window = Retention
	}
	from := now.Add(-window)

	totals := Totals{AtoB: decimal.Zero, BtoA: decimal.Zero}
	for _, r := range t.records {
		if r.Timestamp.Before(from) || r.Timestamp.After(now) {
			continue
		}
		switch r.Direction {
		case market.AtoB:
			totals.AtoB = totals.AtoB.Add(r.Volume)
		case market.BtoA:
			totals.BtoA = totals.BtoA.Add(r.Volume)
		}
	}
	return totals
}

// Snapshot returns the retained records, oldest first.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(t.now())
	return slices.Clone(t.records)
}

// Len reports how many records are retained.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(t.now())
	return len(t.records)
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-Retention)
	keep := slices.IndexFunc(t.records, func(r Record) bool {
		return !r.Timestamp.Before(cutoff)
	})
	switch {
	case keep < 0:
		t.records = t.records[:0]
	case keep > 0:
		n := copy(t.records, t.records[keep:])
		t.records = t.records[:n]
	}
}
