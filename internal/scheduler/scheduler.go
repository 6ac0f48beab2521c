package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = 30 * time.Second

// TickFunc is invoked once per poll. tick is the scheduled instant.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune poller behaviour.
type Options struct {
	Interval time.Duration
	// AlignToStart snaps ticks to multiples of Interval on the wall clock.
	AlignToStart bool
	StartupDelay time.Duration
	// RunImmediately fires one tick before waiting for the first interval.
	RunImmediately bool
}

// Poller invokes a TickFunc at a fixed cadence. Ticks run in their own
// goroutine so a slow upstream never delays the next tick; overlapping ticks
// are allowed.
type Poller struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// New constructs a Poller. A non-positive interval falls back to DefaultInterval.
func New(opts Options, logger zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		opts:   opts,
		logger: logger.With().Str("component", "poller").Logger(),
		now:    time.Now,
	}
}

// Interval returns the effective cadence.
func (p *Poller) Interval() time.Duration {
	return p.opts.Interval
}

// Run blocks, invoking tick every interval until ctx is cancelled. In-flight
// ticks are awaited before Run returns.
func (p *Poller) Run(ctx context.Context, tick TickFunc) error {
	if tick == nil {
		return errors.New("poller tick function is nil")
	}
	defer p.wg.Wait()

	if p.opts.StartupDelay > 0 {
		timer := time.NewTimer(p.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if p.opts.RunImmediately {
		p.fire(ctx, tick, p.now().UTC())
	}

	next := p.nextTick(p.now().UTC())
	for {
		delay := next.Sub(p.now())
		if delay < 0 {
			next = p.nextTick(p.now().UTC())
			delay = next.Sub(p.now())
		}

		timer := time.NewTimer(delay)
		p.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		p.fire(ctx, tick, p.tickStart(next))
		next = next.Add(p.opts.Interval)
	}
}

func (p *Poller) fire(ctx context.Context, tick TickFunc, at time.Time) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Interface("panic", r).Time("tick", at).Msg("tick panicked")
			}
		}()
		if err := tick(ctx, at); err != nil {
			p.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		}
	}()
}

func (p *Poller) nextTick(now time.Time) time.Time {
	if !p.opts.AlignToStart {
		return now.Add(p.opts.Interval)
	}
	next := now.Truncate(p.opts.Interval)
	if !next.After(now) {
		next = next.Add(p.opts.Interval)
	}
	return next
}

func (p *Poller) tickStart(t time.Time) time.Time {
	if !p.opts.AlignToStart {
		return t
	}
	return t.Truncate(p.opts.Interval)
}
