package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qi-quai-rates/internal/alerting"
	"qi-quai-rates/internal/market"
	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/scheduler"
	"qi-quai-rates/internal/storage"
)

// Cache is the part of the rate cache the service drives.
type Cache interface {
	Refresh(ctx context.Context) ratecache.RefreshOutcome
	Read(q ratecache.Quantity) ratecache.Reading
	Readings() []ratecache.Reading
	Pair() market.Pair
}

// Publisher mirrors readings somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, cycleID string, readings []ratecache.Reading) error
}

// Options wires the optional collaborators of a Service. Nil fields are
// skipped.
type Options struct {
	Store      storage.SampleStore
	AlertStore storage.AlertStore
	Publisher  Publisher
	Notifier   alerting.Notifier
	Streaks    *alerting.Streaks
	Channels   []string
}

// Service runs the refresh cycle on every poller tick and fans the result
// out to persistence, the snapshot and alerting.
type Service struct {
	poller     *scheduler.Poller
	cache      Cache
	store      storage.SampleStore
	alertStore storage.AlertStore
	publisher  Publisher
	notifier   alerting.Notifier
	streaks    *alerting.Streaks
	channels   []string
	logger     zerolog.Logger
	now        func() time.Time
}

// New constructs the polling service.
func New(poller *scheduler.Poller, cache Cache, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		poller:     poller,
		cache:      cache,
		store:      opts.Store,
		alertStore: opts.AlertStore,
		publisher:  opts.Publisher,
		notifier:   opts.Notifier,
		streaks:    opts.Streaks,
		channels:   opts.Channels,
		logger:     logger.With().Str("component", "service").Logger(),
		now:        time.Now,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.poller == nil {
		return fmt.Errorf("poller not configured")
	}
	return s.poller.Run(ctx, s.Tick)
}

// Tick executes one refresh cycle. Upstream failures are logged and absorbed;
// the cache falls back to its last good values. Only persistence and
// snapshot errors are returned.
func (s *Service) Tick(ctx context.Context, tick time.Time) error {
	cycleID := uuid.NewString()
	log := s.logger.With().Str("cycle_id", cycleID).Logger()

	outcome := s.cache.Refresh(ctx)
	for _, q := range outcome.Failed() {
		log.Warn().Err(outcome.Errors[q]).
			Str("quantity", q.String()).
			Bool("has_fallback", s.cache.Read(q).Available()).
			Msg("refresh failed, serving last good value")
	}

	readings := s.cache.Readings()
	log.Info().Time("tick", tick).
		Int("failed", len(outcome.Errors)).
		Dict("values", readingsDict(readings)).
		Msg("refresh cycle complete")

	var errs []error
	if err := s.persist(ctx, cycleID, outcome, readings); err != nil {
		errs = append(errs, fmt.Errorf("persist samples: %w", err))
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, cycleID, readings); err != nil {
			errs = append(errs, fmt.Errorf("publish snapshot: %w", err))
		}
	}
	s.alert(ctx, outcome, log)

	return errors.Join(errs...)
}

func (s *Service) persist(ctx context.Context, cycleID string, outcome ratecache.RefreshOutcome, readings []ratecache.Reading) error {
	if s.store == nil {
		return nil
	}
	samples := make([]storage.PriceSample, 0, len(readings))
	for _, r := range readings {
		if _, failed := outcome.Errors[r.Quantity]; failed || r.Status != ratecache.StatusFresh {
			continue
		}
		samples = append(samples, storage.PriceSample{
			CycleID:   cycleID,
			Quantity:  r.Quantity.String(),
			Value:     r.Value,
			SampledAt: r.UpdatedAt,
		})
	}
	return s.store.InsertSamples(ctx, samples)
}

func (s *Service) alert(ctx context.Context, outcome ratecache.RefreshOutcome, log zerolog.Logger) {
	if s.streaks == nil || s.notifier == nil {
		return
	}
	now := s.now().UTC()
	pair := s.cache.Pair()

	for _, q := range ratecache.Quantities {
		failErr, failed := outcome.Errors[q]
		decision, failures := s.streaks.Observe(q.String(), failed, now)
		if decision == alerting.Quiet {
			continue
		}

		r := s.cache.Read(q)
		note := alerting.Notification{
			At:        now,
			Quantity:  q.String(),
			Label:     Label(pair, q),
			Failures:  failures,
			LastGood:  r.Value,
			Recovered: decision == alerting.Recover,
			Channels:  s.channels,
		}
		if r.Available() {
			note.LastUpdated = r.UpdatedAt
		}
		if failErr != nil {
			note.LastError = failErr.Error()
		}

		if !note.Recovered && s.alertStore != nil {
			record := storage.AlertRecord{
				Quantity:  note.Quantity,
				Failures:  note.Failures,
				LastError: note.LastError,
				LastGood:  note.LastGood,
				Channels:  note.Channels,
			}
			if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
				log.Error().Err(err).Str("quantity", note.Quantity).Msg("failed to persist alert record")
			}
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			log.Error().Err(err).Str("quantity", note.Quantity).Msg("failed to dispatch alert")
		}
	}
}

// Label names a quantity in terms of the pair, e.g. "QUAI->QI" or "QI/USD".
func Label(pair market.Pair, q ratecache.Quantity) string {
	switch q {
	case ratecache.RateAtoB:
		return pair.Label(market.AtoB)
	case ratecache.RateBtoA:
		return pair.Label(market.BtoA)
	case ratecache.PriceA:
		return pair.A.Symbol + "/USD"
	case ratecache.PriceB:
		return pair.B.Symbol + "/USD"
	default:
		return q.String()
	}
}

func readingsDict(readings []ratecache.Reading) *zerolog.Event {
	d := zerolog.Dict()
	for _, r := range readings {
		d = d.Str(r.Quantity.String(), r.Value.String()+" ("+r.Status.String()+")")
	}
	return d
}
