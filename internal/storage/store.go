package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	// Schema creates the tables used by Store. It is idempotent.
	Schema = `CREATE TABLE IF NOT EXISTS price_samples (
        id          BIGSERIAL PRIMARY KEY,
        cycle_id    TEXT        NOT NULL,
        quantity    TEXT        NOT NULL,
        value       NUMERIC     NOT NULL,
        sampled_at  TIMESTAMPTZ NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (quantity, sampled_at)
    );
    CREATE INDEX IF NOT EXISTS price_samples_quantity_sampled_at_idx
        ON price_samples (quantity, sampled_at DESC);
    CREATE TABLE IF NOT EXISTS stale_alerts (
        id          BIGSERIAL PRIMARY KEY,
        quantity    TEXT        NOT NULL,
        failures    INTEGER     NOT NULL,
        last_error  TEXT        NOT NULL DEFAULT '',
        last_good   NUMERIC     NOT NULL,
        channels    TEXT[]      NOT NULL DEFAULT '{}',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertPriceSampleSQL = `INSERT INTO price_samples (
        cycle_id,
        quantity,
        value,
        sampled_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (quantity, sampled_at) DO UPDATE
    SET
        cycle_id = EXCLUDED.cycle_id,
        value    = EXCLUDED.value;`

	listSamplesBetweenSQL = `SELECT
        id,
        cycle_id,
        quantity,
        value::text,
        sampled_at,
        created_at
    FROM price_samples
    WHERE quantity = $1
      AND sampled_at >= $2
      AND sampled_at < $3
    ORDER BY sampled_at;`

	listRecentSamplesSQL = `SELECT
        id,
        cycle_id,
        quantity,
        value::text,
        sampled_at,
        created_at
    FROM price_samples
    WHERE quantity = $1
    ORDER BY sampled_at DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM price_samples WHERE sampled_at < $1;`

	insertAlertSQL = `INSERT INTO stale_alerts (
        quantity,
        failures,
        last_error,
        last_good,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, quantity, failures, last_error, last_good::text, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        quantity,
        failures,
        last_error,
        last_good::text,
        channels,
        created_at
    FROM stale_alerts
    ORDER BY created_at DESC
    LIMIT $1;`
)

// SampleStore defines operations for price sample persistence.
type SampleStore interface {
	InsertSamples(ctx context.Context, samples []PriceSample) error
	ListSamplesBetween(ctx context.Context, quantity string, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, quantity string, limit int) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// Store aggregates access to price samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, Schema); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// InsertSamples persists samples in one batch round trip.
func (s *Store) InsertSamples(ctx context.Context, samples []PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(insertPriceSampleSQL,
			sample.CycleID,
			sample.Quantity,
			sample.Value.String(),
			sample.SampledAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range samples {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert price sample: %w", execErr)
		}
	}
	return nil
}

// ListSamplesBetween lists a quantity's samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, quantity string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, quantity, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists a quantity's most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, quantity string, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, quantity, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore prunes samples older than cutoff.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Quantity,
		alert.Failures,
		alert.LastError,
		alert.LastGood.String(),
		channels,
	)
	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanPriceSample(row pgx.Row) (PriceSample, error) {
	var (
		sample   PriceSample
		valueStr string
	)
	if err := row.Scan(
		&sample.ID,
		&sample.CycleID,
		&sample.Quantity,
		&valueStr,
		&sample.SampledAt,
		&sample.CreatedAt,
	); err != nil {
		return PriceSample{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse sample value: %w", err)
	}
	sample.Value = value
	return sample, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec     AlertRecord
		lastStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Quantity,
		&rec.Failures,
		&rec.LastError,
		&lastStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	last, err := decimal.NewFromString(lastStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse last good value: %w", err)
	}
	rec.LastGood = last
	return rec, nil
}

var (
	_ SampleStore = (*Store)(nil)
	_ AlertStore  = (*Store)(nil)
)
