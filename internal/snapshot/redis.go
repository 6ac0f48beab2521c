package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"qi-quai-rates/internal/ratecache"
)

// ErrNotConfigured indicates the publisher has no redis client.
var ErrNotConfigured = errors.New("snapshot: redis not configured")

// Entry is the stored form of one reading.
type Entry struct {
	Quantity  string     `json:"quantity"`
	Status    string     `json:"status"`
	Value     string     `json:"value"`
	Previous  string     `json:"previous,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	CycleID   string     `json:"cycle_id,omitempty"`
}

// NewEntry converts a cache reading.
func NewEntry(r ratecache.Reading, cycleID string) Entry {
	e := Entry{
		Quantity: r.Quantity.String(),
		Status:   r.Status.String(),
		Value:    r.Value.String(),
		CycleID:  cycleID,
	}
	if r.Available() {
		updated := r.UpdatedAt.UTC()
		e.UpdatedAt = &updated
		if !r.Previous.IsZero() {
			e.Previous = r.Previous.String()
		}
	}
	if r.LastError != nil {
		e.LastError = r.LastError.Error()
	}
	return e
}

// Options configures a Publisher.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// Publisher mirrors the current readings into a redis hash so other
// processes can read them without polling upstream.
type Publisher struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPublisher connects to redis. An empty address yields a nil publisher.
func NewPublisher(opts Options, logger zerolog.Logger) *Publisher {
	if opts.Addr == "" {
		return nil
	}
	key := opts.Key
	if key == "" {
		key = "qiquai:readings"
	}
	return &Publisher{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		key:    key,
		ttl:    opts.TTL,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return ErrNotConfigured
	}
	return p.client.Ping(ctx).Err()
}

// Publish replaces the stored readings in one transaction.
func (p *Publisher) Publish(ctx context.Context, cycleID string, readings []ratecache.Reading) error {
	if p == nil || p.client == nil {
		return ErrNotConfigured
	}
	fields, err := encodeFields(readings, cycleID)
	if err != nil {
		return err
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.key)
		pipe.HSet(ctx, p.key, fields)
		if p.ttl > 0 {
			pipe.Expire(ctx, p.key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	p.logger.Debug().Str("key", p.key).Int("fields", len(readings)).Msg("snapshot published")
	return nil
}

// Load reads the stored readings back.
func (p *Publisher) Load(ctx context.Context) (map[string]Entry, error) {
	if p == nil || p.client == nil {
		return nil, ErrNotConfigured
	}
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeFields(raw)
}

// Close releases the redis client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func encodeFields(readings []ratecache.Reading, cycleID string) (map[string]any, error) {
	fields := make(map[string]any, len(readings))
	for _, r := range readings {
		payload, err := json.Marshal(NewEntry(r, cycleID))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.Quantity, err)
		}
		fields[r.Quantity.String()] = string(payload)
	}
	return fields, nil
}

func decodeFields(raw map[string]string) (map[string]Entry, error) {
	out := make(map[string]Entry, len(raw))
	for field, payload := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field, err)
		}
		out[field] = e
	}
	return out, nil
}
