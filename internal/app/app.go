package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"qi-quai-rates/internal/alerting"
	"qi-quai-rates/internal/config"
	"qi-quai-rates/internal/engine"
	"qi-quai-rates/internal/fetcher"
	"qi-quai-rates/internal/flow"
	"qi-quai-rates/internal/httpapi"
	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/scheduler"
	"qi-quai-rates/internal/service"
	"qi-quai-rates/internal/snapshot"
	"qi-quai-rates/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	source fetcher.RateSource
}

// Option customises an App.
type Option func(*App)

// WithSource replaces the upstream rate source.
func WithSource(src fetcher.RateSource) Option {
	return func(a *App) { a.source = src }
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.Out = w }
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger, opts ...Option) *App {
	a := &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// newSource returns the configured source and a release func.
func (a *App) newSource() (fetcher.RateSource, func()) {
	if a.source != nil {
		return a.source, func() {}
	}

	quai := fetcher.NewQuai(fetcher.QuaiOptions{
		RPCURL:     a.Config.Quai.RPCURL,
		Pair:       a.Config.Pair(),
		AtoBMethod: a.Config.Quai.AtoBMethod,
		BtoAMethod: a.Config.Quai.BtoAMethod,
		BlockTag:   a.Config.Quai.BlockTag,
		Timeout:    a.Config.Quai.RequestTimeout,
	}, a.Logger)

	prices := fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:    a.Config.Pricing.BaseURL,
		APIKey:     a.Config.Pricing.APIKey,
		VsCurrency: a.Config.Pricing.VsCurrency,
		CoinIDs:    a.Config.Pricing.CoinIDs,
		Timeout:    a.Config.Pricing.RequestTimeout,
		UserAgent:  a.Config.Pricing.UserAgent,
	}, a.Logger)

	return fetcher.Source{Rates: quai, Prices: prices}, quai.Close
}

func (a *App) newEngine(src fetcher.RateSource) (*engine.Engine, error) {
	cache := ratecache.New(src, a.Config.Pair(), a.Logger,
		ratecache.WithHistoryCapacity(a.Config.Poller.HistoryCapacity))
	return engine.New(cache, flow.NewTracker(), a.Config.SlippageParams(), a.Logger,
		engine.WithFlowWindow(a.Config.Flow.Window))
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newPublisher() *snapshot.Publisher {
	return snapshot.NewPublisher(snapshot.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
		Key:      a.Config.Redis.Key,
		TTL:      a.Config.Redis.TTL,
	}, a.Logger)
}

// Run executes the long-running poller and the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	src, release := a.newSource()
	defer release()

	eng, err := a.newEngine(src)
	if err != nil {
		return err
	}

	opts := service.Options{Channels: a.Config.Alerting.Channels}
	if store != nil {
		opts.Store = store
		opts.AlertStore = store
	}
	if pub := a.newPublisher(); pub != nil {
		defer pub.Close()
		if err := pub.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("redis unreachable; snapshot publishing will retry every tick")
		}
		opts.Publisher = pub
	}
	if notifier := a.newNotifier(); notifier != nil {
		opts.Notifier = notifier
		opts.Streaks = alerting.NewStreaks(a.Config.Alerting.StaleAfter, a.Config.Alerting.Cooldown)
	}

	poller := scheduler.New(scheduler.Options{
		Interval:       a.Config.Poller.Interval,
		AlignToStart:   a.Config.Poller.AlignToInterval,
		StartupDelay:   a.Config.Poller.StartupDelay,
		RunImmediately: a.Config.Poller.RunImmediately,
	}, a.Logger)
	svc := service.New(poller, eng.Cache(), opts, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Dur("interval", poller.Interval()).Msg("starting rate poller")
		return svc.Run(gctx)
	})
	if a.Config.HTTP.Enabled {
		router := httpapi.NewRouter(httpapi.NewHandler(eng, a.Logger))
		g.Go(func() error {
			return httpapi.Start(gctx, a.Config.HTTP.Addr, router, a.Config.HTTP.ShutdownTimeout, a.Logger)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// ExportOptions hold parameters for exporting persisted samples.
type ExportOptions struct {
	From       *time.Time
	To         *time.Time
	Quantities []string
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	// History prints this many persisted samples per quantity when a
	// database is configured.
	History int
	// Snapshot prints the readings last published to redis by `run`.
	Snapshot bool
}

// QuoteOptions configure the quote command.
type QuoteOptions struct {
	Direction string
	Amount    string
}

// SimulateOptions configure an offline run against fixed rates.
type SimulateOptions struct {
	RateAtoB  string
	RateBtoA  string
	PriceA    string
	Direction string
	Amount    string
	Count     int
	Alternate bool
}
