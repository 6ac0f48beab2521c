package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"qi-quai-rates/internal/logging"
	"qi-quai-rates/internal/market"
	"qi-quai-rates/internal/slippage"
)

// EnvPrefix prefixes every environment override, e.g. QIQUAI_QUAI_RPC_URL.
const EnvPrefix = "QIQUAI"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Quai     QuaiConfig     `mapstructure:"quai"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Slippage SlippageConfig `mapstructure:"slippage"`
	Flow     FlowConfig     `mapstructure:"flow"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// AssetConfig describes one side of the pair.
type AssetConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Decimals int32  `mapstructure:"decimals"`
}

// AssetsConfig names the pair. A is the asset with a fetched USD price.
type AssetsConfig struct {
	A AssetConfig `mapstructure:"a"`
	B AssetConfig `mapstructure:"b"`
}

// QuaiConfig covers the JSON-RPC rate source.
type QuaiConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	AtoBMethod     string        `mapstructure:"a_to_b_method"`
	BtoAMethod     string        `mapstructure:"b_to_a_method"`
	BlockTag       string        `mapstructure:"block_tag"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PricingConfig captures the USD spot price API.
type PricingConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	APIKey         string            `mapstructure:"api_key"`
	VsCurrency     string            `mapstructure:"vs_currency"`
	CoinIDs        map[string]string `mapstructure:"coin_ids"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
}

// PollerConfig governs refresh cadence.
type PollerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
}

// SlippageConfig calibrates the slippage model.
type SlippageConfig struct {
	FloorAtoB       decimal.Decimal `mapstructure:"floor_a_to_b"`
	FloorBtoA       decimal.Decimal `mapstructure:"floor_b_to_a"`
	CeilingAtoB     decimal.Decimal `mapstructure:"ceiling_a_to_b"`
	CeilingBtoA     decimal.Decimal `mapstructure:"ceiling_b_to_a"`
	FlowCoefficient decimal.Decimal `mapstructure:"flow_coefficient"`
	SizeDivisor     decimal.Decimal `mapstructure:"size_divisor"`
	SizeCap         decimal.Decimal `mapstructure:"size_cap"`
}

// FlowConfig tunes the flow window used when pricing.
type FlowConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. Persistence is
// optional; an empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig points at an optional readings snapshot target.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AlertingConfig defines staleness alerts.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	StaleAfter int            `mapstructure:"stale_after"`
	Cooldown   time.Duration  `mapstructure:"cooldown"`
	Channels   []string       `mapstructure:"channels"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment when it exists.
// Variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "qiquai")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("assets.a.symbol", "QUAI")
	v.SetDefault("assets.a.decimals", 18)
	v.SetDefault("assets.b.symbol", "QI")
	v.SetDefault("assets.b.decimals", 3)

	v.SetDefault("quai.rpc_url", "https://rpc.quai.network/cyprus1")
	v.SetDefault("quai.a_to_b_method", "quai_quaiToQi")
	v.SetDefault("quai.b_to_a_method", "quai_qiToQuai")
	v.SetDefault("quai.block_tag", "latest")
	v.SetDefault("quai.request_timeout", "10s")

	v.SetDefault("pricing.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.vs_currency", "usd")
	v.SetDefault("pricing.coin_ids", map[string]any{"quai": "quai-network"})
	v.SetDefault("pricing.request_timeout", "10s")
	v.SetDefault("pricing.user_agent", "qiquai/1.0")

	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.align_to_interval", false)
	v.SetDefault("poller.startup_delay", "0s")
	v.SetDefault("poller.run_immediately", true)
	v.SetDefault("poller.history_capacity", 100)

	v.SetDefault("slippage.floor_a_to_b", "1.5")
	v.SetDefault("slippage.floor_b_to_a", "0.5")
	v.SetDefault("slippage.ceiling_a_to_b", "8")
	v.SetDefault("slippage.ceiling_b_to_a", "6")
	v.SetDefault("slippage.flow_coefficient", "5")
	v.SetDefault("slippage.size_divisor", "10000")
	v.SetDefault("slippage.size_cap", "2")

	v.SetDefault("flow.window", "1h")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "qiquai:readings")
	v.SetDefault("redis.ttl", "5m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.stale_after", 5)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDecimalHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc decodes strings and YAML numbers into decimals.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(value))
		case float64:
			return decimal.NewFromFloat(value), nil
		case float32:
			return decimal.NewFromFloat32(value), nil
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Assets.A.Symbol == "" || c.Assets.B.Symbol == "" {
		return fmt.Errorf("assets.a.symbol and assets.b.symbol are required")
	}
	if strings.EqualFold(c.Assets.A.Symbol, c.Assets.B.Symbol) {
		return fmt.Errorf("assets.a and assets.b must differ")
	}
	if c.Assets.A.Decimals < 0 || c.Assets.B.Decimals < 0 {
		return fmt.Errorf("asset decimals cannot be negative")
	}
	if c.Quai.RPCURL == "" {
		return fmt.Errorf("quai.rpc_url is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.HistoryCapacity <= 0 {
		return fmt.Errorf("poller.history_capacity must be greater than zero")
	}
	if c.Flow.Window <= 0 {
		return fmt.Errorf("flow.window must be greater than zero")
	}
	if err := c.SlippageParams().Validate(); err != nil {
		return fmt.Errorf("slippage: %w", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Enabled && c.Alerting.StaleAfter <= 0 {
		return fmt.Errorf("alerting.stale_after must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// Pair materialises the configured asset pair.
func (c *Config) Pair() market.Pair {
	return market.Pair{
		A: market.Asset{Symbol: strings.ToUpper(c.Assets.A.Symbol), Decimals: c.Assets.A.Decimals},
		B: market.Asset{Symbol: strings.ToUpper(c.Assets.B.Symbol), Decimals: c.Assets.B.Decimals},
	}
}

// SlippageParams materialises the slippage calibration.
func (c *Config) SlippageParams() slippage.Params {
	return slippage.Params{
		FloorAtoB:       c.Slippage.FloorAtoB,
		FloorBtoA:       c.Slippage.FloorBtoA,
		CeilingAtoB:     c.Slippage.CeilingAtoB,
		CeilingBtoA:     c.Slippage.CeilingBtoA,
		FlowCoefficient: c.Slippage.FlowCoefficient,
		SizeDivisor:     c.Slippage.SizeDivisor,
		SizeCap:         c.Slippage.SizeCap,
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
