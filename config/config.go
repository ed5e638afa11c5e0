// Package config loads the bot configuration: built-in defaults, then an
// optional YAML file, then FQ_-prefixed environment variables (a .env file
// in the working directory is honoured).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fastquant/internal/indicator"
)

// EnvPrefix prefixes every environment override, e.g. FQ_REDIS_ADDR.
const EnvPrefix = "FQ_"

// Config is the full application configuration.
type Config struct {
	App        AppConfig        `yaml:"app" envPrefix:"APP_"`
	Binance    BinanceConfig    `yaml:"binance" envPrefix:"BINANCE_"`
	Strategies []StrategyConfig `yaml:"strategies" envPrefix:"STRATEGIES_"`
	Trading    TradingConfig    `yaml:"trading" envPrefix:"TRADING_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Redis      RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Kafka      KafkaConfig      `yaml:"kafka" envPrefix:"KAFKA_"`
	SQLite     SQLiteConfig     `yaml:"sqlite" envPrefix:"SQLITE_"`
	Notify     NotifyConfig     `yaml:"notify" envPrefix:"NOTIFY_"`
	Indicators IndicatorConfig  `yaml:"indicators" envPrefix:"INDICATORS_"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name           string        `yaml:"name" env:"NAME"`
	MetricsAddr    string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	StatusInterval time.Duration `yaml:"status_interval" env:"STATUS_INTERVAL"`
	Source         string        `yaml:"source" env:"SOURCE"` // "binance" or "redis"
	SignalReplay   int           `yaml:"signal_replay" env:"SIGNAL_REPLAY"` // signals kept for WebSocket backfill
}

// BinanceConfig holds exchange credentials and endpoints.
type BinanceConfig struct {
	APIKey      string `yaml:"api_key" env:"API_KEY"`
	APISecret   string `yaml:"api_secret" env:"API_SECRET"`
	Testnet     bool   `yaml:"testnet" env:"TESTNET"`
	WSBaseURL   string `yaml:"ws_base_url" env:"WS_BASE_URL"`
	RESTBaseURL string `yaml:"rest_base_url" env:"REST_BASE_URL"`
}

// StrategyConfig configures one dual moving-average strategy. From the
// environment: FQ_STRATEGIES_0_SYMBOL, FQ_STRATEGIES_0_FAST_PERIOD, ...
type StrategyConfig struct {
	Symbol     string `yaml:"symbol" env:"SYMBOL"`
	FastPeriod int    `yaml:"fast_period" env:"FAST_PERIOD"`
	SlowPeriod int    `yaml:"slow_period" env:"SLOW_PERIOD"`
}

// TradingConfig holds execution and risk settings.
type TradingConfig struct {
	MaxPosition   float64 `yaml:"max_position" env:"MAX_POSITION"`
	TradeQuantity float64 `yaml:"trade_quantity" env:"TRADE_QUANTITY"`
	EnableTrading bool    `yaml:"enable_trading" env:"ENABLE_TRADING"`
	SlippageBps   float64 `yaml:"slippage_bps" env:"SLIPPAGE_BPS"`
	MaxDailyLoss  float64 `yaml:"max_daily_loss" env:"MAX_DAILY_LOSS"`
	RSIFilter     bool    `yaml:"rsi_filter" env:"RSI_FILTER"`

	// DailyResetHour is the UTC hour the daily loss counter resets.
	DailyResetHour int `yaml:"daily_reset_hour" env:"DAILY_RESET_HOUR"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// RedisConfig configures the Redis signal sink and tick streams.
type RedisConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Addr          string        `yaml:"addr" env:"ADDR"`
	Password      string        `yaml:"password" env:"PASSWORD"`
	DB            int           `yaml:"db" env:"DB"`
	StreamMaxLen  int64         `yaml:"stream_max_len" env:"STREAM_MAX_LEN"`
	MaxFailures   int           `yaml:"max_failures" env:"MAX_FAILURES"`
	ResetTimeout  time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	ConsumerGroup string        `yaml:"consumer_group" env:"CONSUMER_GROUP"`
	ConsumerName  string        `yaml:"consumer_name" env:"CONSUMER_NAME"`
	MirrorTicks   bool          `yaml:"mirror_ticks" env:"MIRROR_TICKS"`
}

// KafkaConfig configures the Kafka signal sink.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled" env:"ENABLED"`
	Brokers      []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string   `yaml:"topic" env:"TOPIC"`
	Compression  string   `yaml:"compression" env:"COMPRESSION"`
	RequiredAcks int      `yaml:"required_acks" env:"REQUIRED_ACKS"`
}

// SQLiteConfig configures tick recording and the trade journal.
type SQLiteConfig struct {
	RecordTicks bool   `yaml:"record_ticks" env:"RECORD_TICKS"`
	TicksPath   string `yaml:"ticks_path" env:"TICKS_PATH"`
	JournalPath string `yaml:"journal_path" env:"JOURNAL_PATH"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	Log            bool   `yaml:"log" env:"LOG"`
	WebhookURL     string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	TelegramToken  string `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
	TelegramChatID string `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
}

// IndicatorConfig lists the monitored streaming indicators.
type IndicatorConfig struct {
	Specs string `yaml:"specs" env:"SPECS"` // e.g. "SMA:20,EMA:9,RSI:14"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:           "fastquant",
			MetricsAddr:    ":9090",
			StatusInterval: 60 * time.Second,
			Source:         "binance",
			SignalReplay:   500,
		},
		Binance: BinanceConfig{Testnet: true},
		Strategies: []StrategyConfig{
			{Symbol: "BTCUSDT", FastPeriod: 5, SlowPeriod: 20},
		},
		Trading: TradingConfig{
			MaxPosition:   1.0,
			TradeQuantity: 0.001,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "logs/trading.log",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			MaxFailures:   5,
			ResetTimeout:  10 * time.Second,
			ConsumerGroup: "fastquant",
			ConsumerName:  "worker-1",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "fastquant.signals",
		},
		SQLite: SQLiteConfig{
			TicksPath:   "data/ticks.db",
			JournalPath: "data/journal.db",
		},
		Notify:     NotifyConfig{Log: true},
		Indicators: IndicatorConfig{Specs: "SMA:20,EMA:9,RSI:14"},
	}
}

// Load builds the configuration. path may be empty or point to a missing
// file, in which case only defaults and the environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Strategies {
		c.Strategies[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Strategies[i].Symbol))
	}
	c.App.Source = strings.ToLower(c.App.Source)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Strategies) == 0 {
		errs = append(errs, errors.New("at least one strategy is required"))
	}
	seen := map[string]bool{}
	for i, s := range c.Strategies {
		if s.Symbol == "" {
			errs = append(errs, fmt.Errorf("strategies[%d]: symbol is required", i))
		}
		if seen[s.Symbol] {
			errs = append(errs, fmt.Errorf("strategies[%d]: duplicate symbol %s", i, s.Symbol))
		}
		seen[s.Symbol] = true
		if s.FastPeriod <= 0 || s.SlowPeriod <= 0 {
			errs = append(errs, fmt.Errorf("strategies[%d]: periods must be positive", i))
		} else if s.FastPeriod >= s.SlowPeriod {
			errs = append(errs, fmt.Errorf("strategies[%d]: fast period %d must be below slow period %d", i, s.FastPeriod, s.SlowPeriod))
		}
	}

	if c.Trading.TradeQuantity <= 0 {
		errs = append(errs, errors.New("trading.trade_quantity must be positive"))
	}
	if c.Trading.MaxPosition < 0 {
		errs = append(errs, errors.New("trading.max_position must not be negative"))
	}
	if c.Trading.SlippageBps < 0 {
		errs = append(errs, errors.New("trading.slippage_bps must not be negative"))
	}
	if c.Trading.DailyResetHour < 0 || c.Trading.DailyResetHour > 23 {
		errs = append(errs, fmt.Errorf("trading.daily_reset_hour must be 0-23, got %d", c.Trading.DailyResetHour))
	}
	if c.Trading.EnableTrading && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		errs = append(errs, errors.New("live trading requires binance.api_key and binance.api_secret"))
	}

	switch c.App.Source {
	case "binance", "redis":
	default:
		errs = append(errs, fmt.Errorf("app.source must be binance or redis, got %q", c.App.Source))
	}
	if c.App.Source == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("app.source redis requires redis.enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.enabled requires kafka.brokers"))
	}
	if _, err := ParseIndicatorSpecs(c.Indicators.Specs); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Symbols returns the configured strategy symbols in order.
func (c *Config) Symbols() []string {
	out := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		out[i] = s.Symbol
	}
	return out
}

// ParseIndicatorSpecs parses "SMA:20,EMA:9,RSI:14". An empty string yields
// no indicators.
func ParseIndicatorSpecs(s string) ([]indicator.Spec, error) {
	return indicator.ParseSpecs(s)
}
