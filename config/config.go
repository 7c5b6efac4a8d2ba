package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingToken is returned when no Telegram bot token could be resolved.
var ErrMissingToken = errors.New("telegram token is not set (TELEGRAM_TOKEN)")

type Config struct {
	Odin        OdinConfig        `mapstructure:"odin"`
	Price       PriceConfig       `mapstructure:"price"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Alert       AlertConfig       `mapstructure:"alert"`
	Subscribers SubscribersConfig `mapstructure:"subscribers"`
	Poll        PollConfig        `mapstructure:"poll"`
	Status      StatusConfig      `mapstructure:"status"`
	Log         LogConfig         `mapstructure:"log"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
}

type OdinConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	TokenID   string        `mapstructure:"token_id"`
	TokenName string        `mapstructure:"token_name"`
	SiteURL   string        `mapstructure:"site_url"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TokenURL is the canonical page for the watched token, e.g. https://odin.fun/token/229u.
func (c OdinConfig) TokenURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/token/" + c.TokenID
}

type PriceConfig struct {
	Source          string        `mapstructure:"source"` // "coingecko" or "binance_ws"
	CoinGeckoURL    string        `mapstructure:"coingecko_url"`
	CoinID          string        `mapstructure:"coin_id"`
	VsCurrency      string        `mapstructure:"vs_currency"`
	BinanceWSURL    string        `mapstructure:"binance_ws_url"`
	BinanceSymbol   string        `mapstructure:"binance_symbol"`
	Fallback        float64       `mapstructure:"fallback"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxStaleness    time.Duration `mapstructure:"max_staleness"`
}

type TelegramConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	TokenParameter string        `mapstructure:"token_parameter"` // SSM parameter name, prod only
	Timeout        time.Duration `mapstructure:"timeout"`
	UpdatesTimeout time.Duration `mapstructure:"updates_timeout"` // long-poll wait passed to getUpdates
	MediaPath      string        `mapstructure:"media_path"`
	MediaDuration  int           `mapstructure:"media_duration"`
}

type AlertConfig struct {
	Threshold   float64       `mapstructure:"threshold"`
	Concurrency int           `mapstructure:"concurrency"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type SubscribersConfig struct {
	Backend       string `mapstructure:"backend"` // "file" or "redis"
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("odin.base_url", "https://api.odin.fun/v1")
	v.SetDefault("odin.token_id", "229u")
	v.SetDefault("odin.token_name", "Spark")
	v.SetDefault("odin.site_url", "https://odin.fun")
	v.SetDefault("odin.page_size", 9999)
	v.SetDefault("odin.timeout", 10*time.Second)

	v.SetDefault("price.source", "coingecko")
	v.SetDefault("price.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.coin_id", "bitcoin")
	v.SetDefault("price.vs_currency", "usd")
	v.SetDefault("price.binance_ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("price.binance_symbol", "BTCUSDT")
	v.SetDefault("price.fallback", 90000)
	v.SetDefault("price.refresh_interval", 60*time.Second)
	v.SetDefault("price.timeout", 5*time.Second)
	v.SetDefault("price.max_staleness", 2*time.Minute)

	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 15*time.Second)
	v.SetDefault("telegram.updates_timeout", time.Second)
	v.SetDefault("telegram.media_duration", 10)

	v.SetDefault("alert.threshold", 500)
	v.SetDefault("alert.concurrency", 8)
	v.SetDefault("alert.send_timeout", 30*time.Second)

	v.SetDefault("subscribers.backend", "file")
	v.SetDefault("subscribers.path", "active_chats.json")
	v.SetDefault("subscribers.redis_addr", "localhost:6379")
	v.SetDefault("subscribers.redis_key", "odinwatch:active_chats")

	v.SetDefault("poll.interval", 2*time.Second)

	v.SetDefault("status.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
}

// Load loads application configuration using Viper.
// It reads .env, then config.yaml, and overrides with environment variables.
// A missing config file is tolerated; a missing bot token is not.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, dir := range configDirs() {
		v.AddConfigPath(dir)
	}

	// Support environment variables with dot notation (e.g., ODIN_TOKEN_ID)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Telegram.Token == "" && cfg.Log.Environment == "prod" && cfg.Telegram.TokenParameter != "" {
		cfg.Telegram.Token = getParameterStoreValue(cfg.Telegram.TokenParameter, true)
	}
	if cfg.Telegram.Token == "" {
		return nil, ErrMissingToken
	}

	return &cfg, nil
}

func configDirs() []string {
	var dirs []string
	if dir := os.Getenv("ODINWATCH_CONFIG_DIR"); dir != "" {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, "config")

	ex, err := os.Executable()
	if err == nil && !strings.Contains(ex, "go-build") {
		dirs = append(dirs, filepath.Join(filepath.Dir(ex), "../config"))
	}
	return dirs
}
