package watcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"odinwatch/config"
	"odinwatch/internal/odin/control"
	"odinwatch/internal/odin/dispatch"
	"odinwatch/internal/odin/memorystore"
	"odinwatch/internal/odin/pricing"
	"odinwatch/internal/odin/processor"
	"odinwatch/internal/odin/subscriber"
	"odinwatch/internal/status"
	"odinwatch/pkg/binance"
	"odinwatch/pkg/coingecko"
	"odinwatch/pkg/odin"
	"odinwatch/pkg/storage/postgres"
	"odinwatch/pkg/telegram"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const startupTimeout = 10 * time.Second

// Run wires the watcher from cfg and blocks until ctx is done.
// Every resource opened here is closed before Run returns.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	bot := telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
	defer bot.Close()

	// Subscribers
	store, closeStore, err := newSubscriberStore(ctx, cfg.Subscribers)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := subscriber.NewRegistry(store, logger.Named("subscriber"))
	loadCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	err = registry.Load(loadCtx)
	cancel()
	if err != nil {
		return err
	}

	// Reference price
	source, closeSource := newPriceSource(ctx, cfg.Price, logger.Named("price"))
	defer closeSource()
	oracle := pricing.NewOracle(
		source,
		decimal.NewFromFloat(cfg.Price.Fallback),
		cfg.Price.RefreshInterval,
		cfg.Price.Timeout,
		logger.Named("price"),
	)

	// Dispatch
	dispatcher := dispatch.NewDispatcher(bot, registry, dispatch.Options{
		Concurrency: cfg.Alert.Concurrency,
		SendTimeout: cfg.Alert.SendTimeout,
		Media:       mediaFor(cfg.Telegram, logger),
	}, logger.Named("dispatch"))

	// Trades
	feed := odin.NewRESTClient(cfg.Odin.BaseURL, cfg.Odin.SiteURL, cfg.Odin.Timeout)
	defer feed.Close()

	orders := memorystore.NewOrderStore()
	proc := processor.New(feed, oracle, orders, dispatcher, processor.Options{
		TokenID:      cfg.Odin.TokenID,
		TokenName:    cfg.Odin.TokenName,
		TokenURL:     cfg.Odin.TokenURL(),
		PageSize:     cfg.Odin.PageSize,
		Threshold:    decimal.NewFromFloat(cfg.Alert.Threshold),
		FetchTimeout: cfg.Odin.Timeout,
	}, logger.Named("processor"))

	channel := control.NewChannel(bot, registry, cfg.Telegram.UpdatesTimeout, cfg.Telegram.Timeout, logger.Named("control"))
	loop := NewLoop(channel, proc, cfg.Poll.Interval, logger.Named("loop"))

	// Optional alert journal
	var journal *postgres.PostgresClient
	if cfg.Postgres.Enabled {
		journal, err = postgres.InitializeAndMigrateAlertRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			logger.Error("alert journal unavailable, continuing without it", zap.Error(err))
		} else {
			defer journal.Close()
			proc.WithJournal(&alertJournal{db: journal, tokenID: cfg.Odin.TokenID})
			loop.WithRetention(journal, cfg.Postgres.Retention)
		}
	}

	// Optional status server
	if cfg.Status.Enabled {
		sources := status.Sources{
			Poll:        proc,
			Subscribers: registry,
			Orders:      orders,
			Price:       oracle,
		}
		if journal != nil {
			sources.Alerts = journal
			sources.Journal = journal
		}
		_, srv := status.NewServer(cfg.Status.Addr, sources)
		go func() {
			logger.Info("status server listening", zap.String("addr", cfg.Status.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("odinwatch started",
		zap.String("token_id", cfg.Odin.TokenID),
		zap.String("token_name", cfg.Odin.TokenName),
		zap.Int("subscribers", registry.Count()),
		zap.Float64("threshold", cfg.Alert.Threshold),
		zap.String("price_source", cfg.Price.Source),
	)

	loop.Run(ctx)
	return nil
}

func newSubscriberStore(ctx context.Context, cfg config.SubscribersConfig) (subscriber.Store, func(), error) {
	switch cfg.Backend {
	case "", "file":
		return subscriber.NewFileStore(cfg.Path), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		return subscriber.NewRedisStore(client, cfg.RedisKey), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown subscribers backend %q", cfg.Backend)
	}
}

func newPriceSource(ctx context.Context, cfg config.PriceConfig, logger *zap.Logger) (pricing.Source, func()) {
	if cfg.Source == "binance_ws" {
		ws := binance.NewWSClient(cfg.BinanceWSURL, cfg.BinanceSymbol, cfg.MaxStaleness, logger)
		connectCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		if err := ws.Connect(connectCtx); err != nil {
			logger.Warn("binance stream not connected, listener will retry", zap.Error(err))
		}
		cancel()
		go ws.Listen()
		return ws, func() { _ = ws.Close() }
	}

	if cfg.Source != "" && cfg.Source != "coingecko" {
		logger.Warn("unknown price source, using coingecko", zap.String("source", cfg.Source))
	}
	cg := coingecko.NewRESTClient(cfg.CoinGeckoURL, cfg.CoinID, cfg.VsCurrency, cfg.Timeout)
	return cg, cg.Close
}

// mediaFor returns the alert video, or nil when none is configured or the file is unreadable.
func mediaFor(cfg config.TelegramConfig, logger *zap.Logger) *telegram.Video {
	if cfg.MediaPath == "" {
		return nil
	}
	info, err := os.Stat(cfg.MediaPath)
	if err != nil || info.IsDir() {
		logger.Warn("alert media not usable, sending text alerts", zap.String("path", cfg.MediaPath), zap.Error(err))
		return nil
	}
	return &telegram.Video{
		Path:     cfg.MediaPath,
		Duration: cfg.MediaDuration,
	}
}
