package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/service"
	"github.com/dushixiang/tfc/internal/telegram"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/dushixiang/tfc/pkg/nostd"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	telegramHTTPTimeout = 10 * time.Second
	redisPingTimeout    = 5 * time.Second
)

// provideTelegram provides telegram instance
func provideTelegram(logger *zap.Logger, conf *config.Config) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient := &http.Client{Timeout: telegramHTTPTimeout}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		ChatID: conf.Telegram.ChatID,
		Client: httpClient,
	})
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

// provideNotifier 未启用 telegram 时返回 nil 接口
func provideNotifier(tg *telegram.Telegram) service.FightNotifier {
	if tg == nil {
		return nil
	}
	return tg
}

// provideSecretBox provides the cipher for stored exchange secrets
func provideSecretBox(conf *config.Config, logger *zap.Logger) *nostd.SecretBox {
	box, err := nostd.NewSecretBox(conf.Security.SecretKey)
	if err != nil {
		logger.Fatal("invalid security.secret_key", zap.Error(err))
	}
	return box
}

// provideExchange 根据配置选择真实交易所或模拟交易所
func provideExchange(conf *config.Config, logger *zap.Logger) exchange.Exchange {
	if !conf.Binance.Enabled {
		logger.Warn("Binance disabled, using paper exchange")
		return exchange.NewPaperExchange(logger)
	}

	client := exchange.NewBinanceClient(conf.Binance.ProxyURL, conf.Binance.Testnet, logger)
	logger.Info("Binance client initialized",
		zap.Bool("testnet", conf.Binance.Testnet),
		zap.Bool("proxy", conf.Binance.ProxyURL != ""),
	)
	return client
}

// provideRedis 未启用时返回 nil，启用但连接失败直接退出
func provideRedis(conf *config.Config, logger *zap.Logger) *redis.Client {
	if !conf.Redis.Enabled {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", conf.Redis.Addr), zap.Error(err))
	}

	logger.Info("Redis publisher initialized",
		zap.String("addr", conf.Redis.Addr),
		zap.String("channel", conf.Redis.GetChannel()),
	)
	return rdb
}

// providePublisher 本地 WebSocket 推送，启用 Redis 时同时发布到频道
func providePublisher(hub *broadcast.Hub, rdb *redis.Client, conf *config.Config) broadcast.Publisher {
	publishers := broadcast.Fanout{hub}
	if rdb != nil {
		publishers = append(publishers, broadcast.NewRedisPublisher(rdb, conf.Redis.GetChannel()))
	}
	return publishers
}

func provideFillDedup() *service.FillDedup {
	return service.NewFillDedup()
}
