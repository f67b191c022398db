//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/handler"
	"github.com/dushixiang/tfc/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewFightHandler,
	)

	broadcastSet = wire.NewSet(
		broadcast.NewHub,
		provideRedis,
		providePublisher,
	)

	arenaSet = wire.NewSet(
		provideSecretBox,
		provideExchange,
		provideFillDedup,
		provideTelegram,
		provideNotifier,
		service.NewExchangeAccountService,
		wire.Bind(new(service.AccountResolver), new(*service.ExchangeAccountService)),
		service.NewTradeRecordService,
		wire.Bind(new(service.TradeRecorder), new(*service.TradeRecordService)),
		service.NewFillDetector,
		service.NewFightEngine,
		service.NewFightService,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		broadcastSet,
		arenaSet,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}
