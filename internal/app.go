package internal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/handler"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/service"
	"github.com/dushixiang/tfc/internal/telegram"
	"github.com/dushixiang/tfc/pkg/nostd"
	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewTFCApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewTFCApp() orz.Application {
	return &TFCApp{}
}

var _ orz.Application = (*TFCApp)(nil)

type AppComponents struct {
	FightHandler *handler.FightHandler

	FightEngine  *service.FightEngine
	FightService *service.FightService
	Hub          *broadcast.Hub

	tg *telegram.Telegram
}

type TFCApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *TFCApp) GetComponents() *AppComponents {
	return r.components
}

func (r *TFCApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.Fight{}, models.FightParticipant{}, models.FightTrade{},
		models.PendingOrderAction{}, models.ExchangeAccount{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      middleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	handler.RegisterMetrics(e)

	api := e.Group("/api")
	{
		r.components.FightHandler.RegisterRoutes(api)
	}

	return nil
}

func (r *TFCApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Trading Fight Club Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if components.tg != nil {
		components.tg.Start()
	}

	logger.Info("Fight engine initialized, starting tick loop...",
		zap.Duration("tick", r.conf.Arena.TickInterval()),
		zap.Duration("sweep", r.conf.Arena.SweepInterval()),
		zap.Bool("binance", r.conf.Binance.Enabled))

	if err := components.FightEngine.StartTickLoop(context.Background()); err != nil {
		return fmt.Errorf("failed to start tick loop: %w", err)
	}
	return nil
}
