package handler

import (
	"net/http"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/metrics"
	"github.com/dushixiang/tfc/internal/middleware"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/service"
	"github.com/dushixiang/tfc/internal/xe"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FightHandler 对战HTTP处理器
type FightHandler struct {
	fightService   *service.FightService
	fightEngine    *service.FightEngine
	accountService *service.ExchangeAccountService
	hub            *broadcast.Hub
	logger         *zap.Logger
}

// NewFightHandler 创建对战处理器
func NewFightHandler(
	fightService *service.FightService,
	fightEngine *service.FightEngine,
	accountService *service.ExchangeAccountService,
	hub *broadcast.Hub,
	logger *zap.Logger,
) *FightHandler {
	return &FightHandler{
		fightService:   fightService,
		fightEngine:    fightEngine,
		accountService: accountService,
		hub:            hub,
		logger:         logger,
	}
}

// GetState 获取对战状态
// GET /api/fights/:id/state
func (h *FightHandler) GetState(c echo.Context) error {
	ctx := c.Request().Context()

	state, err := h.fightEngine.GetFightState(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// Create 创建对战
// POST /api/fights
func (h *FightHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreateFightRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	fight, err := h.fightService.CreateFight(ctx, middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fight)
}

// Join 加入对战
// POST /api/fights/:id/join
func (h *FightHandler) Join(c echo.Context) error {
	ctx := c.Request().Context()

	fight, err := h.fightService.JoinFight(ctx, c.Param("id"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fight)
}

// Cancel 取消对战
// POST /api/fights/:id/cancel
func (h *FightHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.fightService.CancelFight(ctx, c.Param("id"), middleware.UserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "对战已取消",
	})
}

// RegisterOrder 登记通过平台下达的订单
// POST /api/fights/:id/orders
func (h *FightHandler) RegisterOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.RegisterOrderActionRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	action, err := h.fightService.RegisterOrderAction(ctx, c.Param("id"), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, action)
}

// LinkAccount 绑定交易所账户
// PUT /api/account
func (h *FightHandler) LinkAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.LinkAccountRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.accountService.Link(ctx, middleware.UserID(c), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "交易所账户已绑定",
	})
}

type resolveRequest struct {
	Status models.FightStatus `json:"status" validate:"required,oneof=NO_CONTEST CANCELLED"`
}

// Resolve 管理员裁决
// POST /api/admin/fights/:id/resolve
func (h *FightHandler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.fightService.ResolveFight(ctx, c.Param("id"), req.Status); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "裁决已生效",
	})
}

// RegisterRoutes 注册路由
func (h *FightHandler) RegisterRoutes(g *echo.Group) {
	identity := middleware.IdentityConfig{Logger: h.logger}
	requireUser := middleware.RequireUser(identity)
	requireAdmin := middleware.RequireAdmin(identity)

	// 公开接口
	g.GET("/fights/:id/state", h.GetState)
	g.GET("/ws", h.hub.ServeWS)

	// 用户接口
	g.POST("/fights", h.Create, requireUser)
	g.POST("/fights/:id/join", h.Join, requireUser)
	g.POST("/fights/:id/cancel", h.Cancel, requireUser)
	g.POST("/fights/:id/orders", h.RegisterOrder, requireUser)
	g.PUT("/account", h.LinkAccount, requireUser)

	// 管理接口
	g.POST("/admin/fights/:id/resolve", h.Resolve, requireAdmin)
}

// RegisterMetrics 注册指标接口
func RegisterMetrics(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
