package middleware

import (
	"net/http"

	"github.com/dushixiang/tfc/pkg/nostd"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ContextUserID 当前用户ID在 echo.Context 中的键
const ContextUserID = "user_id"

// IdentityConfig 身份中间件配置，鉴权由前置网关完成，这里只读取网关写入的用户标识
type IdentityConfig struct {
	Logger *zap.Logger
}

// RequireUser 要求请求携带用户ID
func RequireUser(config IdentityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := nostd.GetUserID(c)
			if userID == "" {
				config.Logger.Warn("user identity missing",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))

				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"code":    http.StatusUnauthorized,
					"message": "未授权：缺少用户标识",
				})
			}

			c.Set(ContextUserID, userID)
			return next(c)
		}
	}
}

// RequireAdmin 要求管理员身份
func RequireAdmin(config IdentityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !nostd.IsAdmin(c) {
				config.Logger.Warn("admin required",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))

				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"code":    http.StatusForbidden,
					"message": "需要管理员权限",
				})
			}
			return next(c)
		}
	}
}

// UserID 获取 RequireUser 写入的用户ID
func UserID(c echo.Context) string {
	if v, ok := c.Get(ContextUserID).(string); ok {
		return v
	}
	return ""
}
