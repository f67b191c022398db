package nostd

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// UserHeader 网关完成鉴权后写入的用户ID
const UserHeader = "TFC-User"

// AdminHeader 网关写入的管理员标识
const AdminHeader = "TFC-Admin"

func GetUserID(c echo.Context) string {
	userID := c.Request().Header.Get(UserHeader)
	if len(userID) > 0 {
		return strings.TrimSpace(userID)
	}
	return strings.TrimSpace(c.QueryParam("user_id"))
}

func IsAdmin(c echo.Context) bool {
	return c.Request().Header.Get(AdminHeader) == "true"
}
