package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserAdmin = "X-User-Admin"

	userIDKey  = "user_id"
	isAdminKey = "is_admin"
)

// Identity copies the identity an upstream proxy asserted into the request
// context. It never rejects a request; handlers decide what they require.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.Set(userIDKey, req.Header.Get(HeaderUserID))

			isAdmin, _ := strconv.ParseBool(req.Header.Get(HeaderUserAdmin))
			c.Set(isAdminKey, isAdmin)
			return next(c)
		}
	}
}

func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func IsAdmin(c echo.Context) bool {
	admin, _ := c.Get(isAdminKey).(bool)
	return admin
}
