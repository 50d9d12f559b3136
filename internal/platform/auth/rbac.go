package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has one of the specified roles.
// Admin and service callers pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RoleFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether role satisfies one of the required roles.
func HasRole(role string, required ...string) bool {
	if role == "" {
		return false
	}
	if role == RoleAdmin || role == RoleService {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}
