package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets hardening headers on API responses. Proxied MDA
// responses keep the upstream's own headers.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/api/mda") {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			// Consultation rooms need camera and microphone on the same origin.
			h.Set("Permissions-Policy", "camera=(self), microphone=(self), geolocation=()")
			// Triage and bid payloads carry patient data.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
