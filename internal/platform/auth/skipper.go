package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass session authentication. Dr. AI
// routes carry their own X-Auth check and the MDA gateway authenticates
// against the upstream service.
var publicPaths = map[string]bool{
	"/health":             true,
	"/health/db":          true,
	"/api/dr-ai/health":   true,
	"/api/auction/health": true,
}

var publicPrefixes = []string{
	"/api/triage/",
	"/api/triagem/",
	"/api/metrics/",
	"/api/specialties/",
	"/api/events",
	"/api/mda",
}

// AuthSkipper returns true for requests whose path should skip session
// authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether the given path bypasses session auth.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
