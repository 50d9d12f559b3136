// Package gateway fronts the services that run beside telemed: the
// MedicalDesk-advanced (MDA) app and the Dr. AI health check.
package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/apierror"
)

const (
	HeaderGatewaySource = "X-Gateway-Source"
	HeaderRequestID     = "X-Request-ID"

	gatewaySource = "telemed-main"
)

// MDAConfig configures the MDA reverse proxy.
type MDAConfig struct {
	Enabled bool
	Target  string
	Logger  zerolog.Logger
}

// RegisterMDA mounts /api/mda/* and /ws-mda. When the feature is disabled
// both answer 503 feature_disabled.
func RegisterMDA(e *echo.Echo, cfg MDAConfig) error {
	if !cfg.Enabled {
		for _, p := range []string{"/api/mda", "/api/mda/*", "/ws-mda", "/ws-mda/*"} {
			e.Any(p, mdaDisabled)
		}
		return nil
	}

	target, err := url.Parse(cfg.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return fmt.Errorf("invalid MDA_SERVICE_URL %q", cfg.Target)
	}

	logger := cfg.Logger
	proxy := echomw.ProxyWithConfig(echomw.ProxyConfig{
		Balancer: echomw.NewRoundRobinBalancer([]*echomw.ProxyTarget{{URL: target}}),
		Rewrite: map[string]string{
			"/ws-mda":   "/ws",
			"/ws-mda/*": "/ws/$1",
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("mda proxy failed")
			return apierror.New(http.StatusBadGateway, "mda_service_unavailable", map[string]interface{}{
				"message": "Serviço MDA temporariamente indisponível",
				"ts":      time.Now().UTC().Format(time.RFC3339),
			})
		},
	})

	unreachable := func(c echo.Context) error { return echo.ErrNotFound }
	for _, p := range []string{"/api/mda", "/api/mda/*", "/ws-mda", "/ws-mda/*"} {
		e.Any(p, unreachable, traceHeaders, proxy)
	}

	logger.Info().Str("target", target.String()).Msg("mda gateway enabled")
	return nil
}

// traceHeaders tags proxied requests with the gateway source and a request id.
func traceHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		req.Header.Set(HeaderGatewaySource, gatewaySource)
		if req.Header.Get(HeaderRequestID) == "" {
			rid, _ := c.Get("request_id").(string)
			if rid == "" {
				rid = strconv.FormatInt(time.Now().UnixMilli(), 10)
			}
			req.Header.Set(HeaderRequestID, rid)
		}
		return next(c)
	}
}

func mdaDisabled(c echo.Context) error {
	return apierror.New(http.StatusServiceUnavailable, "feature_disabled", map[string]interface{}{
		"message": "Medical Desk Advanced está desabilitado",
		"feature": "mda",
		"enabled": false,
	})
}
