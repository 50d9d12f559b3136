package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const healthCacheKey = "drai_health"

// HealthProxyConfig configures the Dr. AI health passthrough.
type HealthProxyConfig struct {
	Upstream string
	Header   string
	Token    string
	// CacheTTL keeps successful health checks for this long. Zero disables caching.
	CacheTTL time.Duration
	Client   *http.Client
	Logger   zerolog.Logger
}

type healthSnapshot struct {
	status      int
	contentType string
	body        []byte
}

// HealthProxy relays GET /api/dr-ai/health to the internal service.
type HealthProxy struct {
	cfg   HealthProxyConfig
	cache *cache.Cache
}

func NewHealthProxy(cfg HealthProxyConfig) *HealthProxy {
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	p := &HealthProxy{cfg: cfg}
	if cfg.CacheTTL > 0 {
		p.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return p
}

func (p *HealthProxy) RegisterRoutes(api *echo.Group) {
	api.GET("/dr-ai/health", p.Handle)
}

func (p *HealthProxy) Handle(c echo.Context) error {
	if p.cache != nil {
		if v, ok := p.cache.Get(healthCacheKey); ok {
			snap := v.(*healthSnapshot)
			c.Response().Header().Set("X-Cache", "HIT")
			return p.write(c, snap)
		}
	}

	snap, err := p.fetch(c.Request().Context())
	if err != nil {
		p.cfg.Logger.Warn().Err(err).Str("upstream", p.cfg.Upstream).Msg("dr-ai health check failed")
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"status":  "fail",
			"details": err.Error(),
			"ts":      time.Now().UTC().Format(time.RFC3339),
		})
	}

	if p.cache != nil && snap.status >= 200 && snap.status < 300 {
		p.cache.Set(healthCacheKey, snap, cache.DefaultExpiration)
	}
	return p.write(c, snap)
}

func (p *HealthProxy) fetch(ctx context.Context) (*healthSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Upstream, nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.Token != "" && p.cfg.Header != "" {
		req.Header.Set(p.cfg.Header, p.cfg.Token)
	}

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	return &healthSnapshot{
		status:      resp.StatusCode,
		contentType: resp.Header.Get(echo.HeaderContentType),
		body:        body,
	}, nil
}

func (p *HealthProxy) write(c echo.Context, snap *healthSnapshot) error {
	ct := snap.contentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Blob(snap.status, ct, snap.body)
}
