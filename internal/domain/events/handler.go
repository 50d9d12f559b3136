package events

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the event routes behind guard.
func (h *Handler) RegisterRoutes(api *echo.Group, guard ...echo.MiddlewareFunc) {
	g := api.Group("/events", guard...)
	g.POST("", h.Track)
	g.GET("", h.List)
	g.GET("/funnel", h.Funnel)
	g.GET("/funnel/daily", h.Daily)
}

func (h *Handler) Track(c echo.Context) error {
	var req TrackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	e, err := h.svc.Track(c.Request().Context(), req)
	if errors.Is(err, ErrDropped) {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":      true,
			"dropped": true,
		})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true,
		"id": e.ID,
	})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total := h.svc.List(pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) Funnel(c echo.Context) error {
	report, err := h.svc.Funnel(c.Request().Context(), FunnelRequest{
		From:           c.QueryParam("from"),
		To:             c.QueryParam("to"),
		GroupBy:        c.QueryParam("groupBy"),
		IncludeRevenue: isTrue(c.QueryParam("includeRevenue")),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Daily(c echo.Context) error {
	report, err := h.svc.Daily(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func httpError(err error) error {
	if errors.Is(err, ErrInvalid) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}

func isTrue(v string) bool {
	return v == "1" || v == "true"
}
