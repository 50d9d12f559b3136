package triage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the Dr. AI routes. guard protects every route; in
// production it is the X-Auth static token check.
func (h *Handler) RegisterRoutes(api *echo.Group, guard ...echo.MiddlewareFunc) {
	g := api.Group("", guard...)
	g.POST("/triage/analyze", h.Analyze)
	g.GET("/triage/:id", h.Get)
	g.POST("/triagem/validate", h.Validate)
	g.GET("/metrics/summary", h.Summary)
	g.GET("/specialties/slots", h.Slots)
}

func (h *Handler) Analyze(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	t, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Validate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	t, err := h.svc.Validate(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true,
		"triagem": map[string]interface{}{
			"id":         t.ID,
			"validation": t.Validation,
		},
	})
}

func (h *Handler) Summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Summary())
}

func (h *Handler) Slots(c echo.Context) error {
	slots, err := h.svc.Slots(c.QueryParam("specialty"), c.QueryParam("date"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Triagem não encontrada")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
}
