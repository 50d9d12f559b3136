package auction

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/apierror"
	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auction routes. Callers must be authenticated;
// patients only see their own bids.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auction")
	g.POST("/bids", h.CreateBid, auth.RequireRole(auth.RolePatient))
	g.GET("/bids", h.ListBids)
	g.GET("/bids/:id", h.GetBid)
	g.GET("/bids/:id/appointment", h.GetAppointment)
	g.POST("/bids/:id/search", h.Search)
	g.PUT("/bids/:id/increase", h.Increase, auth.RequireRole(auth.RolePatient))
	g.POST("/bids/:id/accept", h.Accept, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) CreateBid(c echo.Context) error {
	var req CreateBidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) == auth.RolePatient {
		uid := auth.UserIDFromContext(ctx)
		if req.PatientID == "" {
			req.PatientID = uid
		} else if req.PatientID != uid {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}

	b, err := h.svc.CreateBid(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBids(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := c.QueryParam("patientId")
	if auth.RoleFromContext(ctx) == auth.RolePatient {
		patientID = auth.UserIDFromContext(ctx)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Bid{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetBid(c echo.Context) error {
	b, err := h.ownedBid(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	b, err := h.ownedBid(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Appointment(c.Request().Context(), b.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Search(c echo.Context) error {
	b, err := h.ownedBid(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Search(c.Request().Context(), b.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Increase(c echo.Context) error {
	var req IncreaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_value")
	}
	b, err := h.ownedBid(c)
	if err != nil {
		return err
	}
	b, err = h.svc.Increase(c.Request().Context(), b.ID, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":          b.ID,
		"amountCents": b.AmountCents,
		"status":      b.Status,
	})
}

func (h *Handler) Accept(c echo.Context) error {
	var req AcceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	b, err := h.ownedBid(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Accept(c.Request().Context(), b.ID, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":          true,
		"bid":         res.Bid,
		"appointment": res.Appointment,
	})
}

// ownedBid loads the bid named in the path. Patients get 404 for bids that
// belong to someone else.
func (h *Handler) ownedBid(c echo.Context) (*Bid, error) {
	ctx := c.Request().Context()
	b, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return nil, toHTTPError(err)
	}
	if auth.RoleFromContext(ctx) == auth.RolePatient && b.PatientID != auth.UserIDFromContext(ctx) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return b, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, Code(err))
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, Code(err))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	case errors.Is(err, ErrNotify):
		return apierror.New(http.StatusBadGateway, "internal_call_failed", map[string]interface{}{
			"detail": err.Error(),
		}).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
}
