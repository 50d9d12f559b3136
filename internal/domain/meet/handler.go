// Package meet issues and checks consultation-room join tokens.
package meet

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/auth"
)

type Handler struct {
	signer *auth.MeetSigner
}

func NewHandler(signer *auth.MeetSigner) *Handler {
	return &Handler{signer: signer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consultations/:id")
	g.POST("/meet-token", h.Issue)
	g.POST("/meet-token/verify", h.Verify)
}

type issueRequest struct {
	Role            string `json:"role"`
	ScheduledFor    string `json:"scheduledFor"`
	DurationMinutes int    `json:"durationMinutes"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Issue signs a join token for the caller. Patients and doctors always get
// their own role; admin and service callers choose it in the body.
func (h *Handler) Issue(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}

	role, err := meetRole(auth.RoleFromContext(c.Request().Context()), req.Role)
	if err != nil {
		return err
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_scheduledFor")
	}

	cid := c.Param("id")
	tok, err := h.signer.Sign(cid, role, scheduled, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		return signError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":      true,
		"token":   tok.Token,
		"role":    tok.Role,
		"nbf":     tok.NotBefore.UTC().Format(time.RFC3339),
		"exp":     tok.ExpiresAt.UTC().Format(time.RFC3339),
		"joinUrl": "/consultorio/meet/" + url.PathEscape(cid) + "?t=" + url.QueryEscape(tok.Token),
	})
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing_token")
	}

	claims, err := h.signer.Verify(req.Token, c.Param("id"))
	switch {
	case errors.Is(err, auth.ErrMeetSecretMissing):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, auth.ErrMeetCIDMismatch):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid_meet_token").SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":   true,
		"cid":  claims.ConsultationID,
		"role": claims.Role,
		"exp":  claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

func meetRole(callerRole, requested string) (string, error) {
	switch callerRole {
	case auth.RolePatient:
		return auth.MeetRolePatient, nil
	case auth.RoleDoctor:
		return auth.MeetRoleDoctor, nil
	case auth.RoleAdmin, auth.RoleService:
		if requested != auth.MeetRoleDoctor && requested != auth.MeetRolePatient {
			return "", echo.NewHTTPError(http.StatusBadRequest, auth.ErrMeetRoleInvalid.Error())
		}
		return requested, nil
	default:
		return "", echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
}

func signError(err error) error {
	switch {
	case errors.Is(err, auth.ErrMeetSecretMissing):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, auth.ErrMeetRoleInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
