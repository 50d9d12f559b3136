package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionHandler exposes session token issuance and revocation for sub-apps.
type SessionHandler struct {
	issuer      *Issuer
	revocations *Revocations
}

func NewSessionHandler(issuer *Issuer, revocations *Revocations) *SessionHandler {
	if revocations == nil {
		revocations = NewRevocations()
	}
	return &SessionHandler{issuer: issuer, revocations: revocations}
}

// RegisterRoutes mounts the session endpoints. Token issuance is restricted
// to service callers (the gateway and back-office jobs); revocation
// management to admins.
func (h *SessionHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/token", h.IssueToken, RequireRole(RoleService))
	api.GET("/auth/me", h.Me)
	api.POST("/auth/logout", h.Logout)

	admin := api.Group("/auth", RequireRole(RoleAdmin))
	admin.POST("/revoke", h.Revoke)
	admin.GET("/revocations", h.ListRevocations)
}

type issueTokenRequest struct {
	Subject    string `json:"sub"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type revokeRequest struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *SessionHandler) IssueToken(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	if req.Subject == "" || req.Role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sub and role are required")
	}
	token, exp, err := h.issuer.Issue(req.Subject, req.Role, req.Email, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":         true,
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (h *SessionHandler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":    true,
		"sub":   UserIDFromContext(ctx),
		"role":  RoleFromContext(ctx),
		"email": EmailFromContext(ctx),
	})
}

// Logout revokes the bearer token used for this request.
func (h *SessionHandler) Logout(c echo.Context) error {
	claims := ClaimsFromContext(c)
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no_session_token")
	}
	h.revocations.Revoke(claims.ID, claims.Subject, claims.ExpiresAt.Time)
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *SessionHandler) Revoke(c echo.Context) error {
	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_body")
	}
	if req.JTI == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "jti is required")
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = time.Now().Add(h.issuer.ttl)
	}
	h.revocations.Revoke(req.JTI, req.UserID, req.ExpiresAt)
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) ListRevocations(c echo.Context) error {
	entries := h.revocations.Entries()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":      true,
		"count":   len(entries),
		"entries": entries,
	})
}
