package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRoleKey  contextKey = "user_role"
	UserEmailKey contextKey = "user_email"

	claimsContextKey = "session_claims"
)

const (
	RoleService = "service"
	RoleAdmin   = "admin"
	RolePatient = "paciente"
	RoleDoctor  = "medico"
)

// Claims is the session token payload shared by the gateway and sub-apps.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

type JWTConfig struct {
	// SigningKey verifies HS256 session tokens.
	SigningKey []byte
	Issuer     string
	// InternalToken, when non-empty, lets service callers authenticate with
	// InternalHeader instead of a bearer token.
	InternalToken  string
	InternalHeader string
	// AllowAnonymous injects a test patient when no Authorization header is
	// present. Never enabled in production.
	AllowAnonymous bool
	// Revocations, when set, rejects tokens whose jti was revoked.
	Revocations *Revocations
	Skipper     func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	if cfg.InternalHeader == "" {
		cfg.InternalHeader = "X-Internal-Token"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			if cfg.InternalToken != "" {
				if tok := c.Request().Header.Get(cfg.InternalHeader); tok != "" {
					if !constantTimeEqual(tok, cfg.InternalToken) {
						return echo.NewHTTPError(http.StatusUnauthorized, "invalid_internal_token")
					}
					setIdentity(c, RoleService, RoleService, "")
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			// Browsers cannot set headers on a WebSocket handshake.
			if authHeader == "" && c.IsWebSocket() {
				if tok := c.QueryParam("access_token"); tok != "" {
					authHeader = "Bearer " + tok
				}
			}
			if authHeader == "" {
				if cfg.AllowAnonymous {
					setIdentity(c, "test-patient", RolePatient, "")
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing_token")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing_token")
			}

			claims, err := ParseToken(cfg.SigningKey, cfg.Issuer, parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid_token")
			}
			if cfg.Revocations != nil && cfg.Revocations.IsRevoked(claims.ID) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token_revoked")
			}

			c.Set(claimsContextKey, claims)
			setIdentity(c, claims.Subject, claims.Role, claims.Email)
			return next(c)
		}
	}
}

// ParseToken verifies an HS256 session token and returns its claims.
func ParseToken(key []byte, issuer, tokenStr string) (*Claims, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// Issuer mints session tokens for sub-apps (patient and doctor portals,
// consultation rooms).
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(key []byte, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a session token for the subject. A non-positive ttl uses the
// issuer default.
func (i *Issuer) Issue(subject, role, email string, ttl time.Duration) (string, time.Time, error) {
	if len(i.key) == 0 {
		return "", time.Time{}, fmt.Errorf("signing key not configured")
	}
	if subject == "" || role == "" {
		return "", time.Time{}, fmt.Errorf("subject and role are required")
	}
	if ttl <= 0 {
		ttl = i.ttl
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:  role,
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// StaticToken guards a route group with a shared secret header, the way the
// Dr. AI microservice is called by the front end (X-Auth).
func StaticToken(header, expected string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := c.Request().Header.Get(header)
			if tok == "" || expected == "" || !constantTimeEqual(tok, expected) {
				return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("Unauthorized - %s header required", header))
			}
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, userID, role, email string) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	ctx = context.WithValue(ctx, UserEmailKey, email)
	c.SetRequest(c.Request().WithContext(ctx))
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ClaimsFromContext returns the verified bearer token claims, or nil when
// the request was authenticated another way.
func ClaimsFromContext(c echo.Context) *Claims {
	claims, _ := c.Get(claimsContextKey).(*Claims)
	return claims
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

// WithIdentity returns a context carrying the given identity. Used by tests
// and by background jobs acting on behalf of the service.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRoleKey, role)
}
