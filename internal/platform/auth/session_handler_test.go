package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newSessionEcho(t *testing.T) (*echo.Echo, *Issuer, *Revocations) {
	t.Helper()
	iss := NewIssuer(testSigningKey, "telemed", time.Hour)
	rev := NewRevocations()

	e := echo.New()
	e.Use(JWTMiddleware(JWTConfig{
		SigningKey:    testSigningKey,
		InternalToken: "svc-token",
		Revocations:   rev,
	}))
	NewSessionHandler(iss, rev).RegisterRoutes(e.Group("/api"))
	return e, iss, rev
}

func call(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestSession_IssueToken(t *testing.T) {
	e, iss, _ := newSessionEcho(t)
	body := `{"sub":"doc-7","role":"medico","email":"d@example.com","ttl_seconds":600}`

	rec := call(e, http.MethodPost, "/api/auth/token", body, map[string]string{"X-Internal-Token": "svc-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := ParseToken(testSigningKey, "telemed", resp.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "doc-7" || claims.Role != RoleDoctor || claims.ID == "" {
		t.Errorf("unexpected claims %+v", claims)
	}

	patient, _, _ := iss.Issue("p-1", RolePatient, "", 0)
	rec = call(e, http.MethodPost, "/api/auth/token", body, bearer(patient))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a patient caller, got %d", rec.Code)
	}

	rec = call(e, http.MethodPost, "/api/auth/token", `{"role":"medico"}`, map[string]string{"X-Internal-Token": "svc-token"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without sub, got %d", rec.Code)
	}
}

func TestSession_Me(t *testing.T) {
	e, iss, _ := newSessionEcho(t)
	tok, _, _ := iss.Issue("p-1", RolePatient, "p@example.com", 0)

	rec := call(e, http.MethodGet, "/api/auth/me", "", bearer(tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var me map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &me)
	if me["sub"] != "p-1" || me["role"] != RolePatient || me["email"] != "p@example.com" {
		t.Errorf("unexpected identity %v", me)
	}
}

func TestSession_Logout(t *testing.T) {
	e, iss, rev := newSessionEcho(t)
	tok, _, _ := iss.Issue("p-1", RolePatient, "", 0)

	rec := call(e, http.MethodPost, "/api/auth/logout", "", bearer(tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	if len(rev.Entries()) != 1 {
		t.Fatalf("expected one revocation, got %d", len(rev.Entries()))
	}

	rec = call(e, http.MethodGet, "/api/auth/me", "", bearer(tok))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", rec.Code)
	}

	rec = call(e, http.MethodPost, "/api/auth/logout", "", map[string]string{"X-Internal-Token": "svc-token"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a bearer token, got %d", rec.Code)
	}
}

func TestSession_AdminRevoke(t *testing.T) {
	e, iss, rev := newSessionEcho(t)
	admin, _, _ := iss.Issue("root", RoleAdmin, "", 0)
	patient, _, _ := iss.Issue("p-1", RolePatient, "", 0)
	claims, _ := ParseToken(testSigningKey, "telemed", patient)

	rec := call(e, http.MethodPost, "/api/auth/revoke", `{"jti":"`+claims.ID+`","user_id":"p-1"}`, bearer(patient))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", rec.Code)
	}

	rec = call(e, http.MethodPost, "/api/auth/revoke", `{"jti":"`+claims.ID+`","user_id":"p-1"}`, bearer(admin))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if !rev.IsRevoked(claims.ID) {
		t.Error("expected jti to be revoked")
	}

	rec = call(e, http.MethodGet, "/api/auth/revocations", "", bearer(admin))
	var list struct {
		Count   int              `json:"count"`
		Entries []RevocationInfo `json:"entries"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 || list.Entries[0].UserID != "p-1" {
		t.Errorf("unexpected revocation list %+v", list)
	}

	rec = call(e, http.MethodPost, "/api/auth/revoke", `{}`, bearer(admin))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without jti, got %d", rec.Code)
	}
}

func TestRevocations_IgnoresExpired(t *testing.T) {
	rev := NewRevocations()
	rev.Revoke("old", "", time.Now().Add(-time.Minute))
	rev.Revoke("", "", time.Now().Add(time.Minute))
	if len(rev.Entries()) != 0 {
		t.Errorf("expected no entries, got %v", rev.Entries())
	}
	if rev.IsRevoked("old") || rev.IsRevoked("") {
		t.Error("expired or empty ids must not be revoked")
	}
}
