package meet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/auth"
)

func call(t *testing.T, fn echo.HandlerFunc, cid, body, role string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/consultations/"+cid+"/meet-token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), "u1", role))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(cid)
	return rec, fn(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func soon() string {
	return time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339)
}

func TestIssueAndVerify(t *testing.T) {
	h := NewHandler(auth.NewMeetSigner("meet-secret", 0, 0))

	rec, err := call(t, h.Issue, "CONS-1", `{"scheduledFor":"`+soon()+`","durationMinutes":20}`, auth.RoleDoctor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	var issued map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &issued)
	if issued["role"] != auth.MeetRoleDoctor {
		t.Errorf("expected doctor role from caller, got %v", issued["role"])
	}
	token, _ := issued["token"].(string)
	if token == "" {
		t.Fatal("expected a token")
	}
	if join, _ := issued["joinUrl"].(string); !strings.HasPrefix(join, "/consultorio/meet/CONS-1?t=") {
		t.Errorf("unexpected joinUrl %q", join)
	}

	rec, err = call(t, h.Verify, "CONS-1", `{"token":"`+token+`"}`, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	var verified map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &verified)
	if verified["cid"] != "CONS-1" || verified["role"] != auth.MeetRoleDoctor {
		t.Errorf("unexpected verify body %v", verified)
	}

	_, err = call(t, h.Verify, "CONS-2", `{"token":"`+token+`"}`, "")
	expectStatus(t, err, http.StatusForbidden)
}

func TestIssue_Roles(t *testing.T) {
	h := NewHandler(auth.NewMeetSigner("meet-secret", 0, 0))
	body := func(role string) string {
		return `{"role":"` + role + `","scheduledFor":"` + soon() + `"}`
	}

	rec, err := call(t, h.Issue, "1", body("doctor"), auth.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"role":"patient"`) {
		t.Errorf("patients must always get the patient role, got %s", rec.Body.String())
	}

	if _, err := call(t, h.Issue, "1", body("doctor"), auth.RoleService); err != nil {
		t.Errorf("service may pick the role: %v", err)
	}

	_, err = call(t, h.Issue, "1", body("nurse"), auth.RoleAdmin)
	expectStatus(t, err, http.StatusBadRequest)

	_, err = call(t, h.Issue, "1", body("patient"), "")
	expectStatus(t, err, http.StatusForbidden)
}

func TestIssue_Errors(t *testing.T) {
	h := NewHandler(auth.NewMeetSigner("meet-secret", 0, 0))
	_, err := call(t, h.Issue, "1", `{"scheduledFor":"tomorrow"}`, auth.RolePatient)
	expectStatus(t, err, http.StatusBadRequest)

	noSecret := NewHandler(auth.NewMeetSigner("", 0, 0))
	_, err = call(t, noSecret.Issue, "1", `{"scheduledFor":"`+soon()+`"}`, auth.RolePatient)
	expectStatus(t, err, http.StatusInternalServerError)
}

func TestVerify_Errors(t *testing.T) {
	h := NewHandler(auth.NewMeetSigner("meet-secret", 0, 0))

	_, err := call(t, h.Verify, "1", `{}`, "")
	expectStatus(t, err, http.StatusBadRequest)

	_, err = call(t, h.Verify, "1", `{"token":"not-a-jwt"}`, "")
	expectStatus(t, err, http.StatusUnauthorized)

	other := auth.NewMeetSigner("other-secret", 0, 0)
	tok, _ := other.Sign("1", auth.MeetRolePatient, time.Now(), 0)
	_, err = call(t, h.Verify, "1", `{"token":"`+tok.Token+`"}`, "")
	expectStatus(t, err, http.StatusUnauthorized)
}
