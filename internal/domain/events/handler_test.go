package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestHandler_Track(t *testing.T) {
	h := NewHandler(NewService(NewRing(10)))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"name":"cta_click","user_id":"u9","properties":{"btn":"agendar"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Track(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["ok"] != true {
		t.Errorf("expected ok, got %v", got)
	}
	if id, _ := got["id"].(string); !strings.HasPrefix(id, "evt_") {
		t.Errorf("unexpected id %v", got["id"])
	}
}

func TestHandler_Track_MissingName(t *testing.T) {
	h := NewHandler(NewService(NewRing(10)))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"properties":{}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Track(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest || httpErr.Message != "name é obrigatório" {
		t.Errorf("unexpected error %d %v", httpErr.Code, httpErr.Message)
	}
}

func TestHandler_List(t *testing.T) {
	svc := NewService(NewRing(10))
	h := NewHandler(svc)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	for _, name := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"name":"`+name+`"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=2", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got struct {
		OK      bool    `json:"ok"`
		Data    []Event `json:"data"`
		Total   int     `json:"total"`
		HasMore bool    `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || !got.HasMore || len(got.Data) != 2 {
		t.Errorf("unexpected page: %+v", got)
	}
	if got.Data[0].Name != "c" || got.Data[1].Name != "b" {
		t.Errorf("expected newest first, got %s, %s", got.Data[0].Name, got.Data[1].Name)
	}
}

func TestHandler_RegisterRoutes_Guard(t *testing.T) {
	h := NewHandler(NewService(NewRing(10)))
	e := echo.New()
	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
	}
	h.RegisterRoutes(e.Group("/api"), deny)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Track_Dropped(t *testing.T) {
	h := NewHandler(NewService(NewRing(10), WithDedupWindow(time.Minute)))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	var last map[string]interface{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"name":"landing_view","session_id":"s1"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		last = nil
		json.Unmarshal(rec.Body.Bytes(), &last)
	}
	if last["ok"] != true || last["dropped"] != true {
		t.Errorf("expected dropped response, got %v", last)
	}
}

func TestHandler_Funnel(t *testing.T) {
	svc := NewService(NewRing(10), WithClock(func() time.Time { return fixedNow }))
	h := NewHandler(svc)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	svc.Track(context.Background(), TrackRequest{Name: LandingView, SessionID: "s1", UTM: UTM{Source: "google"}})
	svc.Track(context.Background(), TrackRequest{Name: BookingConfirmed, SessionID: "s1", UTM: UTM{Source: "google"},
		Properties: map[string]interface{}{"agreedPrice": 120.0}})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/funnel?from=2025-03-01&to=2025-03-10&groupBy=utm_source&includeRevenue=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got FunnelReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GroupBy != GroupSource || len(got.Rows) != 1 || got.Rows[0].Group != "google" {
		t.Fatalf("unexpected report %+v", got)
	}
	if got.Rows[0].ConversionRates.LandingToBooking != "100.00" {
		t.Errorf("unexpected rates %+v", got.Rows[0].ConversionRates)
	}
	if len(got.Revenue) != 1 || got.Revenue[0].GMV != 120 {
		t.Errorf("unexpected revenue %+v", got.Revenue)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/funnel/daily", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"day":"2025-03-10"`) {
		t.Errorf("unexpected daily response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Funnel_InvalidGroupBy(t *testing.T) {
	h := NewHandler(NewService(NewRing(10)))
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/events/funnel?groupBy=referrer", nil), httptest.NewRecorder())

	err := h.Funnel(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest || httpErr.Message != "invalid_group_by" {
		t.Errorf("unexpected error %d %v", httpErr.Code, httpErr.Message)
	}
}
