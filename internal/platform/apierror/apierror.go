// Package apierror renders every failed request as {"ok": false, "error": ...}.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// New returns an echo.HTTPError whose body carries extra fields next to
// "error", for example {"error":"feature_disabled","feature":"mda"}.
func New(code int, msg string, fields map[string]interface{}) *echo.HTTPError {
	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["error"] = msg
	return echo.NewHTTPError(code, body)
}

// Handler returns an echo.HTTPErrorHandler. Unknown errors become a 500
// with a generic message and are logged with the request id.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := render(err)
		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", code).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func render(err error) (int, map[string]interface{}) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": "Internal server error",
		}
	}
	if he.Internal != nil {
		var inner *echo.HTTPError
		if errors.As(he.Internal, &inner) {
			he = inner
		}
	}

	body := map[string]interface{}{"ok": false}
	switch m := he.Message.(type) {
	case map[string]interface{}:
		for k, v := range m {
			body[k] = v
		}
	case string:
		body["error"] = m
	case error:
		body["error"] = m.Error()
	default:
		body["error"] = fmt.Sprint(m)
	}

	switch he.Code {
	case http.StatusNotFound:
		if he.Message == echo.ErrNotFound.Message {
			body["error"] = "Endpoint not found"
		}
	case http.StatusInternalServerError:
		if _, ok := body["error"]; !ok {
			body["error"] = "Internal server error"
		}
	}
	return he.Code, body
}
