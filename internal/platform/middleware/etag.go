package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ETagConfig configures conditional GET support for read endpoints such as
// bid listings, the metrics summary and specialty slots.
type ETagConfig struct {
	// Vary lists request headers the response depends on.
	Vary []string
	// ExcludePrefixes skips paths whose responses must never be buffered.
	ExcludePrefixes []string
}

// DefaultETagConfig varies on Authorization since most responses are
// scoped to the caller.
func DefaultETagConfig() ETagConfig {
	return ETagConfig{
		Vary:            []string{"Authorization", drAIAuthHeader},
		ExcludePrefixes: []string{"/api/mda", "/api/dr-ai/", "/api/ws"},
	}
}

const drAIAuthHeader = "X-Auth"

// bufferedWriter holds the response so its ETag can be computed before
// anything reaches the client.
type bufferedWriter struct {
	writer http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedWriter) WriteHeader(code int) { w.status = code }

func (w *bufferedWriter) flush() error {
	w.writer.WriteHeader(w.status)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.buf.Bytes())
	return err
}

// ETag sets a weak ETag on successful GET and HEAD responses and answers
// 304 Not Modified when If-None-Match matches.
func ETag(cfg ETagConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			for _, p := range cfg.ExcludePrefixes {
				if strings.HasPrefix(req.URL.Path, p) {
					return next(c)
				}
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedWriter{writer: orig, status: http.StatusOK}
			res.Writer = buf

			err := next(c)
			res.Writer = orig
			if err != nil {
				if res.Committed {
					return buf.flush()
				}
				return err
			}

			if buf.status < 200 || buf.status >= 300 {
				return buf.flush()
			}

			tag := computeETag(buf.buf.Bytes())
			h := res.Header()
			h.Set("ETag", tag)
			h.Set("Cache-Control", "private, no-cache")
			if len(cfg.Vary) > 0 {
				h.Set("Vary", strings.Join(cfg.Vary, ", "))
			}

			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, tag) {
				h.Del(echo.HeaderContentLength)
				res.Status = http.StatusNotModified
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flush()
		}
	}
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:16])
}

// etagMatch compares an If-None-Match value against tag using weak
// comparison. Lists and "*" are supported.
func etagMatch(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(tag, "W/") {
			return true
		}
	}
	return false
}
