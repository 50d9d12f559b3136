// Package webhook delivers JSON messages to a single downstream URL with
// HMAC-SHA256 signing and retry.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// ErrQueueFull is returned by Enqueue when the delivery queue is saturated.
var ErrQueueFull = errors.New("webhook queue full")

// Message is one payload to deliver. ID is used as the X-Webhook-ID header
// and is generated when empty.
type Message struct {
	ID   string
	Type string
	Body interface{}
}

// Delivery records the outcome of a single HTTP attempt.
type Delivery struct {
	MessageID    string        `json:"message_id"`
	Type         string        `json:"type"`
	Attempt      int           `json:"attempt"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"` // "success" or "failed"
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Stats are cumulative forwarder counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// SignPayload computes the hex-encoded HMAC-SHA256 of payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex signature produced by SignPayload.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Forwarder.
type Option func(*Forwarder)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) { f.httpClient = c }
}

// WithRetryDelays sets the waits between attempts. The number of attempts is
// len(delays)+1.
func WithRetryDelays(d ...time.Duration) Option {
	return func(f *Forwarder) { f.retryDelays = d }
}

func WithSecret(secret string) Option {
	return func(f *Forwarder) { f.secret = secret }
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(f *Forwarder) {
		if key != "" && value != "" {
			f.headers.Set(key, value)
		}
	}
}

func WithQueueSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.queueSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// Forwarder posts messages to one URL. Send delivers synchronously with
// retries; Enqueue hands the message to the background worker started by Run.
type Forwarder struct {
	url         string
	secret      string
	headers     http.Header
	httpClient  *http.Client
	retryDelays []time.Duration
	queueSize   int
	queue       chan Message
	logger      zerolog.Logger
	now         func() time.Time

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	initOnce sync.Once
}

func NewForwarder(url string, opts ...Option) *Forwarder {
	f := &Forwarder{
		url:     url,
		headers: make(http.Header),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		queueSize:   256,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Forwarder) init() {
	f.initOnce.Do(func() {
		f.queue = make(chan Message, f.queueSize)
	})
}

// URL returns the destination URL.
func (f *Forwarder) URL() string { return f.url }

// Stats returns the cumulative counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}

// Enqueue schedules msg for asynchronous delivery. It never blocks.
func (f *Forwarder) Enqueue(msg Message) error {
	f.init()
	select {
	case f.queue <- msg:
		return nil
	default:
		f.dropped.Add(1)
		f.logger.Warn().Str("type", msg.Type).Str("url", f.url).Msg("webhook queue full, message dropped")
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is cancelled. Messages still queued at
// cancellation are abandoned.
func (f *Forwarder) Run(ctx context.Context) error {
	f.init()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-f.queue:
			f.Send(ctx, msg)
		}
	}
}

// Send delivers msg, retrying on network errors and non-2xx responses. It
// returns every attempt made.
func (f *Forwarder) Send(ctx context.Context, msg Message) []*Delivery {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	payload, err := json.Marshal(msg.Body)
	if err != nil {
		f.failed.Add(1)
		return []*Delivery{{
			MessageID: msg.ID,
			Type:      msg.Type,
			Attempt:   1,
			Status:    "failed",
			Error:     fmt.Sprintf("marshal payload: %v", err),
			CreatedAt: f.now(),
		}}
	}

	var attempts []*Delivery
	for i := 0; ; i++ {
		d := f.attempt(ctx, msg, payload, i+1)
		attempts = append(attempts, d)
		if d.Status == "success" {
			f.delivered.Add(1)
			return attempts
		}
		if i >= len(f.retryDelays) {
			break
		}
		f.logger.Debug().
			Str("message_id", msg.ID).
			Int("attempt", d.Attempt).
			Str("error", d.Error).
			Dur("retry_in", f.retryDelays[i]).
			Msg("webhook delivery failed, retrying")

		t := time.NewTimer(f.retryDelays[i])
		select {
		case <-ctx.Done():
			t.Stop()
			f.failed.Add(1)
			return attempts
		case <-t.C:
		}
	}

	f.failed.Add(1)
	last := attempts[len(attempts)-1]
	f.logger.Warn().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Str("url", f.url).
		Int("attempts", len(attempts)).
		Str("error", last.Error).
		Msg("webhook delivery failed")
	return attempts
}

func (f *Forwarder) attempt(ctx context.Context, msg Message, payload []byte, n int) *Delivery {
	now := f.now()
	d := &Delivery{
		MessageID: msg.ID,
		Type:      msg.Type,
		Attempt:   n,
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		d.Status = "failed"
		d.Error = err.Error()
		return d
	}
	for k, vs := range f.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderID, msg.ID)
	req.Header.Set(HeaderTimestamp, now.UTC().Format(time.RFC3339))
	if f.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+SignPayload(payload, f.secret))
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	d.Duration = time.Since(start)
	if err != nil {
		d.Status = "failed"
		d.Error = err.Error()
		return d
	}
	defer resp.Body.Close()

	d.StatusCode = resp.StatusCode

	// Read at most 1KB of response body.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	d.ResponseBody = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = "success"
	} else {
		d.Status = "failed"
		d.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return d
}
