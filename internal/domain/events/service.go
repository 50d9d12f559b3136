package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/webhook"
	"github.com/telemed/telemed/internal/platform/websocket"
)

// Forwarder ships events downstream. *webhook.Forwarder implements it.
type Forwarder interface {
	Enqueue(msg webhook.Message) error
}

// Publisher pushes events to live subscribers.
type Publisher interface {
	Publish(topic, typ string, data interface{})
}

type Service struct {
	ring      *Ring
	repo      Repository
	dedup     *cache.Cache
	dedupTTL  time.Duration
	forwarder Forwarder
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithForwarder enables downstream forwarding of every tracked event.
func WithForwarder(f Forwarder) Option {
	return func(s *Service) { s.forwarder = f }
}

// WithPublisher streams tracked events on the websocket events topic.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRepository sets where events are stored for the funnel reports.
// Defaults to an in-memory repository.
func WithRepository(r Repository) Option {
	return func(s *Service) { s.repo = r }
}

// WithDedupWindow drops a repeat of the same event name in the same session
// within d. Zero disables it.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) { s.dedupTTL = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(ring *Ring, opts ...Option) *Service {
	if ring == nil {
		ring = NewRing(DefaultCapacity)
	}
	s := &Service{
		ring:   ring,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.repo == nil {
		s.repo = NewMemoryRepo(DefaultMemoryLimit)
	}
	if s.dedupTTL > 0 {
		s.dedup = cache.New(s.dedupTTL, time.Minute)
	}
	return s
}

// Track stores an event and forwards it when a forwarder is configured.
// Forwarding failures are logged and never fail the call. A repeat inside
// the dedup window returns ErrDropped.
func (s *Service) Track(ctx context.Context, req TrackRequest) (*Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &invalidError{msg: "name é obrigatório"}
	}
	props := req.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if s.dedup != nil && sessionID != "" {
		if err := s.dedup.Add(sessionID+"|"+name, struct{}{}, cache.DefaultExpiration); err != nil {
			return nil, ErrDropped
		}
	}

	e := Event{
		ID:         "evt_" + uuid.New().String(),
		Name:       name,
		UserID:     req.UserID,
		SessionID:  sessionID,
		UTM:        clipUTM(req.UTM),
		Path:       clip(req.Path, 500),
		Properties: props,
		Timestamp:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, &e); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	s.ring.Add(e)
	if s.publisher != nil {
		s.publisher.Publish(websocket.TopicEvents, "event.tracked", e)
	}

	if s.forwarder != nil {
		if err := s.forwarder.Enqueue(webhook.Message{ID: e.ID, Type: e.Name, Body: e}); err != nil {
			s.logger.Warn().Err(err).Str("event_id", e.ID).Str("event", e.Name).Msg("event forward failed")
		}
	}

	s.logger.Debug().Str("event_id", e.ID).Str("event", e.Name).Msg("event tracked")
	return &e, nil
}

// Emit tracks a domain event raised by another service.
func (s *Service) Emit(ctx context.Context, name string, properties map[string]interface{}) {
	userID, _ := properties["user_id"].(string)
	if _, err := s.Track(ctx, TrackRequest{Name: name, UserID: userID, Properties: properties}); err != nil && !errors.Is(err, ErrDropped) {
		s.logger.Error().Err(err).Str("event", name).Msg("emit event")
	}
}

// List returns stored events newest first along with the total count.
func (s *Service) List(limit, offset int) ([]Event, int) {
	return s.ring.Newest(offset, limit), s.ring.Len()
}

// Funnel counts the funnel steps per group between two dates, inclusive.
// From defaults to seven days before today and To to today (UTC).
func (s *Service) Funnel(ctx context.Context, req FunnelRequest) (*FunnelReport, error) {
	groupBy := req.GroupBy
	if groupBy == "" {
		groupBy = GroupNone
	}
	if !ValidGroupBy(groupBy) {
		return nil, &invalidError{msg: "invalid_group_by"}
	}
	w, err := s.dateWindow(req.From, req.To, defaultFunnelLag)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountFunnel(ctx, w, groupBy, FunnelEvents)
	if err != nil {
		return nil, fmt.Errorf("count funnel: %w", err)
	}
	report := &FunnelReport{
		From:    w.From.Format(dayLayout),
		To:      w.To.AddDate(0, 0, -1).Format(dayLayout),
		GroupBy: groupBy,
		Events:  FunnelEvents,
		Rows:    buildRows(counts),
	}
	if req.IncludeRevenue {
		report.Revenue, err = s.repo.SumRevenue(ctx, w, groupBy)
		if err != nil {
			return nil, fmt.Errorf("sum revenue: %w", err)
		}
		if report.Revenue == nil {
			report.Revenue = []RevenueRow{}
		}
	}
	return report, nil
}

// Daily counts the funnel steps per day, newest first. From defaults to
// thirty days before today.
func (s *Service) Daily(ctx context.Context, from, to string) (*DailyReport, error) {
	w, err := s.dateWindow(from, to, defaultDailyLag)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountDaily(ctx, w, FunnelEvents)
	if err != nil {
		return nil, fmt.Errorf("count daily funnel: %w", err)
	}
	return &DailyReport{
		From: w.From.Format(dayLayout),
		To:   w.To.AddDate(0, 0, -1).Format(dayLayout),
		Days: buildDays(counts),
	}, nil
}

// Purge deletes stored events older than cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.repo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return n, nil
}

// dateWindow turns inclusive YYYY-MM-DD bounds into a half-open UTC window.
// A missing from starts lag days before the end day.
func (s *Service) dateWindow(from, to string, lag int) (Window, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	end := today
	if to != "" {
		d, err := time.Parse(dayLayout, to)
		if err != nil {
			return Window{}, &invalidError{msg: "invalid_to"}
		}
		end = d
	}
	start := today.AddDate(0, 0, -lag)
	if from != "" {
		d, err := time.Parse(dayLayout, from)
		if err != nil {
			return Window{}, &invalidError{msg: "invalid_from"}
		}
		start = d
	}
	if start.After(end) {
		return Window{}, &invalidError{msg: "from_after_to"}
	}
	return Window{From: start, To: end.AddDate(0, 0, 1)}, nil
}

func clip(v string, n int) string {
	v = strings.TrimSpace(v)
	if len(v) > n {
		return v[:n]
	}
	return v
}

func clipUTM(u UTM) UTM {
	return UTM{
		Source:   clip(u.Source, 120),
		Medium:   clip(u.Medium, 120),
		Campaign: clip(u.Campaign, 200),
		Content:  clip(u.Content, 200),
		Term:     clip(u.Term, 200),
	}
}
