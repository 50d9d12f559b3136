package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/websocket"
	"github.com/telemed/telemed/pkg/ids"
)

const (
	todayLead    = 45 * time.Minute
	tomorrowHour = 9
)

// Publisher pushes live updates to connected clients. The websocket hub
// implements it.
type Publisher interface {
	Publish(topic, typ string, data interface{})
}

type Service struct {
	repo      Repository
	notifier  Notifier
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location
	ttl       time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier enables the internal appointment call on accept.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher sends bid changes to the owning patient's live topic.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone used for next-day appointments.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithTTL sets how long an open bid lives before the sweeper expires it.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: zerolog.Nop(),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateBid opens a new pending bid.
func (s *Service) CreateBid(ctx context.Context, req CreateBidRequest) (*Bid, error) {
	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.Specialty) == "" || req.AmountCents == 0 {
		return nil, invalid("missing_fields")
	}
	if req.AmountCents < 0 {
		return nil, invalid("invalid_amount")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeImmediate
	}
	if mode != ModeImmediate && mode != ModeScheduled {
		return nil, invalid("invalid_mode")
	}

	now := s.now().UTC()
	b := &Bid{
		ID:          ids.Bid(),
		PatientID:   req.PatientID,
		Specialty:   req.Specialty,
		AmountCents: req.AmountCents,
		Mode:        mode,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		b.ExpiresAt = &exp
	}

	if err := s.repo.CreateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("store bid: %w", err)
	}
	s.logger.Info().
		Str("bid_id", b.ID).
		Str("patient_id", b.PatientID).
		Int64("amount_cents", b.AmountCents).
		Str("mode", b.Mode).
		Msg("bid created")
	s.publish("bid.created", b.PatientID, b)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Bid, error) {
	return s.repo.GetBid(ctx, id)
}

// List returns a patient's bids, newest first. An empty patientID lists all.
func (s *Service) List(ctx context.Context, patientID string, limit, offset int) ([]*Bid, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Search computes the doctors offered at the bid's current amount and
// records the resulting status.
func (s *Service) Search(ctx context.Context, id string) (*SearchResult, error) {
	var doctors []Doctor
	b, err := s.repo.UpdateBid(ctx, id, func(b *Bid) error {
		doctors = Offers(b.AmountCents)
		b.Status = SearchStatus(doctors)
		b.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("bid_id", b.ID).Int("offers", len(doctors)).Str("status", b.Status).Msg("bid searched")
	res := &SearchResult{Doctors: doctors, Status: b.Status}
	s.publish("bid.searched", b.PatientID, map[string]interface{}{"bid": b, "doctors": doctors})
	return res, nil
}

// Increase raises the bid amount and resets it to pending. NewValue must
// exceed the current amount; otherwise IncreaseAmount (default
// DefaultIncrement) is added.
func (s *Service) Increase(ctx context.Context, id string, req IncreaseRequest) (*Bid, error) {
	b, err := s.repo.UpdateBid(ctx, id, func(b *Bid) error {
		switch {
		case req.NewValue != nil:
			if *req.NewValue <= b.AmountCents {
				return invalid("invalid_value")
			}
			b.AmountCents = *req.NewValue
		case req.IncreaseAmount != nil:
			if *req.IncreaseAmount <= 0 {
				return invalid("invalid_value")
			}
			b.AmountCents += *req.IncreaseAmount
		default:
			b.AmountCents += DefaultIncrement
		}
		b.Status = StatusPending
		b.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish("bid.increased", b.PatientID, b)
	return b, nil
}

// Accept books the chosen doctor. The doctor must be offered at the bid's
// amount at the moment of acceptance.
func (s *Service) Accept(ctx context.Context, id string, req AcceptRequest) (*AcceptResult, error) {
	if strings.TrimSpace(req.DoctorID) == "" {
		return nil, invalid("missing_doctor_id")
	}

	var doc Doctor
	b, appt, err := s.repo.Accept(ctx, id, func(b *Bid) (*Appointment, error) {
		var ok bool
		doc, ok = FindOffer(b.AmountCents, req.DoctorID)
		if !ok {
			return nil, conflict("doctor_not_offered")
		}
		now := s.now()
		appt := &Appointment{
			ID:             ids.Appointment(),
			BidID:          b.ID,
			PatientID:      b.PatientID,
			PhysicianID:    doc.ID,
			ConsultationID: ids.Consultation(doc.ID),
			IsImmediate:    doc.Availability == AvailableNow,
			ScheduledAt:    s.scheduleFor(doc.Availability, now).UTC(),
			CreatedAt:      now.UTC(),
		}
		b.Status = StatusAccepted
		b.DoctorID = doc.ID
		b.ConsultationID = appt.ConsultationID
		b.UpdatedAt = now.UTC()
		return appt, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("bid_id", b.ID).
		Str("doctor_id", doc.ID).
		Str("consultation_id", appt.ConsultationID).
		Bool("immediate", appt.IsImmediate).
		Msg("bid accepted")

	res := &AcceptResult{Bid: b, Appointment: appt}
	s.publish("bid.accepted", b.PatientID, res)
	if s.notifier != nil {
		if err := s.notifier.NotifyAccepted(ctx, b, appt); err != nil {
			s.logger.Error().Err(err).Str("bid_id", b.ID).Msg("appointment notification failed")
			return res, err
		}
	}
	return res, nil
}

func (s *Service) publish(typ, patientID string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(websocket.PatientTopic(patientID), typ, data)
	}
}

// Appointment returns the appointment booked for a bid.
func (s *Service) Appointment(ctx context.Context, bidID string) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, bidID)
}

// Expire marks open bids older than the configured TTL as expired. It is a
// no-op when no TTL is set.
func (s *Service) Expire(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	now := s.now().UTC()
	n, err := s.repo.ExpireCreatedBefore(ctx, now.Add(-s.ttl), now)
	if err != nil {
		return 0, fmt.Errorf("expire bids: %w", err)
	}
	return n, nil
}

func (s *Service) scheduleFor(availability string, now time.Time) time.Time {
	switch availability {
	case AvailableNow:
		return now
	case AvailableToday:
		return now.Add(todayLead)
	default:
		local := now.In(s.loc)
		return time.Date(local.Year(), local.Month(), local.Day()+1, tomorrowHour, 0, 0, 0, s.loc)
	}
}
