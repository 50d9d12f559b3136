package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/telemed/telemed/pkg/ids"
)

// Emitter receives domain events. The events service implements it.
type Emitter interface {
	Emit(ctx context.Context, name string, properties map[string]interface{})
}

type Service struct {
	repo    Repository
	metrics *Metrics
	events  Emitter
	logger  zerolog.Logger
	now     func() time.Time
	loc     *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the time zone used for slot generation.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, metrics *Metrics, events Emitter, opts ...Option) *Service {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Service{
		repo:    repo,
		metrics: metrics,
		events:  events,
		logger:  zerolog.Nop(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create analyzes the symptoms, stores the result and updates the counters.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Triage, error) {
	if strings.TrimSpace(req.SymptomsText) == "" {
		return nil, invalid("symptoms_text é obrigatório")
	}
	answers := req.Answers
	if answers == nil {
		answers = Answers{}
	}

	text := strings.ToLower(req.SymptomsText)
	analysis := Analyze(text, answers)
	now := s.now()

	name := req.Context.PatientName
	if name == "" {
		name = defaultPatientName
	}

	t := &Triage{
		ID:           ids.Triage(now),
		Specialty:    analysis.Specialty,
		Confidence:   analysis.Confidence,
		Alternatives: Alternatives(analysis.Specialty),
		RedFlags:     DetectRedFlags(text, answers),
		Questions:    ResidualQuestions(analysis.Specialty),
		Guidance:     PreConsultationGuidance(analysis.Specialty),
		Explanation:  analysis.Explanation,
		PatientName:  name,
		Age:          req.Age,
		Gender:       req.Gender,
		SymptomsText: req.SymptomsText,
		Answers:      answers,
		CreatedAt:    now.UTC(),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("store triage: %w", err)
	}
	s.metrics.RecordTriage(t.Specialty)

	s.logger.Info().
		Str("triage_id", t.ID).
		Str("specialty", t.Specialty).
		Int("confidence", t.Confidence).
		Bool("red_flags", t.RedFlags.Any()).
		Msg("triage created")
	return t, nil
}

// Get returns a stored triage.
func (s *Service) Get(ctx context.Context, id string) (*Triage, error) {
	return s.repo.GetByID(ctx, id)
}

// Validate records a physician's agreement or adjustment and emits
// dr_ai_validated.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*Triage, error) {
	if req.TriageID == "" || req.Status == "" {
		return nil, invalid("triagem_id e status são obrigatórios")
	}
	if req.Status != ValidationAgree && req.Status != ValidationAdjust {
		return nil, invalid(`status deve ser "agree" ou "adjust"`)
	}

	t, err := s.repo.GetByID(ctx, req.TriageID)
	if err != nil {
		return nil, err
	}

	t.Validation = &Validation{
		Status:   req.Status,
		Reason:   optional(req.Reason),
		DoctorID: optional(req.DoctorID),
		At:       s.now().UTC(),
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("store validation: %w", err)
	}
	s.metrics.RecordValidation(req.Status)

	if s.events != nil {
		s.events.Emit(ctx, "dr_ai_validated", map[string]interface{}{
			"triagem_id": t.ID,
			"status":     req.Status,
			"medico_id":  req.DoctorID,
		})
	}
	return t, nil
}

// Summary returns the dashboard counters.
func (s *Service) Summary() Summary {
	return s.metrics.Snapshot(s.now())
}

var (
	neurologyHours = []int{9, 11, 14, 16, 18}
	defaultHours   = []int{8, 10, 13, 15, 17}
)

// Slots lists the remaining start times for a specialty on a date
// (YYYY-MM-DD or RFC 3339). Empty specialty means Clínica Geral and empty
// date means today. Only slots strictly after now are returned.
func (s *Service) Slots(specialty, date string) (*Slots, error) {
	if specialty == "" {
		specialty = SpecialtyGeneral
	}
	now := s.now().In(s.loc)

	day := now
	if date != "" {
		parsed, err := parseDate(date, s.loc)
		if err != nil {
			return nil, invalid("invalid_date")
		}
		day = parsed
	}

	hours := defaultHours
	if specialty == "Neurologia" {
		hours = neurologyHours
	}

	slots := make([]time.Time, 0, len(hours))
	for _, h := range hours {
		slot := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, s.loc)
		if slot.After(now) {
			slots = append(slots, slot)
		}
	}

	return &Slots{
		Specialty: specialty,
		Date:      day.Format("2006-01-02"),
		Slots:     slots,
	}, nil
}

// Purge deletes triages created before cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	return s.repo.DeleteCreatedBefore(ctx, cutoff)
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
