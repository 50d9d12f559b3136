package events

import (
	"errors"
	"time"
)

var (
	ErrInvalid = errors.New("invalid event")
	// ErrDropped marks a repeat of the same event in the same session inside
	// the dedup window. The event is not stored.
	ErrDropped = errors.New("duplicate event dropped")
)

// Funnel steps, in order.
const (
	LandingView      = "landing_view"
	OfferCreated     = "offer_created"
	BookingStarted   = "booking_started"
	BookingConfirmed = "booking_confirmed"
	ConsultStarted   = "consult_started"
	ConsultFinished  = "consult_finished"
	ConsultSigned    = "consult_signed"
)

// FunnelEvents lists the steps counted by the funnel report.
var FunnelEvents = []string{
	LandingView,
	OfferCreated,
	BookingStarted,
	BookingConfirmed,
	ConsultStarted,
	ConsultFinished,
	ConsultSigned,
}

// Funnel groupings.
const (
	GroupNone     = "none"
	GroupCampaign = "utm_campaign"
	GroupSource   = "utm_source"
	GroupMedium   = "utm_medium"
)

// UTM holds the campaign parameters of the landing page visit.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Content  string `json:"content,omitempty"`
	Term     string `json:"term,omitempty"`
}

// Event is a tracked analytics or domain event.
type Event struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	UserID     string                 `json:"user_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	UTM        UTM                    `json:"utm"`
	Path       string                 `json:"path,omitempty"`
	Properties map[string]interface{} `json:"properties"`
	Timestamp  time.Time              `json:"timestamp"`
}

// TrackRequest is the body of POST /api/events.
type TrackRequest struct {
	Name       string                 `json:"name"`
	UserID     string                 `json:"user_id"`
	SessionID  string                 `json:"session_id"`
	UTM        UTM                    `json:"utm"`
	Path       string                 `json:"path"`
	Properties map[string]interface{} `json:"properties"`
}

// FunnelRequest holds the query of GET /api/events/funnel. Dates are
// YYYY-MM-DD and inclusive.
type FunnelRequest struct {
	From           string
	To             string
	GroupBy        string
	IncludeRevenue bool
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// StepCount is the number of events and distinct sessions for one step.
type StepCount struct {
	Events   int `json:"events"`
	Sessions int `json:"sessions"`
}

// Count is one aggregated (group, event) cell as produced by a Repository.
type Count struct {
	Group string
	Event string
	StepCount
}

// ConversionRates are percentages formatted with two decimals.
type ConversionRates struct {
	LandingToBooking  string `json:"landing_to_booking"`
	BookingToFinished string `json:"booking_to_finished"`
}

// FunnelRow is the funnel of one group.
type FunnelRow struct {
	Group           string               `json:"group"`
	Funnel          map[string]StepCount `json:"funnel"`
	ConversionRates ConversionRates      `json:"conversionRates"`
}

// RevenueRow sums the prices carried by booking_confirmed events.
type RevenueRow struct {
	Group          string  `json:"group"`
	GMV            float64 `json:"gmv"`
	PlatformFee    float64 `json:"platform_fee"`
	DoctorEarnings float64 `json:"doctor_earnings"`
}

// FunnelReport is the response of GET /api/events/funnel.
type FunnelReport struct {
	From    string       `json:"from"`
	To      string       `json:"to"`
	GroupBy string       `json:"groupBy"`
	Events  []string     `json:"events"`
	Rows    []FunnelRow  `json:"rows"`
	Revenue []RevenueRow `json:"revenue"`
}

// DayCount is one aggregated (day, event) cell.
type DayCount struct {
	Day   string
	Event string
	StepCount
}

// DailyFunnel is the funnel of one day.
type DailyFunnel struct {
	Day    string               `json:"day"`
	Funnel map[string]StepCount `json:"funnel"`
}

// DailyReport is the response of GET /api/events/funnel/daily.
type DailyReport struct {
	From string        `json:"from"`
	To   string        `json:"to"`
	Days []DailyFunnel `json:"days"`
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }
func (e *invalidError) Unwrap() error { return ErrInvalid }
