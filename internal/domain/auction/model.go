package auction

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("bid not found")
	ErrInvalid  = errors.New("invalid bid request")
	ErrConflict = errors.New("bid state conflict")
	ErrNotify   = errors.New("appointment notification failed")
)

const (
	StatusPending        = "pending"
	StatusFoundImmediate = "found_immediate"
	StatusFoundScheduled = "found_scheduled"
	StatusNotFound       = "not_found"
	StatusAccepted       = "accepted"
	StatusExpired        = "expired"

	ModeImmediate = "immediate"
	ModeScheduled = "scheduled"

	AvailableNow      = "now"
	AvailableToday    = "today"
	AvailableTomorrow = "tomorrow"
)

// DefaultIncrement is added by Increase when neither a new value nor an
// increment is given.
const DefaultIncrement int64 = 2000

// Bid is a patient's offer for a consultation. Amounts are in cents.
type Bid struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patientId"`
	Specialty      string     `json:"specialty"`
	AmountCents    int64      `json:"amountCents"`
	Mode           string     `json:"mode"`
	Status         string     `json:"status"`
	DoctorID       string     `json:"doctorId,omitempty"`
	ConsultationID string     `json:"consultationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Closed reports whether the bid no longer accepts search, increase or accept.
func (b *Bid) Closed() bool {
	return b.Status == StatusAccepted || b.Status == StatusExpired
}

// Doctor is a physician offered for a bid.
type Doctor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UF           string `json:"uf"`
	CRM          string `json:"crm"`
	Specialty    string `json:"specialty"`
	PriceCents   int64  `json:"priceCents"`
	Availability string `json:"availability"`
}

// Appointment is created when a patient accepts a doctor.
type Appointment struct {
	ID             string    `json:"id"`
	BidID          string    `json:"bidId"`
	PatientID      string    `json:"patientId"`
	PhysicianID    string    `json:"physicianId"`
	ConsultationID string    `json:"consultationId"`
	IsImmediate    bool      `json:"isImmediate"`
	ScheduledAt    time.Time `json:"scheduledAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SearchResult is the response of a doctor search.
type SearchResult struct {
	Doctors []Doctor `json:"doctors"`
	Status  string   `json:"status"`
}

// CreateBidRequest is the body of POST /api/auction/bids.
type CreateBidRequest struct {
	PatientID   string `json:"patientId"`
	Specialty   string `json:"specialty"`
	AmountCents int64  `json:"amountCents"`
	Mode        string `json:"mode"`
}

// IncreaseRequest is the body of PUT /api/auction/bids/:id/increase. NewValue
// takes precedence over IncreaseAmount.
type IncreaseRequest struct {
	NewValue       *int64 `json:"new_value"`
	IncreaseAmount *int64 `json:"increase_amount"`
}

// AcceptRequest is the body of POST /api/auction/bids/:id/accept.
type AcceptRequest struct {
	DoctorID string `json:"doctorId"`
}

// AcceptResult is the outcome of an accepted bid.
type AcceptResult struct {
	Bid         *Bid         `json:"bid"`
	Appointment *Appointment `json:"appointment"`
}

// codedError carries the machine-readable code returned to clients.
type codedError struct {
	code string
	kind error
}

func (e *codedError) Error() string { return e.code }
func (e *codedError) Unwrap() error { return e.kind }

func invalid(code string) error  { return &codedError{code: code, kind: ErrInvalid} }
func conflict(code string) error { return &codedError{code: code, kind: ErrConflict} }

// Code returns the client-facing code of err, or "" when err carries none.
func Code(err error) string {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ""
}
