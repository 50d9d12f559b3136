package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/telemed/telemed/internal/platform/webhook"
)

// Notifier tells the internal appointment service about an accepted bid.
type Notifier interface {
	NotifyAccepted(ctx context.Context, b *Bid, appt *Appointment) error
}

// fromBidPayload is the body expected by /internal/appointments/from-bid.
type fromBidPayload struct {
	BidID          string     `json:"bidId"`
	Mode           string     `json:"mode"`
	PatientID      string     `json:"patientId"`
	PhysicianID    string     `json:"physicianId"`
	ConsultationID string     `json:"consultationId"`
	IsImmediate    bool       `json:"isImmediate"`
	ScheduledFor   *time.Time `json:"scheduledFor"`
}

// HTTPNotifier posts accepted bids to the internal appointment service.
type HTTPNotifier struct {
	fw *webhook.Forwarder
}

// NewHTTPNotifier builds a notifier for baseURL. The internal token is sent
// in header on every call.
func NewHTTPNotifier(baseURL, header, token string, opts ...webhook.Option) *HTTPNotifier {
	url := strings.TrimRight(baseURL, "/") + "/internal/appointments/from-bid"
	opts = append([]webhook.Option{
		webhook.WithHeader(header, token),
		webhook.WithRetryDelays(),
	}, opts...)
	return &HTTPNotifier{fw: webhook.NewForwarder(url, opts...)}
}

func (n *HTTPNotifier) NotifyAccepted(ctx context.Context, b *Bid, appt *Appointment) error {
	p := fromBidPayload{
		BidID:          b.ID,
		Mode:           b.Mode,
		PatientID:      b.PatientID,
		PhysicianID:    appt.PhysicianID,
		ConsultationID: appt.ConsultationID,
		IsImmediate:    appt.IsImmediate,
	}
	if !appt.IsImmediate {
		at := appt.ScheduledAt
		p.ScheduledFor = &at
	}

	attempts := n.fw.Send(ctx, webhook.Message{ID: appt.ID, Type: "appointment.from_bid", Body: p})
	last := attempts[len(attempts)-1]
	if last.Status != "success" {
		return fmt.Errorf("%s: %w", last.Error, ErrNotify)
	}
	return nil
}
