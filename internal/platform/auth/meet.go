package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	meetIssuer   = "telemed"
	meetAudience = "consultorio-meet"

	MeetRoleDoctor  = "doctor"
	MeetRolePatient = "patient"
)

var (
	ErrMeetSecretMissing = errors.New("meet_token_secret_not_configured")
	ErrMeetCIDMismatch   = errors.New("meet_token_cid_mismatch")
	ErrMeetRoleInvalid   = errors.New("meet_token_role_invalid")
)

// MeetClaims is the payload of a consultation-room token.
type MeetClaims struct {
	jwt.RegisteredClaims
	ConsultationID string `json:"cid"`
	Role           string `json:"role"`
}

// MeetToken is a signed room token together with its validity window.
type MeetToken struct {
	Token     string    `json:"token"`
	NotBefore time.Time `json:"nbf"`
	ExpiresAt time.Time `json:"exp"`
	Role      string    `json:"role"`
}

// MeetSigner issues and verifies consultation-room tokens. A token opens
// Early before the scheduled time and closes Late after the consultation's
// planned end.
type MeetSigner struct {
	secret []byte
	Early  time.Duration
	Late   time.Duration
	now    func() time.Time
}

func NewMeetSigner(secret string, early, late time.Duration) *MeetSigner {
	if early <= 0 {
		early = 10 * time.Minute
	}
	if late <= 0 {
		late = 60 * time.Minute
	}
	return &MeetSigner{secret: []byte(secret), Early: early, Late: late, now: time.Now}
}

// Sign issues a room token for a participant. duration defaults to 30 minutes.
// The expiry is never less than one minute from now.
func (s *MeetSigner) Sign(consultationID, role string, scheduledFor time.Time, duration time.Duration) (*MeetToken, error) {
	if len(s.secret) == 0 {
		return nil, ErrMeetSecretMissing
	}
	if role != MeetRoleDoctor && role != MeetRolePatient {
		return nil, ErrMeetRoleInvalid
	}
	if consultationID == "" {
		return nil, fmt.Errorf("consultation id is required")
	}
	if scheduledFor.IsZero() {
		return nil, fmt.Errorf("invalid_scheduledFor")
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}

	now := s.now()
	nbf := scheduledFor.Add(-s.Early).Truncate(time.Second)
	exp := scheduledFor.Add(duration + s.Late).Truncate(time.Second)
	if floor := now.Add(time.Minute).Truncate(time.Second); exp.Before(floor) {
		exp = floor
	}

	claims := MeetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    meetIssuer,
			Audience:  jwt.ClaimStrings{meetAudience},
			NotBefore: jwt.NewNumericDate(nbf),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ConsultationID: consultationID,
		Role:           role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign meet token: %w", err)
	}
	return &MeetToken{Token: signed, NotBefore: nbf, ExpiresAt: exp, Role: role}, nil
}

// Verify checks signature, issuer, audience, time window, consultation id and role.
func (s *MeetSigner) Verify(tokenStr, consultationID string) (*MeetClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMeetSecretMissing
	}
	claims := &MeetClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(meetIssuer),
		jwt.WithAudience(meetAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify meet token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("meet token is not valid")
	}
	if claims.ConsultationID != consultationID {
		return nil, ErrMeetCIDMismatch
	}
	if claims.Role != MeetRoleDoctor && claims.Role != MeetRolePatient {
		return nil, ErrMeetRoleInvalid
	}
	return claims, nil
}
