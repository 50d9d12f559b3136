package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestMeetSigner(now time.Time) *MeetSigner {
	s := NewMeetSigner("meet-secret", 10*time.Minute, 60*time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func TestMeetSigner_Window(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	scheduled := now.Add(2 * time.Hour)
	s := newTestMeetSigner(now)

	tok, err := s.Sign("1234", MeetRolePatient, scheduled, 30*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if want := scheduled.Add(-10 * time.Minute); !tok.NotBefore.Equal(want) {
		t.Errorf("nbf = %s, want %s", tok.NotBefore, want)
	}
	if want := scheduled.Add(90 * time.Minute); !tok.ExpiresAt.Equal(want) {
		t.Errorf("exp = %s, want %s", tok.ExpiresAt, want)
	}
}

func TestMeetSigner_ExpiryFloor(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	s := newTestMeetSigner(now)

	// Scheduled long ago: the window already closed, exp is clamped to now+1m.
	tok, err := s.Sign("1", MeetRoleDoctor, now.Add(-5*time.Hour), 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if want := now.Add(time.Minute); !tok.ExpiresAt.Equal(want) {
		t.Errorf("exp = %s, want %s", tok.ExpiresAt, want)
	}
}

func TestMeetSigner_VerifyInsideWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	s := newTestMeetSigner(now)
	tok, err := s.Sign("77", MeetRoleDoctor, now.Add(5*time.Minute), 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := s.Verify(tok.Token, "77")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != MeetRoleDoctor {
		t.Errorf("expected doctor role, got %q", claims.Role)
	}
}

func TestMeetSigner_VerifyBeforeWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	s := newTestMeetSigner(now)
	tok, err := s.Sign("77", MeetRolePatient, now.Add(3*time.Hour), 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := s.Verify(tok.Token, "77"); err == nil {
		t.Error("expected token to be rejected before nbf")
	}
}

func TestMeetSigner_CIDMismatch(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	s := newTestMeetSigner(now)
	tok, _ := s.Sign("77", MeetRolePatient, now, 0)

	if _, err := s.Verify(tok.Token, "78"); !errors.Is(err, ErrMeetCIDMismatch) {
		t.Errorf("expected ErrMeetCIDMismatch, got %v", err)
	}
}

func TestMeetSigner_Errors(t *testing.T) {
	now := time.Now()
	if _, err := NewMeetSigner("", 0, 0).Sign("1", MeetRolePatient, now, 0); !errors.Is(err, ErrMeetSecretMissing) {
		t.Errorf("expected ErrMeetSecretMissing, got %v", err)
	}
	s := NewMeetSigner("k", 0, 0)
	if _, err := s.Sign("1", "nurse", now, 0); !errors.Is(err, ErrMeetRoleInvalid) {
		t.Errorf("expected ErrMeetRoleInvalid, got %v", err)
	}
	if _, err := s.Sign("1", MeetRolePatient, time.Time{}, 0); err == nil {
		t.Error("expected error for zero scheduled time")
	}
	if _, err := s.Verify("garbage", "1"); err == nil {
		t.Error("expected error for malformed token")
	}
}
