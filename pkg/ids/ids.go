// Package ids generates the short random identifiers used in bid,
// appointment, triage and consultation ids.
package ids

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Lower returns n random characters from [a-z0-9].
func Lower(n int) string { return random(lowerAlnum, n) }

// Upper returns n random characters from [A-Z0-9].
func Upper(n int) string { return random(upperAlnum, n) }

func random(alphabet string, n int) string {
	s, err := draw(rand.Reader, alphabet, n)
	if err != nil {
		panic(fmt.Sprintf("ids: read random: %v", err))
	}
	return s
}

// draw picks n characters from alphabet using bytes from r. Bytes at or
// above the largest multiple of len(alphabet) are discarded so every
// character is equally likely.
func draw(r io.Reader, alphabet string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	limit := 256 - 256%len(alphabet)
	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, n)
	for b.Len() < n {
		chunk := buf[:n-b.Len()]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return "", err
		}
		for _, v := range chunk {
			if int(v) >= limit {
				continue
			}
			b.WriteByte(alphabet[int(v)%len(alphabet)])
		}
	}
	return b.String(), nil
}

// Bid returns "bid_" followed by 8 lowercase alphanumerics.
func Bid() string { return "bid_" + Lower(8) }

// Appointment returns "appt_" followed by 8 lowercase alphanumerics.
func Appointment() string { return "appt_" + Lower(8) }

// Triage returns "TRI-<unix millis>-<6 uppercase alphanumerics>".
func Triage(now time.Time) string {
	return fmt.Sprintf("TRI-%d-%s", now.UnixMilli(), Upper(6))
}

// Consultation returns "CONS-<doctor>-<6 uppercase alphanumerics>".
func Consultation(doctorID string) string {
	return fmt.Sprintf("CONS-%s-%s", doctorID, Upper(6))
}
