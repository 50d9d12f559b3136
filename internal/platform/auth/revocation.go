package auth

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Revocations is the list of revoked session token IDs. Entries live until
// the token would have expired on its own.
type Revocations struct {
	entries *cache.Cache
}

func NewRevocations() *Revocations {
	return &Revocations{entries: cache.New(cache.NoExpiration, 5*time.Minute)}
}

// Revoke marks jti as revoked until expiresAt. Already expired tokens and
// empty ids are ignored.
func (r *Revocations) Revoke(jti, userID string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return
	}
	r.entries.Set(jti, RevocationInfo{JTI: jti, UserID: userID, ExpiresAt: expiresAt}, ttl)
}

func (r *Revocations) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	_, ok := r.entries.Get(jti)
	return ok
}

// Entries returns the revocations that have not expired yet.
func (r *Revocations) Entries() []RevocationInfo {
	items := r.entries.Items()
	out := make([]RevocationInfo, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(RevocationInfo))
	}
	return out
}

// RevocationInfo describes one revoked token.
type RevocationInfo struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
