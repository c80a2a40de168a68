package mockapi

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Sessions issues bearer tokens that expire after a fixed TTL.
type Sessions struct {
	cache *ttlcache.Cache[string, string] // token -> user id
	keys  map[string]bool
}

// NewSessions creates a token cache. When keys is empty any non-empty API key
// is accepted. Call Stop to end the expiry loop.
func NewSessions(ttl time.Duration, keys ...string) *Sessions {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		// Sessions expire at a fixed time regardless of use.
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	s := &Sessions{cache: cache, keys: make(map[string]bool)}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.keys[k] = true
		}
	}
	return s
}

// Issue validates apiKey and returns a fresh token and the user id bound to
// the key. The same key always maps to the same user.
func (s *Sessions) Issue(apiKey string) (token, userID string, ok bool) {
	if apiKey == "" {
		return "", "", false
	}
	if len(s.keys) > 0 && !s.keys[apiKey] {
		return "", "", false
	}
	sum := sha256.Sum256([]byte(apiKey))
	userID = "user_" + hex.EncodeToString(sum[:6])
	token = uuid.NewString()
	s.cache.Set(token, userID, ttlcache.DefaultTTL)
	return token, userID, true
}

// Lookup returns the user for a live token.
func (s *Sessions) Lookup(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	item := s.cache.Get(token)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Revoke drops a token immediately.
func (s *Sessions) Revoke(token string) {
	s.cache.Delete(token)
}

func (s *Sessions) Len() int { return s.cache.Len() }

func (s *Sessions) Stop() { s.cache.Stop() }
