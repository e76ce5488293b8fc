package tools

import (
	"sync"
	"time"
)

// refreshMargin is how long before expiry a cached token is already
// considered stale, so a refresh happens before the upstream rejects it.
const refreshMargin = 30 * time.Second

// TokenCache holds a short-lived upstream auth token together with its
// expiry. It is owned exclusively by the client that refreshes it; callers
// go through Get, which refreshes at most once per expiry window.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Get returns the cached token, refreshing it through the supplied function
// when missing or about to expire. refresh returns the new token and its
// time-to-live.
func (tc *TokenCache) Get(refresh func() (string, time.Duration, error)) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && time.Now().Before(tc.expiresAt.Add(-refreshMargin)) {
		return tc.token, nil
	}

	token, ttl, err := refresh()
	if err != nil {
		return "", err
	}
	tc.token = token
	tc.expiresAt = time.Now().Add(ttl)
	return tc.token, nil
}

// Invalidate drops the cached token so the next Get refreshes.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = ""
	tc.expiresAt = time.Time{}
}
