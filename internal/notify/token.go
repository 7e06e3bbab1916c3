package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshSkew renews a credential slightly before its stated expiry so
// an in-flight send never races the deadline.
const refreshSkew = time.Minute

// Token is a platform credential with an optional expiry. A zero
// ExpiresAt means the token never expires.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenSource produces a fresh credential on demand.
type TokenSource func(ctx context.Context) (Token, error)

// StaticToken wraps a fixed, non-expiring credential.
func StaticToken(value string) TokenSource {
	return func(context.Context) (Token, error) {
		return Token{Value: value}, nil
	}
}

// TokenCache holds the current platform credential and refreshes it
// through its source when it nears expiry. It replaces ambient
// process-global token state: everything that needs a credential gets
// a cache injected and asks GetValid.
type TokenCache struct {
	mu     sync.Mutex
	source TokenSource
	cur    Token
	now    func() time.Time
}

func NewTokenCache(source TokenSource) *TokenCache {
	return &TokenCache{source: source, now: time.Now}
}

// GetValid returns a credential that is safe to use right now,
// refreshing first when the cached one is missing or about to expire.
func (c *TokenCache) GetValid(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur.Value != "" && !c.stale() {
		return c.cur.Value, nil
	}

	tok, err := c.source(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if tok.Value == "" {
		return "", fmt.Errorf("token source returned empty credential")
	}
	c.cur = tok
	return c.cur.Value, nil
}

func (c *TokenCache) stale() bool {
	if c.cur.ExpiresAt.IsZero() {
		return false
	}
	return !c.now().Add(refreshSkew).Before(c.cur.ExpiresAt)
}
