package update

import (
	"fmt"
	"time"
)

// DefaultTokenTTL is the validity window for download tokens.
const DefaultTokenTTL = 10 * time.Minute

// TokenAuthority issues, checks and expires the short-lived per-(path,
// client) tokens gating downloads.
type TokenAuthority struct {
	index  Index
	clock  Clock
	tokens TokenGenerator
	ttl    time.Duration
	logger Logger
}

// NewTokenAuthority creates a TokenAuthority. A non-positive ttl falls
// back to DefaultTokenTTL.
func NewTokenAuthority(index Index, clock Clock, tokens TokenGenerator, ttl time.Duration, logger Logger) *TokenAuthority {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenAuthority{index: index, clock: clock, tokens: tokens, ttl: ttl, logger: logger}
}

// GetToken returns the stored token for a (path, client) pair, or nil.
// The token may already be expired; use CheckAccess for validation.
func (a *TokenAuthority) GetToken(relativePath, ip string) (*TokenRecord, error) {
	return a.index.GetToken(relativePath, ip)
}

// Issue returns a valid token for the (path, client) pair. If an
// unexpired token already exists it is returned unchanged, so repeated
// manifest requests within the validity window do not churn tokens.
// Otherwise a fresh token replaces any stale row.
//
// The index stores expirations at second resolution, so the computed
// expiration is truncated before storing; the returned record always
// equals the persisted row.
func (a *TokenAuthority) Issue(relativePath, ip string) (*TokenRecord, error) {
	now := a.clock.Now().Truncate(time.Second)

	existing, err := a.index.GetToken(relativePath, ip)
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}
	if existing != nil && now.Before(existing.Expiration) {
		return existing, nil
	}

	token, err := a.tokens.New()
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	rec := &TokenRecord{Token: token, Expiration: now.Add(a.ttl)}
	if err := a.index.PutToken(relativePath, ip, rec.Token, rec.Expiration); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	a.logger.Debug("token issued", "path", relativePath, "ip", ip, "expiration", rec.Expiration)
	return rec, nil
}

// CheckAccess reports whether candidate grants the client access to the
// path: a row must exist for the (path, client) pair, the token must
// match exactly, and the expiration must lie in the future.
func (a *TokenAuthority) CheckAccess(relativePath, ip, candidate string) (bool, error) {
	rec, err := a.index.GetToken(relativePath, ip)
	if err != nil {
		return false, fmt.Errorf("looking up token: %w", err)
	}
	if rec == nil {
		return false, nil
	}
	if rec.Token != candidate {
		return false, nil
	}
	return a.clock.Now().Before(rec.Expiration), nil
}

// PurgeExpired deletes all expired token rows and returns the count.
// Runs opportunistically after version lookups rather than on a
// background schedule.
func (a *TokenAuthority) PurgeExpired() (int64, error) {
	n, err := a.index.PurgeExpiredTokens(a.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("purging tokens: %w", err)
	}
	if n > 0 {
		a.logger.Debug("expired tokens purged", "count", n)
	}
	return n, nil
}
