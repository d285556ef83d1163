// Package policy supplies the coretypes.PolicyView the navigate primitive
// consults: a robots.txt check plus a same-process SSRF guard, combined
// behind spec.md §7's single PolicyDenied verdict.
package policy

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/robots"
	"github.com/soulbrowser/soulbrowser/internal/security"
)

// checkTimeout bounds how long a single robots.txt fetch may block a
// navigate call before the gate fails open.
const checkTimeout = 5 * time.Second

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// Gate is a coretypes.PolicyView backed by robots.txt plus an SSRF guard,
// with a per-host TTL cache so a flow hitting the same host repeatedly
// doesn't refetch robots.txt on every navigate (the same TTL-cache shape
// internal/perception's anchor cache uses).
type Gate struct {
	checker *robots.Checker
	ttl     time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	blockPrivateNetworks bool
}

// NewGate builds a Gate. ttl of 0 disables caching (every Allow call
// refetches robots.txt).
func NewGate(checker *robots.Checker, ttl time.Duration, blockPrivateNetworks bool, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		checker:              checker,
		ttl:                  ttl,
		logger:               logger,
		cache:                make(map[string]cacheEntry),
		blockPrivateNetworks: blockPrivateNetworks,
	}
}

// Allow implements coretypes.PolicyView.
func (g *Gate) Allow(rawURL string) (bool, string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, "invalid URL: " + err.Error()
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, "scheme not allowed: " + parsed.Scheme
	}

	if g.blockPrivateNetworks {
		if err := security.ValidateURL(rawURL); err != nil {
			return false, "target resolves to a non-routable address: " + err.Error()
		}
	}

	if allowed, cached := g.cachedResult(parsed.Host + parsed.Path); cached {
		if !allowed {
			return false, "blocked by robots.txt"
		}
		return true, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	allowed, err := g.checker.Check(ctx, rawURL)
	if err != nil {
		g.logger.Debug("robots.txt check failed, allowing navigation", zap.Error(err))
		allowed = true
	}
	g.storeResult(parsed.Host+parsed.Path, allowed)

	if !allowed {
		return false, "blocked by robots.txt"
	}
	return true, ""
}

func (g *Gate) cachedResult(key string) (allowed bool, ok bool) {
	if g.ttl <= 0 {
		return false, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, exists := g.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return false, false
	}
	return entry.allowed, true
}

func (g *Gate) storeResult(key string, allowed bool) {
	if g.ttl <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = cacheEntry{allowed: allowed, expiresAt: time.Now().Add(g.ttl)}
}
