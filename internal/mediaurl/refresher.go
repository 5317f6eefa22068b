package mediaurl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// DefaultTTL is how long a refreshed URL is reused.
const DefaultTTL = 50 * time.Minute

// Signer issues a fresh URL for an expired one.
type Signer interface {
	Sign(ctx context.Context, expired string) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, expired string) (string, error)

func (f SignerFunc) Sign(ctx context.Context, expired string) (string, error) { return f(ctx, expired) }

type cacheEntry struct {
	url      string
	cachedAt time.Time
}

// Refresher resolves media URLs, refreshing expired ones through a Signer and
// caching the result. It is safe for concurrent use; concurrent refreshes of
// the same URL share one Sign call.
type Refresher struct {
	signer Signer
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// NewRefresher creates a refresher. A ttl of zero uses DefaultTTL.
func NewRefresher(signer Signer, ttl time.Duration) *Refresher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Refresher{
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

func (r *Refresher) cached(u string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[u]
	if !ok {
		return "", false
	}
	now := r.now()
	if now.Sub(e.cachedAt) > r.ttl || IsExpired(e.url, now) {
		return "", false
	}
	return e.url, true
}

// Resolve returns a usable URL for u. Unexpired URLs are returned as is. If
// refreshing fails the original URL is returned.
func (r *Refresher) Resolve(ctx context.Context, u string) string {
	if u == "" || r.signer == nil || !IsExpired(u, r.now()) {
		return u
	}
	if fresh, ok := r.cached(u); ok {
		return fresh
	}

	v, err, _ := r.group.Do(u, func() (any, error) {
		return r.signer.Sign(ctx, u)
	})
	if err != nil {
		tuilog.Log.Warn("Refresher.Resolve: refresh failed, using original", "error", err)
		return u
	}
	fresh := v.(string)
	if fresh == "" {
		return u
	}

	r.mu.Lock()
	r.cache[u] = cacheEntry{url: fresh, cachedAt: r.now()}
	r.mu.Unlock()
	return fresh
}

// ResolveAll resolves every value of m in place.
func (r *Refresher) ResolveAll(ctx context.Context, m map[string]string) {
	for k, u := range m {
		m[k] = r.Resolve(ctx, u)
	}
}

// Purge drops cache entries older than the TTL.
func (r *Refresher) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for k, e := range r.cache {
		if now.Sub(e.cachedAt) > r.ttl {
			delete(r.cache, k)
			n++
		}
	}
	return n
}
