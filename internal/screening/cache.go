package screening

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/vanshika/txscreen/internal/domain"
)

// CachedScreener memoizes successful verdicts per normalized name. Failed
// verdicts are never cached so a recovering provider is retried immediately.
type CachedScreener struct {
	next  Screener
	cache *cache.Cache
}

// NewCachedScreener wraps next with a TTL cache. A non-positive ttl disables
// caching and returns next unchanged.
func NewCachedScreener(next Screener, ttl time.Duration) Screener {
	if ttl <= 0 {
		return next
	}
	return &CachedScreener{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedScreener) ScreenName(ctx context.Context, name string) domain.ScreeningVerdict {
	key := cacheKey(name)
	if cached, ok := c.cache.Get(key); ok {
		if v, ok := cached.(domain.ScreeningVerdict); ok {
			return v
		}
	}

	verdict := c.next.ScreenName(ctx, name)
	if !verdict.Failed {
		c.cache.Set(key, verdict, cache.DefaultExpiration)
	}
	return verdict
}

func cacheKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
