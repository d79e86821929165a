package source

import (
	"time"

	"github.com/karlseguin/ccache"
)

const (
	defaultCacheTTL = time.Second * 15
)

// releaseCache keeps recently fetched release descriptors for reuse by
// cycles running in quick succession.
type releaseCache struct {
	cache *ccache.Cache
	ttl   time.Duration
}

func newReleaseCache(ttl time.Duration) *releaseCache {
	if ttl <= 0 {
		return nil
	}
	return &releaseCache{
		cache: ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
		ttl:   ttl,
	}
}

func cacheKey(target, deployment string) string {
	return target + "@" + deployment
}

// Last returns the cached release, nil when absent or expired.
func (c *releaseCache) Last(target, deployment string) *Release {
	if c == nil {
		return nil
	}
	item := c.cache.Get(cacheKey(target, deployment))
	if item == nil || item.Expired() {
		return nil
	}
	rel, ok := item.Value().(*Release)
	if !ok {
		return nil
	}
	// Copy to protect against misuse of the cached release.
	return rel.Clone()
}

// Record caches the release.
func (c *releaseCache) Record(rel *Release) {
	if c == nil || rel == nil {
		return
	}
	c.cache.Set(cacheKey(rel.Target, rel.Deployment), rel.Clone(), c.ttl)
}
