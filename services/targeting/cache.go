package targeting

import (
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 10 * time.Minute

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "targeting_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "targeting_cache_miss_total"})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss)
}

type cachedProgram struct {
	program   cel.Program
	updatedAt time.Time
}

// thread-safe compiled program cache with singleflight on compile
type programCache struct {
	mu    sync.RWMutex
	items map[string]*cachedProgram
	ttl   time.Duration
	group singleflight.Group
}

func newProgramCache(ttl time.Duration) *programCache {
	return &programCache{
		items: make(map[string]*cachedProgram),
		ttl:   ttl,
	}
}

func (c *programCache) Get(expression string) (cel.Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[expression]
	if !ok || (c.ttl > 0 && time.Since(v.updatedAt) > c.ttl) {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v.program, true
}

func (c *programCache) Set(expression string, program cel.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[expression] = &cachedProgram{program: program, updatedAt: time.Now()}
}
