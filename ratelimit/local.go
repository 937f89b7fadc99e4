package ratelimit

import (
	"math"
	"sync"

	"github.com/kevinms/leakybucket-go"
)

// localStore is the in-process fallback used when redis is unavailable or
// unconfigured. Budgets are per replica, so it under-enforces in a
// multi-replica deployment; that is the accepted fail-open tradeoff.
type localStore struct {
	mu         sync.Mutex
	collectors map[string]*leakybucket.Collector
}

func newLocalStore() *localStore {
	return &localStore{collectors: make(map[string]*leakybucket.Collector)}
}

func (s *localStore) collector(rule Rule) *leakybucket.Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collectors[rule.ID]
	if !ok {
		c = leakybucket.NewCollector(rule.PerSecond, rule.Burst, true /* deleteEmptyBuckets */)
		s.collectors[rule.ID] = c
	}
	return c
}

func (s *localStore) take(key string, rule Rule) Decision {
	c := s.collector(rule)
	if c.Add(key, 1) == 0 {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: int(math.Ceil(1 / rule.PerSecond)),
		}
	}
	return Decision{Allowed: true, Remaining: c.Remaining(key)}
}
