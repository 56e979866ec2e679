package resilience

import "sync"

// BreakerSet keeps one circuit breaker per key so unrelated endpoint
// families fail independently.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewBreakerSet(cfg CircuitBreakerConfig) *BreakerSet {
	return &BreakerSet{
		cfg:      NormalizeCircuitBreakerConfig(cfg),
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (s *BreakerSet) For(key string) *CircuitBreaker {
	if key == "" {
		key = "default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[key]
	if !ok {
		b = NewCircuitBreaker(s.cfg.FailureThreshold, s.cfg.OpenTimeout, s.cfg.HalfOpenMaxReq)
		s.breakers[key] = b
	}

	return b
}

// States reports the current state per key for introspection surfaces.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.Lock()
	keys := make([]string, 0, len(s.breakers))
	breakers := make([]*CircuitBreaker, 0, len(s.breakers))
	for key, b := range s.breakers {
		keys = append(keys, key)
		breakers = append(breakers, b)
	}
	s.mu.Unlock()

	out := make(map[string]CircuitState, len(keys))
	for i, key := range keys {
		out[key] = breakers[i].State()
	}

	return out
}
