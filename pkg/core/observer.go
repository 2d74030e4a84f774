package core

// Observer receives counters from the cache, the claim protocol and seal validation.
// pkg/metrics provides a Prometheus implementation.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	CacheEvicted()
	ClaimLost(queue string)
	SealsValidated(kind string, ok bool)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)             {}
func (nopObserver) CacheMiss(string)            {}
func (nopObserver) CacheEvicted()               {}
func (nopObserver) ClaimLost(string)            {}
func (nopObserver) SealsValidated(string, bool) {}
