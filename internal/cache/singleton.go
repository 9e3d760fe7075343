// Package cache provides a fetch-once value shared by every caller for the
// lifetime of the process.
package cache

import (
	"context"
	"sync"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the value held by a Singleton.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Singleton caches the first successful result of a fetch. Concurrent callers
// that arrive while a fetch is in flight share it. Failures are not cached, so
// the next call fetches again. There is no expiry.
type Singleton[T any] struct {
	owner   domain.DataDomain
	metrics *observability.Metrics
	group   singleflight.Group

	mu    sync.RWMutex
	value T
	ok    bool
}

// NewSingleton creates an empty cache for the domain that owns it. The owner
// labels metrics and errors.
func NewSingleton[T any](owner domain.DataDomain, metrics *observability.Metrics) *Singleton[T] {
	return &Singleton[T]{owner: owner, metrics: metrics}
}

// Get returns the cached value, joining or starting a fetch if there is none.
// The fetch runs detached from ctx cancellation; ctx only bounds how long this
// caller waits. Fetch failures are returned to every waiter wrapped in
// domain.ErrCache.
func (s *Singleton[T]) Get(ctx context.Context, fetch FetchFunc[T]) (T, error) {
	if v, ok := s.Peek(); ok {
		s.observe("hit")
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(s.owner), func() (any, error) {
		// A fetch may have completed between Peek and DoChan.
		if v, ok := s.Peek(); ok {
			return v, nil
		}
		v, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.value, s.ok = v, true
		s.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.observe("error")
			return zero, domain.NewCacheError(s.owner, res.Err)
		}
		if res.Shared {
			s.observe("shared")
		} else {
			s.observe("miss")
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Peek returns the cached value without fetching.
func (s *Singleton[T]) Peek() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.ok
}

// Reset drops the cached value. A fetch already in flight still stores its
// result when it completes.
func (s *Singleton[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value, s.ok = zero, false
}

func (s *Singleton[T]) observe(result string) {
	s.metrics.CacheRequests.WithLabelValues(string(s.owner), result).Inc()
}
