package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/cache"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*cache.Singleton[string], *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	return cache.NewSingleton[string]("topology", metrics), metrics
}

func TestSingleton_CachesFirstSuccess(t *testing.T) {
	c, metrics := newTestCache(t)
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "topo", nil
	}

	for range 3 {
		v, err := c.Get(context.Background(), fetch)
		require.NoError(t, err)
		assert.Equal(t, "topo", v)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("topology", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("topology", "hit")))
}

func TestSingleton_ConcurrentCallersShareOneFetch(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Get(context.Background(), fetch)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), fetch)
		}()
	}

	// Give the late callers time to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestSingleton_FailureIsNotCached(t *testing.T) {
	c, metrics := newTestCache(t)
	boom := errors.New("connection reset")
	var calls atomic.Int32

	_, err := c.Get(context.Background(), func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCache)
	assert.ErrorIs(t, err, boom)
	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, domain.DataDomain("topology"), loadErr.Domain)
	assert.Equal(t, domain.ErrCache, loadErr.Kind)

	_, ok := c.Peek()
	assert.False(t, ok)

	v, err := c.Get(context.Background(), func(context.Context) (string, error) {
		calls.Add(1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("topology", "error")))
}

func TestSingleton_FailureReachesEveryWaiter(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("bad gateway")
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	fetch := func(context.Context) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return "", boom
	}

	errs := make(chan error, 2)
	go func() {
		_, err := c.Get(context.Background(), fetch)
		errs <- err
	}()
	<-started
	go func() {
		_, err := c.Get(context.Background(), fetch)
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	for range 2 {
		err := <-errs
		assert.ErrorIs(t, err, domain.ErrCache)
		assert.ErrorIs(t, err, boom)
	}
}

func TestSingleton_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)

	fetch := func(ctx context.Context) (string, error) {
		<-release
		fetchCtxErr <- ctx.Err()
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, fetch)
		done <- err
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.NoError(t, <-fetchCtxErr)

	require.Eventually(t, func() bool {
		v, ok := c.Peek()
		return ok && v == "late"
	}, time.Second, 10*time.Millisecond)
}

func TestSingleton_Reset(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := c.Get(context.Background(), fetch)
	require.NoError(t, err)
	c.Reset()
	_, ok := c.Peek()
	assert.False(t, ok)

	_, err = c.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
