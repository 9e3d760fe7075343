package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/couchcryptid/forecast-data-service/internal/pipeline"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	mu      sync.Mutex
	payload map[string][]byte
	err     error
	gate    chan struct{}
	calls   atomic.Int64
}

func newMockSource(payload map[string]string) *mockSource {
	m := &mockSource{payload: make(map[string][]byte, len(payload))}
	for k, v := range payload {
		m.payload[k] = []byte(v)
	}
	return m
}

func (m *mockSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.payload[path]
	if !ok {
		return nil, errors.New("not found: " + path)
	}
	return data, nil
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

const (
	corePath     = "data/app_data.json"
	topologyPath = "data/us-states.json"

	corePayload     = `{"metadata": {"modelNames": ["FluSight-ensemble"]}, "mainData": {}}`
	topologyPayload = `{"type": "Topology", "objects": {"states": {}}, "arcs": []}`
)

type fixture struct {
	store    *store.Store
	metrics  *observability.Metrics
	source   *mockSource
	core     *pipeline.Pipeline[domain.CoreBundle]
	topology *pipeline.TopologyLoader
	set      *pipeline.Set
}

func newFixture(t *testing.T, payload map[string]string) *fixture {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	st := store.New(clockwork.NewFakeClock(), metrics)
	src := newMockSource(payload)
	logger := slog.Default()

	core := pipeline.NewCoreData(src, corePath, st, logger, metrics)
	topo := pipeline.NewTopology(src, topologyPath, st, logger, metrics)
	return &fixture{
		store:    st,
		metrics:  metrics,
		source:   src,
		core:     core,
		topology: topo,
		set:      pipeline.NewSet(st, logger, core, topo),
	}
}

func defaultPayload() map[string]string {
	return map[string]string{corePath: corePayload, topologyPath: topologyPayload}
}

// --- tests ---

func TestPipeline_Load_HappyPath(t *testing.T) {
	f := newFixture(t, defaultPayload())

	require.NoError(t, f.core.Load(context.Background()))

	core, ok := f.store.Core.Select()
	require.True(t, ok)
	assert.Equal(t, []string{"FluSight-ensemble"}, core.Metadata.ModelNames)

	status := f.store.Status(domain.CoreData)
	assert.Equal(t, domain.StateLoaded, status.State)
	assert.NotEmpty(t, status.AttemptID)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.LoadAttempts.WithLabelValues("coreData", "success")), 0)
}

func TestPipeline_Load_SkipsWhenLoaded(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	require.NoError(t, f.core.Load(ctx))
	require.NoError(t, f.core.Load(ctx))

	assert.Equal(t, int64(1), f.source.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.LoadAttempts.WithLabelValues("coreData", "skipped")), 0)
}

func TestPipeline_Load_ConcurrentCallsShareOneAttempt(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.gate = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.core.Load(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return f.source.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.StateLoading, f.store.Status(domain.CoreData).State)
	close(f.source.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.source.calls.Load())
	assert.True(t, f.store.IsLoaded(domain.CoreData))
}

func TestPipeline_Load_FetchFailureIsRetryable(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.setErr(errors.New("connection refused"))
	ctx := context.Background()

	err := f.core.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)

	status := f.store.Status(domain.CoreData)
	assert.Equal(t, domain.StateFailed, status.State)
	assert.Contains(t, status.Error, "connection refused")
	assert.False(t, f.store.IsLoaded(domain.CoreData))

	f.source.setErr(nil)
	require.NoError(t, f.core.Load(ctx))
	assert.Equal(t, domain.StateLoaded, f.store.Status(domain.CoreData).State)
	assert.Empty(t, f.store.Status(domain.CoreData).Error)
}

func TestPipeline_Load_ParseFailure(t *testing.T) {
	f := newFixture(t, map[string]string{corePath: `[1, 2, 3]`})

	err := f.core.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)

	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, domain.CoreData, loadErr.Domain)
	assert.Equal(t, corePath, loadErr.Path)
}

func TestPipeline_Load_PanicBecomesParseFailure(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	st := store.New(clockwork.NewFakeClock(), metrics)
	src := newMockSource(map[string]string{"x.json": `{}`})
	transform := func([]byte) (domain.HistoricalSnapshots, error) {
		panic("boom")
	}
	p := pipeline.New(domain.HistoricalGroundTruth, "x.json", src, transform, st.Historical, st.Tracker, slog.Default(), metrics)

	err := p.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, domain.StateFailed, st.Status(domain.HistoricalGroundTruth).State)
}

func TestPipeline_Load_CallerCancellationDoesNotAbortAttempt(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.core.Load(ctx) }()

	require.Eventually(t, func() bool { return f.source.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.source.gate)
	require.Eventually(t, func() bool { return f.store.IsLoaded(domain.CoreData) }, time.Second, time.Millisecond)
}

func TestTopologyLoader_FetchesOnce(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	first, err := f.topology.Get(ctx)
	require.NoError(t, err)
	second, err := f.topology.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"states"}, first.Objects)
	assert.Equal(t, first.Objects, second.Objects)
	assert.Equal(t, int64(1), f.source.calls.Load())
	assert.Equal(t, domain.StateLoaded, f.store.Status(domain.MapTopology).State)
}

func TestTopologyLoader_FailureIsNotCached(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.setErr(errors.New("timeout"))
	ctx := context.Background()

	_, err := f.topology.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCache)
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.Equal(t, domain.StateFailed, f.store.Status(domain.MapTopology).State)

	f.source.setErr(nil)
	_, err = f.topology.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.source.calls.Load())
}

func TestSet_ClearAndReload(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	require.NoError(t, f.set.LoadAll(ctx, domain.CoreData, domain.MapTopology))
	assert.Equal(t, int64(2), f.source.calls.Load())

	require.NoError(t, f.set.Clear(domain.MapTopology))
	assert.Equal(t, domain.StateEmpty, f.store.Status(domain.MapTopology).State)
	_, ok := f.store.Topology.Select()
	assert.False(t, ok)

	require.NoError(t, f.set.Reload(ctx, domain.MapTopology))
	require.NoError(t, f.set.Reload(ctx, domain.CoreData))
	assert.Equal(t, int64(4), f.source.calls.Load())
	assert.True(t, f.store.IsLoaded(domain.MapTopology))
	assert.True(t, f.store.IsLoaded(domain.CoreData))
}

func TestSet_ResetRefetchesTopology(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	require.NoError(t, f.set.LoadAll(ctx, domain.CoreData, domain.MapTopology))
	require.NoError(t, f.set.Reset())
	assert.Equal(t, domain.StateEmpty, f.store.Status(domain.MapTopology).State)
	assert.False(t, f.store.IsLoaded(domain.CoreData))

	require.NoError(t, f.set.Load(ctx, domain.MapTopology))
	assert.Equal(t, int64(3), f.source.calls.Load(), "reset drops the cached topology")
	assert.Equal(t, domain.StateLoaded, f.store.Status(domain.MapTopology).State)
	assert.True(t, f.store.IsLoaded(domain.MapTopology))
}

func TestTopologyLoader_RepublishesAfterStoreReset(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	require.NoError(t, f.topology.Load(ctx))
	require.NoError(t, f.store.Reset())
	require.False(t, f.store.IsLoaded(domain.MapTopology))

	require.NoError(t, f.topology.Load(ctx))
	assert.Equal(t, int64(1), f.source.calls.Load(), "served from the cache")
	assert.Equal(t, domain.StateLoaded, f.store.Status(domain.MapTopology).State)
	topo, ok := f.store.Topology.Select()
	require.True(t, ok)
	assert.Equal(t, []string{"states"}, topo.Objects)
}

func TestSet_ResetRefusedDuringLoad(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.set.Load(context.Background(), domain.CoreData) }()
	require.Eventually(t, func() bool { return f.source.calls.Load() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.set.Reset(), domain.ErrInvalidTransition)
	assert.Equal(t, domain.StateLoading, f.store.Status(domain.CoreData).State)

	close(f.source.gate)
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateLoaded, f.store.Status(domain.CoreData).State)
	assert.True(t, f.store.IsLoaded(domain.CoreData))

	require.NoError(t, f.set.Reset())
	assert.Equal(t, domain.StateEmpty, f.store.Status(domain.CoreData).State)
	assert.False(t, f.store.IsLoaded(domain.CoreData))
}

func TestSet_UnknownDomain(t *testing.T) {
	f := newFixture(t, defaultPayload())

	err := f.set.Load(context.Background(), domain.EvaluationRawScores)
	assert.ErrorIs(t, err, domain.ErrUnknownDomain)
	assert.ErrorIs(t, f.set.Clear(domain.EvaluationRawScores), domain.ErrUnknownDomain)
}

func TestSet_LoadAllJoinsFailures(t *testing.T) {
	f := newFixture(t, map[string]string{topologyPath: topologyPayload})

	err := f.set.LoadAll(context.Background(), domain.CoreData, domain.MapTopology)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.True(t, f.store.IsLoaded(domain.MapTopology))
	assert.False(t, f.store.IsLoaded(domain.CoreData))
}

func TestSet_PreloadRetriesUntilLoaded(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.setErr(errors.New("not yet"))

	go func() {
		for f.source.calls.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		f.source.setErr(nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.set.Preload(ctx, domain.CoreData))
	assert.True(t, f.store.IsLoaded(domain.CoreData))
}

func TestSet_PreloadStopsOnCancel(t *testing.T) {
	f := newFixture(t, defaultPayload())
	f.source.setErr(errors.New("down"))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := f.set.Preload(ctx, domain.CoreData)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSet_CheckReadiness(t *testing.T) {
	f := newFixture(t, defaultPayload())
	ctx := context.Background()

	require.Error(t, f.set.CheckReadiness(ctx))
	require.NoError(t, f.set.Load(ctx, domain.MapTopology))
	require.Error(t, f.set.CheckReadiness(ctx))

	require.NoError(t, f.set.Load(ctx, domain.CoreData))
	assert.NoError(t, f.set.CheckReadiness(ctx))
}
