package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReloader struct {
	mu      sync.Mutex
	reloads []domain.DataDomain
	busy    int // number of reloads refused as in flight
}

func (m *mockReloader) Reload(_ context.Context, d domain.DataDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads = append(m.reloads, d)
	if m.busy > 0 {
		m.busy--
		return fmt.Errorf("%s: %w: load in flight", d, domain.ErrInvalidTransition)
	}
	return nil
}

func (m *mockReloader) snapshot() []domain.DataDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DataDomain(nil), m.reloads...)
}

var testPaths = map[domain.DataDomain]string{
	domain.CoreData:                "app_data_core.json",
	domain.HistoricalGroundTruth:   "historical/data.json",
	domain.EvaluationPrecalculated: "app_data_evaluations.json",
	domain.EvaluationRawScores:     "app_data_evaluations.json",
}

func newTestWatcher(t *testing.T, root string, clock clockwork.Clock) (*Watcher, *mockReloader, *observability.Metrics) {
	t.Helper()
	reloader := &mockReloader{}
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(root, testPaths, reloader, clock, 100*time.Millisecond, metrics, logger), reloader, metrics
}

func TestWatcher_Dirs(t *testing.T) {
	root := t.TempDir()
	w, _, _ := newTestWatcher(t, root, clockwork.NewFakeClock())

	assert.Equal(t, []string{root, filepath.Join(root, "historical")}, w.Dirs())
}

func TestWatcher_HandleDebouncesPerDomain(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, reloader, metrics := newTestWatcher(t, root, clock)
	ctx := context.Background()
	t.Cleanup(func() { w.stop(ctx) })

	core := filepath.Join(root, "app_data_core.json")
	for range 3 {
		w.handle(ctx, fsnotify.Event{Name: core, Op: fsnotify.Write})
	}
	w.handle(ctx, fsnotify.Event{Name: filepath.Join(root, "app_data_evaluations.json"), Op: fsnotify.Create})
	w.handle(ctx, fsnotify.Event{Name: filepath.Join(root, "unrelated.json"), Op: fsnotify.Write})
	w.handle(ctx, fsnotify.Event{Name: core, Op: fsnotify.Chmod})

	require.NoError(t, clock.BlockUntilContext(ctx, 3))
	clock.Advance(200 * time.Millisecond)

	require.Eventually(t, func() bool { return len(reloader.snapshot()) == 3 }, time.Second, time.Millisecond)
	assert.ElementsMatch(t, []domain.DataDomain{
		domain.CoreData,
		domain.EvaluationPrecalculated,
		domain.EvaluationRawScores,
	}, reloader.snapshot())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.WatchReloads.WithLabelValues("coreData")), 0)
}

func TestWatcher_ReloadRetriedWhileDomainBusy(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, reloader, metrics := newTestWatcher(t, root, clock)
	reloader.busy = 1
	ctx := context.Background()
	t.Cleanup(func() { w.stop(ctx) })

	w.handle(ctx, fsnotify.Event{Name: filepath.Join(root, "app_data_core.json"), Op: fsnotify.Write})
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(reloader.snapshot()) == 1 }, time.Second, time.Millisecond)

	// The refused reload re-arms the timer.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(reloader.snapshot()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []domain.DataDomain{domain.CoreData, domain.CoreData}, reloader.snapshot())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.WatchReloads.WithLabelValues("coreData")), 0)
}

func TestWatcher_StopFlushesPendingReloads(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, reloader, _ := newTestWatcher(t, root, clock)

	w.handle(context.Background(), fsnotify.Event{Name: filepath.Join(root, "historical", "data.json"), Op: fsnotify.Write})
	w.stop(context.Background())
	assert.Equal(t, []domain.DataDomain{domain.HistoricalGroundTruth}, reloader.snapshot(), "pending reload runs without waiting")

	w.handle(context.Background(), fsnotify.Event{Name: filepath.Join(root, "historical", "data.json"), Op: fsnotify.Write})
	clock.Advance(time.Second)
	assert.Len(t, reloader.snapshot(), 1, "stopped debouncers ignore later events")
}

func TestWatcher_StopDropsPendingReloadsAfterCancel(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, reloader, _ := newTestWatcher(t, root, clock)

	ctx, cancel := context.WithCancel(context.Background())
	w.handle(ctx, fsnotify.Event{Name: filepath.Join(root, "app_data_core.json"), Op: fsnotify.Write})
	cancel()
	w.stop(ctx)

	clock.Advance(time.Second)
	assert.Empty(t, reloader.snapshot())
}

func TestWatcher_RunReloadsOnWrite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "historical"), 0o755))
	w, reloader, _ := newTestWatcher(t, root, clockwork.NewRealClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "historical", "data.json"), []byte(`{}`), 0o600))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]domain.DataDomain{domain.HistoricalGroundTruth}, reloader.snapshot())
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_RunFailsWithoutDirectories(t *testing.T) {
	w, _, _ := newTestWatcher(t, filepath.Join(t.TempDir(), "missing"), clockwork.NewRealClock())

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no watchable directories")
}
