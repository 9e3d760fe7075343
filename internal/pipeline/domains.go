package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/forecast-data-service/internal/cache"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"github.com/google/uuid"
)

// NewCoreData loads the core forecast bundle.
func NewCoreData(src Source, path string, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Pipeline[domain.CoreBundle] {
	return New(domain.CoreData, path, src, domain.NormalizeCoreData, st.Core, st.Tracker, logger, metrics)
}

// NewHistoricalGroundTruth loads the historical ground truth snapshots.
func NewHistoricalGroundTruth(src Source, path string, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Pipeline[domain.HistoricalSnapshots] {
	return New(domain.HistoricalGroundTruth, path, src, domain.NormalizeHistoricalGroundTruth, st.Historical, st.Tracker, logger, metrics)
}

// NewEvaluationPrecalculated loads the precalculated evaluation block. A
// payload without the "precalculated" wrapper is accepted and logged.
func NewEvaluationPrecalculated(src Source, path string, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Pipeline[domain.PrecalculatedEvaluations] {
	transform := func(data []byte) (domain.PrecalculatedEvaluations, error) {
		v, err := domain.NormalizeEvaluationPrecalculated(data)
		if err == nil && v.Shape == domain.EvaluationBare {
			logger.Warn("evaluation payload has no precalculated wrapper, using top level",
				"domain", string(domain.EvaluationPrecalculated), "path", path)
		}
		return v, err
	}
	return New(domain.EvaluationPrecalculated, path, src, transform, st.Precalculated, st.Tracker, logger, metrics)
}

// NewEvaluationRawScores loads the raw per-model scores.
func NewEvaluationRawScores(src Source, path string, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Pipeline[domain.RawScoreSet] {
	return New(domain.EvaluationRawScores, path, src, domain.NormalizeEvaluationRawScores, st.RawScores, st.Tracker, logger, metrics)
}

// TopologyLoader serves the map topology through a process-wide singleton
// cache. The topology slice mirrors the cache so its state is reported with
// the other domains.
type TopologyLoader struct {
	path    string
	source  Source
	cache   *cache.Singleton[domain.Topology]
	slice   *store.Slice[domain.Topology]
	tracker *store.Tracker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTopology creates the topology loader.
func NewTopology(src Source, path string, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *TopologyLoader {
	return &TopologyLoader{
		path:    path,
		source:  src,
		cache:   cache.NewSingleton[domain.Topology](domain.MapTopology, metrics),
		slice:   st.Topology,
		tracker: st.Tracker,
		logger:  logger.With("domain", string(domain.MapTopology)),
		metrics: metrics,
	}
}

// Domain returns domain.MapTopology.
func (l *TopologyLoader) Domain() domain.DataDomain { return domain.MapTopology }

// Get returns the topology, fetching it on first use.
func (l *TopologyLoader) Get(ctx context.Context) (domain.Topology, error) {
	return l.cache.Get(ctx, l.fetch)
}

// Load fetches the topology if it is not cached yet. A cached topology whose
// slice was emptied behind the cache is published again without a fetch.
func (l *TopologyLoader) Load(ctx context.Context) error {
	topo, err := l.Get(ctx)
	if err != nil {
		return err
	}
	if l.slice.IsLoaded() {
		return nil
	}
	return l.republish(topo)
}

// Reset drops the cached topology so the next Get fetches again.
func (l *TopologyLoader) Reset() {
	l.cache.Reset()
}

func (l *TopologyLoader) fetch(ctx context.Context) (domain.Topology, error) {
	attemptID := uuid.NewString()
	logger := l.logger.With("attempt_id", attemptID)
	if err := l.tracker.Begin(domain.MapTopology, attemptID); err != nil {
		return domain.Topology{}, err
	}
	logger.Info("domain load started", "path", l.path)

	topo, err := l.load(ctx)
	if err != nil {
		l.slice.Clear()
		if terr := l.tracker.Fail(domain.MapTopology, err.Error()); terr != nil {
			logger.Warn("record load failure", "error", terr)
		}
		l.metrics.LoadAttempts.WithLabelValues(string(domain.MapTopology), "failure").Inc()
		logger.Error("domain load failed", "error", err)
		return domain.Topology{}, err
	}

	l.slice.Set(topo)
	if terr := l.tracker.Succeed(domain.MapTopology); terr != nil {
		logger.Warn("record load success", "error", terr)
	}
	l.metrics.LoadAttempts.WithLabelValues(string(domain.MapTopology), "success").Inc()
	logger.Info("domain load complete", "objects", topo.Objects)
	return topo, nil
}

func (l *TopologyLoader) republish(topo domain.Topology) error {
	attemptID := uuid.NewString()
	if err := l.tracker.Begin(domain.MapTopology, attemptID); err != nil {
		// Another caller got there first.
		if st := l.tracker.State(domain.MapTopology); st == domain.StateLoading || st == domain.StateLoaded {
			return nil
		}
		return err
	}
	l.slice.Set(topo)
	if err := l.tracker.Succeed(domain.MapTopology); err != nil {
		return err
	}
	l.logger.Info("domain republished from cache", "attempt_id", attemptID)
	return nil
}

func (l *TopologyLoader) load(ctx context.Context) (domain.Topology, error) {
	data, err := l.source.Fetch(ctx, l.path)
	if err != nil {
		return domain.Topology{}, domain.NewFetchError(domain.MapTopology, l.path, err)
	}
	topo, err := domain.NormalizeTopology(data)
	if err != nil {
		return domain.Topology{}, domain.NewParseError(domain.MapTopology, l.path, err)
	}
	return topo, nil
}
