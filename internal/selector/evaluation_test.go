package selector_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const season = "season-2024-2025"

func testPrecalculated() domain.PrecalculatedEvaluations {
	pre := domain.EmptyPrecalculatedEvaluations()
	pre.IQR[season] = map[string]map[string]map[string]domain.IQREntry{
		domain.MetricMAPE: {"FluSight-ensemble": {"0,1": {BoxplotStats: domain.BoxplotStats{Median: 7, Count: 4}}}},
	}
	pre.StateMap[season] = map[string]map[string]map[string]map[int]domain.Aggregate{
		domain.MetricMAPE: {"FluSight-ensemble": {
			"US": {0: {Sum: 10, Count: 2}, 1: {Sum: 20, Count: 2}},
			"06": {3: {Sum: 9, Count: 3}},
		}},
	}
	pre.Coverage[season] = map[string]map[int]map[int]domain.Aggregate{
		"FluSight-ensemble": {0: {95: {Sum: 9, Count: 10}}},
	}
	return pre
}

func testRawScores() domain.RawScoreSet {
	raw := domain.EmptyRawScoreSet()
	raw.Scores[season] = map[string]map[string]map[string]map[int][]domain.ScoreEntry{
		domain.MetricWISRatio: {"FluSight-ensemble": {
			"US": {
				0: {
					{ReferenceDate: day(2024, 11, 23), TargetEndDate: day(2024, 11, 23), Score: 1},
					{ReferenceDate: day(2024, 12, 28), TargetEndDate: day(2024, 12, 28), Score: 2},
					{ReferenceDate: day(2025, 1, 11), TargetEndDate: day(2025, 1, 11), Score: 3},
				},
				1: {{ReferenceDate: day(2024, 12, 28), TargetEndDate: day(2025, 1, 4), Score: 4}},
			},
			"06": {0: {{ReferenceDate: day(2024, 12, 28), TargetEndDate: day(2024, 12, 28), Score: 5}}},
		}},
	}
	return raw
}

func TestSeasonOverview(t *testing.T) {
	sel, st := newTestSelector(t)

	empty := sel.SeasonOverview(season)
	assert.Equal(t, season, empty.SeasonID)
	assert.NotNil(t, empty.IQR)
	assert.Empty(t, empty.StateMap)

	st.Precalculated.Set(testPrecalculated())
	overview := sel.SeasonOverview(season)
	assert.Contains(t, overview.IQR, domain.MetricMAPE)
	assert.Contains(t, overview.StateMap, domain.MetricMAPE)
	assert.Contains(t, overview.Coverage, "FluSight-ensemble")

	assert.Empty(t, sel.SeasonOverview("season-1999-2000").IQR)
}

func TestStateMapMeans(t *testing.T) {
	sel, st := newTestSelector(t)
	st.Precalculated.Set(testPrecalculated())

	means := sel.StateMapMeans(season, domain.MetricMAPE, "FluSight-ensemble", []int{0, 1})
	assert.Equal(t, map[string]float64{"US": 7.5}, means)

	means = sel.StateMapMeans(season, domain.MetricMAPE, "FluSight-ensemble", []int{0, 1, 2, 3})
	assert.InDelta(t, 3, means["06"], 1e-9)
}

func TestSingleModelScores(t *testing.T) {
	sel, st := newLoadedSelector(t)
	st.RawScores.Set(testRawScores())

	explicit := sel.SingleModelScores(season, domain.MetricWISRatio, "FluSight-ensemble", "US", 0, day(2024, 12, 1), day(2025, 1, 31))
	require.Len(t, explicit, 2)
	assert.InDelta(t, 2, explicit[0].Score, 0)

	// Without bounds the model's reference dates apply: 2024-11-23 through
	// 2025-01-04 plus the horizon.
	defaulted := sel.SingleModelScores(season, domain.MetricWISRatio, "FluSight-ensemble", "US", 0, time.Time{}, time.Time{})
	require.Len(t, defaulted, 2)
	assert.InDelta(t, 1, defaulted[0].Score, 0)

	extended := sel.SingleModelScores(season, domain.MetricWISRatio, "FluSight-ensemble", "US", 1, time.Time{}, time.Time{})
	require.Len(t, extended, 1)
	assert.InDelta(t, 4, extended[0].Score, 0)

	assert.Empty(t, sel.SingleModelScores(season, domain.MetricMAPE, "FluSight-ensemble", "US", 0, time.Time{}, time.Time{}))
}

func TestScoreBoxplot(t *testing.T) {
	sel, st := newTestSelector(t)

	_, ok := sel.ScoreBoxplot(season, domain.MetricWISRatio, "FluSight-ensemble", []int{0})
	assert.False(t, ok)

	st.Precalculated.Set(testPrecalculated())
	fallback, ok := sel.ScoreBoxplot(season, domain.MetricMAPE, "FluSight-ensemble", []int{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 7, fallback.Median, 0)

	st.RawScores.Set(testRawScores())
	stats, ok := sel.ScoreBoxplot(season, domain.MetricWISRatio, "FluSight-ensemble", []int{0})
	require.True(t, ok)
	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, 1, stats.Min, 0)
	assert.InDelta(t, 5, stats.Max, 0)
	assert.InDelta(t, 2.5, stats.Median, 1e-9)
	assert.InDelta(t, 2.75, stats.Mean, 1e-9)

	all, ok := sel.ScoreBoxplot(season, domain.MetricWISRatio, "FluSight-ensemble", []int{0, 1})
	require.True(t, ok)
	assert.Equal(t, 5, all.Count)
}
