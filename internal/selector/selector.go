// Package selector exposes read-only views derived from the store. Every
// selector returns an empty result when the domain it reads is not loaded;
// callers gate on the domain status when they need to tell the two apart.
package selector

import (
	"cmp"
	"slices"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/store"
)

// Selector reads one store.
type Selector struct {
	store *store.Store
}

// New creates a Selector over st.
func New(st *store.Store) *Selector {
	return &Selector{store: st}
}

func (s *Selector) core() (domain.CoreBundle, bool) {
	return s.store.Core.Select()
}

// Seasons returns the full-range seasons in metadata order.
func (s *Selector) Seasons() []domain.SeasonOption {
	core, ok := s.core()
	if !ok {
		return nil
	}
	return slices.Clone(core.Metadata.FullRangeSeasons)
}

// ModelNames returns the models published in the core bundle.
func (s *Selector) ModelNames() []string {
	core, ok := s.core()
	if !ok {
		return nil
	}
	return slices.Clone(core.Metadata.ModelNames)
}

// SeasonForDate returns the first season whose range contains t.
func (s *Selector) SeasonForDate(t time.Time) (domain.SeasonOption, bool) {
	core, ok := s.core()
	if !ok {
		return domain.SeasonOption{}, false
	}
	t = domain.NormalizeToUTCMidDay(t)
	for _, season := range core.Metadata.FullRangeSeasons {
		if season.SeasonID != "" && season.Contains(t) {
			return season, true
		}
	}
	return domain.SeasonOption{}, false
}

// RelevantSeasons returns the seasons overlapping [start, end] in metadata
// order.
func (s *Selector) RelevantSeasons(start, end time.Time) []domain.SeasonOption {
	core, ok := s.core()
	if !ok {
		return nil
	}
	start, end = domain.NormalizeToUTCMidDay(start), domain.NormalizeToUTCMidDay(end)
	var out []domain.SeasonOption
	for _, season := range core.Metadata.FullRangeSeasons {
		if season.SeasonID != "" && season.Overlaps(start, end) {
			out = append(out, season)
		}
	}
	return out
}

// DateConstraints returns the earliest start and latest end across all
// seasons.
func (s *Selector) DateConstraints() (earliest, latest time.Time, ok bool) {
	core, loaded := s.core()
	if !loaded || len(core.Metadata.FullRangeSeasons) == 0 {
		return time.Time{}, time.Time{}, false
	}
	seasons := core.Metadata.FullRangeSeasons
	earliest, latest = seasons[0].StartDate, seasons[0].EndDate
	for _, season := range seasons[1:] {
		if season.StartDate.Before(earliest) {
			earliest = season.StartDate
		}
		if season.EndDate.After(latest) {
			latest = season.EndDate
		}
	}
	return earliest, latest, true
}

// GroundTruthInRange collects a state's observations dated within
// [start, end] across every overlapping season. Points are sorted by date and
// deduplicated; the season listed first wins a duplicate date.
func (s *Selector) GroundTruthInRange(start, end time.Time, state string) []domain.SurveillancePoint {
	core, ok := s.core()
	if !ok {
		return nil
	}
	start, end = domain.NormalizeToUTCMidDay(start), domain.NormalizeToUTCMidDay(end)

	seen := make(map[string]bool)
	var out []domain.SurveillancePoint
	for _, season := range s.RelevantSeasons(start, end) {
		for _, p := range core.GroundTruth[season.SeasonID][state] {
			if p.Date.Before(start) || p.Date.After(end) {
				continue
			}
			key := domain.DateKey(p.Date)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.SurveillancePoint) int { return a.Date.Compare(b.Date) })
	return out
}

// ExtendedGroundTruthInRange is GroundTruthInRange with the end pushed out by
// horizon weeks so the observed values behind the longest forecast are
// included.
func (s *Selector) ExtendedGroundTruthInRange(start, end time.Time, horizon int, state string) []domain.SurveillancePoint {
	if horizon > 0 {
		end = domain.AddWeeks(end, horizon)
	}
	return s.GroundTruthInRange(start, end, state)
}

// AdmissionsSeries projects observations onto their admissions values.
func AdmissionsSeries(points []domain.SurveillancePoint) []domain.TimeSeriesPoint {
	out := make([]domain.TimeSeriesPoint, len(points))
	for i, p := range points {
		out[i] = domain.TimeSeriesPoint{Date: p.Date, Value: p.Admissions}
	}
	return out
}

// HistoricalDataForWeek returns the data as it was published one week before
// week. The historical domain is read first; the snapshots embedded in the
// core bundle are the fallback.
func (s *Selector) HistoricalDataForWeek(week time.Time, state string) []domain.SurveillancePoint {
	key := domain.DateKey(domain.AddWeeks(domain.NormalizeToUTCMidDay(week), -1))

	if hist, ok := s.store.Historical.Select(); ok {
		if snapshot, ok := hist.Snapshots[key]; ok {
			return slices.Clone(snapshot[state])
		}
	}
	if core, ok := s.core(); ok {
		if snapshot, ok := core.HistoricalDataMap[key]; ok {
			return slices.Clone(snapshot[state])
		}
	}
	return nil
}

var forecastPartitions = []domain.Partition{domain.PartitionFullForecast, domain.PartitionForecastTail}

// PredictionsForModels returns, per model, the state's predictions issued on
// referenceDate with at most the given horizon. The full-forecast partition
// is consulted before forecast-tail. Models without matching predictions are
// omitted.
func (s *Selector) PredictionsForModels(models []string, state string, referenceDate time.Time, horizon int) map[string][]domain.PredictionPoint {
	out := make(map[string][]domain.PredictionPoint)
	season, ok := s.SeasonForDate(referenceDate)
	if !ok {
		return out
	}
	core, _ := s.core()
	forecasts := core.Predictions[season.SeasonID]
	ref := domain.DateKey(referenceDate)

	for _, model := range models {
		mf, ok := forecasts.Models[model]
		if !ok {
			continue
		}
		for _, partition := range forecastPartitions {
			points, ok := mf.Partitions[partition][ref][state]
			if !ok {
				continue
			}
			var filtered []domain.PredictionPoint
			for _, p := range points {
				if p.Horizon <= horizon {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) > 0 {
				out[model] = filtered
			}
			break
		}
	}
	return out
}

// NowcastTrendFor returns the model's trend probabilities for state on date.
func (s *Selector) NowcastTrendFor(model string, date time.Time, state string) (domain.NowcastTrend, bool) {
	core, ok := s.core()
	if !ok {
		return domain.NowcastTrend{}, false
	}
	for _, trend := range core.NowcastTrends[model][state] {
		if domain.IsUTCDateEqual(trend.ReferenceDate, date) {
			return trend, true
		}
	}
	return domain.NowcastTrend{}, false
}

// Locations returns the known locations.
func (s *Selector) Locations() []domain.Location {
	core, ok := s.core()
	if !ok {
		return nil
	}
	return slices.Clone(core.Auxiliary.Locations)
}

// StateThreshold pairs a location with its activity thresholds.
type StateThreshold struct {
	StateNum string `json:"location"`
	domain.Thresholds
}

// Thresholds lists every location's thresholds ordered by stateNum.
func (s *Selector) Thresholds() []StateThreshold {
	core, ok := s.core()
	if !ok {
		return nil
	}
	out := make([]StateThreshold, 0, len(core.Auxiliary.Thresholds))
	for state, t := range core.Auxiliary.Thresholds {
		out = append(out, StateThreshold{StateNum: state, Thresholds: t})
	}
	slices.SortFunc(out, func(a, b StateThreshold) int { return cmp.Compare(a.StateNum, b.StateNum) })
	return out
}

// StateThresholds returns the thresholds of one location.
func (s *Selector) StateThresholds(state string) (domain.Thresholds, bool) {
	core, ok := s.core()
	if !ok {
		return domain.Thresholds{}, false
	}
	t, ok := core.Auxiliary.Thresholds[state]
	return t, ok
}
