package selector

import (
	"slices"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
)

// SeasonOverview holds the precalculated evaluation blocks of one season.
type SeasonOverview struct {
	SeasonID string                                                    `json:"seasonId"`
	IQR      map[string]map[string]map[string]domain.IQREntry          `json:"iqr"`
	StateMap map[string]map[string]map[string]map[int]domain.Aggregate `json:"stateMap"`
	Coverage map[string]map[int]map[int]domain.Aggregate               `json:"coverage"`
}

// SeasonOverview returns the precalculated blocks for seasonID. Missing blocks
// are empty maps.
func (s *Selector) SeasonOverview(seasonID string) SeasonOverview {
	out := SeasonOverview{
		SeasonID: seasonID,
		IQR:      map[string]map[string]map[string]domain.IQREntry{},
		StateMap: map[string]map[string]map[string]map[int]domain.Aggregate{},
		Coverage: map[string]map[int]map[int]domain.Aggregate{},
	}
	pre, ok := s.store.Precalculated.Select()
	if !ok {
		return out
	}
	if v, ok := pre.IQR[seasonID]; ok {
		out.IQR = v
	}
	if v, ok := pre.StateMap[seasonID]; ok {
		out.StateMap = v
	}
	if v, ok := pre.Coverage[seasonID]; ok {
		out.Coverage = v
	}
	return out
}

// StateMapMeans returns each state's mean score over the given horizons.
// States with no samples for any of the horizons are omitted.
func (s *Selector) StateMapMeans(seasonID, metric, model string, horizons []int) map[string]float64 {
	out := make(map[string]float64)
	pre, ok := s.store.Precalculated.Select()
	if !ok {
		return out
	}
	for state, byHorizon := range pre.StateMap[seasonID][metric][model] {
		var total domain.Aggregate
		for _, h := range horizons {
			total = total.Add(byHorizon[h])
		}
		if total.Count > 0 {
			out[state] = total.Mean()
		}
	}
	return out
}

// SingleModelScores returns a model's scores for one state and horizon whose
// target end date falls within [start, end]. A zero start or end defaults to
// the model's first reference date, or its last reference date extended by
// horizon weeks.
func (s *Selector) SingleModelScores(seasonID, metric, model, state string, horizon int, start, end time.Time) []domain.ScoreEntry {
	raw, ok := s.store.RawScores.Select()
	if !ok {
		return nil
	}
	if start.IsZero() || end.IsZero() {
		if mf, ok := s.modelForecast(seasonID, model); ok {
			if start.IsZero() {
				start = mf.FirstRefDate
			}
			if end.IsZero() && !mf.LastRefDate.IsZero() {
				end = domain.AddWeeks(mf.LastRefDate, horizon)
			}
		}
	}

	var out []domain.ScoreEntry
	for _, entry := range raw.Scores[seasonID][metric][model][state][horizon] {
		if !start.IsZero() && entry.TargetEndDate.Before(domain.NormalizeToUTCMidDay(start)) {
			continue
		}
		if !end.IsZero() && entry.TargetEndDate.After(domain.NormalizeToUTCMidDay(end)) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// ScoreBoxplot summarizes a model's raw scores across every state for the
// given horizons. When no raw samples are available the precalculated IQR
// entry for the same horizon set is returned instead.
func (s *Selector) ScoreBoxplot(seasonID, metric, model string, horizons []int) (domain.BoxplotStats, bool) {
	if raw, ok := s.store.RawScores.Select(); ok {
		var samples []float64
		for _, byHorizon := range raw.Scores[seasonID][metric][model] {
			for _, h := range horizons {
				for _, entry := range byHorizon[h] {
					samples = append(samples, entry.Score)
				}
			}
		}
		if len(samples) > 0 {
			return domain.CalculateBoxplotStats(samples), true
		}
	}
	if pre, ok := s.store.Precalculated.Select(); ok {
		if entry, ok := pre.IQR[seasonID][metric][model][domain.HorizonSetKey(slices.Sorted(slices.Values(horizons)))]; ok {
			return entry.BoxplotStats, true
		}
	}
	return domain.BoxplotStats{}, false
}

func (s *Selector) modelForecast(seasonID, model string) (domain.ModelForecast, bool) {
	core, ok := s.core()
	if !ok {
		return domain.ModelForecast{}, false
	}
	mf, ok := core.Predictions[seasonID].Models[model]
	return mf, ok
}
