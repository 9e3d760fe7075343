package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/selector"
)

// defaultHorizon is the longest horizon published by the forecast hub.
const defaultHorizon = 3

func (s *Server) handleSeasons(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"seasons":    s.deps.Selector.Seasons(),
		"modelNames": s.deps.Selector.ModelNames(),
	}
	if earliest, latest, ok := s.deps.Selector.DateConstraints(); ok {
		resp["earliestDate"] = earliest
		resp["latestDate"] = latest
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": s.deps.Selector.Locations()})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	state := q.str("state", false)
	if state == "" {
		writeJSON(w, http.StatusOK, map[string]any{"thresholds": s.deps.Selector.Thresholds()})
		return
	}
	resp := map[string]any{"state": state, "thresholds": nil}
	if t, ok := s.deps.Selector.StateThresholds(state); ok {
		resp["thresholds"] = t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGroundTruth(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	state := q.str("state", true)
	start := q.date("start", true)
	end := q.date("end", true)
	horizon := q.integer("horizon", 0)
	if !q.ok(w) {
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, errors.New("end is before start"))
		return
	}

	points := s.deps.Selector.ExtendedGroundTruthInRange(start, end, horizon, state)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      state,
		"points":     nonNil(points),
		"admissions": selector.AdmissionsSeries(points),
	})
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	state := q.str("state", true)
	week := q.date("week", true)
	if !q.ok(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"snapshot": domain.DateKey(domain.AddWeeks(week, -1)),
		"points":   nonNil(s.deps.Selector.HistoricalDataForWeek(week, state)),
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	state := q.str("state", true)
	ref := q.date("reference_date", true)
	horizon := q.integer("horizon", defaultHorizon)
	models := q.list("models")
	if !q.ok(w) {
		return
	}
	if len(models) == 0 {
		models = s.deps.Selector.ModelNames()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":         state,
		"referenceDate": domain.DateKey(ref),
		"predictions":   s.deps.Selector.PredictionsForModels(models, state, ref, horizon),
	})
}

func (s *Server) handleNowcast(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	model := q.str("model", true)
	state := q.str("state", true)
	date := q.date("date", true)
	if !q.ok(w) {
		return
	}
	resp := map[string]any{"model": model, "state": state, "date": domain.DateKey(date), "trend": nil}
	if trend, ok := s.deps.Selector.NowcastTrendFor(model, date, state); ok {
		resp["trend"] = trend
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeasonOverview(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	season := q.str("season", true)
	if !q.ok(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Selector.SeasonOverview(season))
}

func (s *Server) handleStateMap(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	season := q.str("season", true)
	metric := q.str("metric", true)
	model := q.str("model", true)
	horizons := q.horizons("horizons")
	if !q.ok(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"season": season,
		"metric": metric,
		"model":  model,
		"means":  s.deps.Selector.StateMapMeans(season, metric, model, horizons),
	})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	season := q.str("season", true)
	metric := q.str("metric", true)
	model := q.str("model", true)
	state := q.str("state", true)
	horizon := q.integer("horizon", 0)
	start := q.date("start", false)
	end := q.date("end", false)
	if !q.ok(w) {
		return
	}
	scores := s.deps.Selector.SingleModelScores(season, metric, model, state, horizon, start, end)
	writeJSON(w, http.StatusOK, map[string]any{"scores": nonNil(scores)})
}

func (s *Server) handleBoxplot(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	season := q.str("season", true)
	metric := q.str("metric", true)
	model := q.str("model", true)
	horizons := q.horizons("horizons")
	if !q.ok(w) {
		return
	}
	resp := map[string]any{"season": season, "metric": metric, "model": model, "horizons": horizons, "stats": nil}
	if stats, ok := s.deps.Selector.ScoreBoxplot(season, metric, model, horizons); ok {
		resp["stats"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

