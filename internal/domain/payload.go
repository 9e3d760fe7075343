package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AuxiliaryVariant identifies which key carried the core bundle's auxiliary
// block.
type AuxiliaryVariant string

const (
	AuxiliaryAbsent    AuxiliaryVariant = "absent"
	AuxiliaryCamelCase AuxiliaryVariant = "auxiliaryData"
	AuxiliaryKebabCase AuxiliaryVariant = "auxiliary-data"
)

// Raw payload shapes as written by the data processing job.

type rawCoreBundle struct {
	Metadata      *rawMetadata  `json:"metadata"`
	MainData      *rawMainData  `json:"mainData"`
	AuxiliaryData *rawAuxiliary `json:"auxiliaryData"`
	AuxiliaryDash *rawAuxiliary `json:"auxiliary-data"`
}

type rawMetadata struct {
	Seasons struct {
		FullRangeSeasons  []rawSeason        `json:"fullRangeSeasons"`
		DynamicTimePeriod []rawDynamicPeriod `json:"dynamicTimePeriod"`
	} `json:"seasons"`
	ModelNames             []string `json:"modelNames"`
	DefaultSeasonTimeValue string   `json:"defaultSeasonTimeValue"`
}

type rawSeason struct {
	Index         int    `json:"index"`
	SeasonID      string `json:"seasonId"`
	DisplayString string `json:"displayString"`
	TimeValue     string `json:"timeValue"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
}

type rawDynamicPeriod struct {
	Index           int    `json:"index"`
	Label           string `json:"label"`
	DisplayString   string `json:"displayString"`
	SubDisplayValue string `json:"subDisplayValue"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

// rawDatedStates is keyed date, then stateNum.
type rawDatedStates map[string]map[string]rawSurveillance

type rawSurveillance struct {
	Admissions float64 `json:"admissions"`
	WeeklyRate float64 `json:"weeklyRate"`
}

type rawMainData struct {
	GroundTruthData   map[string]rawDatedStates                        `json:"groundTruthData"`
	PredictionData    map[string]map[string]json.RawMessage            `json:"predictionData"`
	NowcastTrends     map[string]map[string]map[string]rawNowcastTrend `json:"nowcastTrends"`
	HistoricalDataMap map[string]rawDatedStates                        `json:"historicalDataMap"`
}

type rawModelForecast struct {
	FirstPredRefDate   *string                                                  `json:"firstPredRefDate"`
	LastPredRefDate    *string                                                  `json:"lastPredRefDate"`
	LastPredTargetDate *string                                                  `json:"lastPredTargetDate"`
	Partitions         map[string]map[string]map[string]rawStatePredictionEntry `json:"partitions"`
}

type rawStatePredictionEntry struct {
	Predictions map[string]rawPrediction `json:"predictions"`
}

type rawPrediction struct {
	Horizon int     `json:"horizon"`
	Median  float64 `json:"median"`
	Q25     float64 `json:"q25"`
	Q75     float64 `json:"q75"`
	Q05     float64 `json:"q05"`
	Q95     float64 `json:"q95"`
}

type rawNowcastTrend struct {
	Decrease float64 `json:"decrease"`
	Increase float64 `json:"increase"`
	Stable   float64 `json:"stable"`
}

type rawAuxiliary struct {
	Locations  []rawLocation         `json:"locations"`
	Thresholds map[string]Thresholds `json:"thresholds"`
}

type rawLocation struct {
	StateNum   string  `json:"stateNum"`
	State      string  `json:"state"`
	StateName  string  `json:"stateName"`
	Population float64 `json:"population"`
}

type rawPrecalculated struct {
	IQR      map[string]map[string]map[string]map[string]IQREntry `json:"iqr"`
	StateMap StateMapTable                                        `json:"stateMap_aggregates"`
	Coverage CoverageTable                                        `json:"detailedCoverage_aggregates"`
}

type rawScoreEntry struct {
	ReferenceDate string  `json:"referenceDate"`
	TargetEndDate string  `json:"targetEndDate"`
	Score         float64 `json:"score"`
}

type rawScores map[string]map[string]map[string]map[string]map[int][]rawScoreEntry

// Tagged variants.

// auxiliaryPayload is the auxiliary block together with the key it came from.
type auxiliaryPayload struct {
	variant AuxiliaryVariant
	block   rawAuxiliary
}

// auxiliary selects the auxiliary variant. auxiliaryData wins over
// auxiliary-data when both are present.
func (b rawCoreBundle) auxiliary() auxiliaryPayload {
	switch {
	case b.AuxiliaryData != nil:
		return auxiliaryPayload{variant: AuxiliaryCamelCase, block: *b.AuxiliaryData}
	case b.AuxiliaryDash != nil:
		return auxiliaryPayload{variant: AuxiliaryKebabCase, block: *b.AuxiliaryDash}
	default:
		return auxiliaryPayload{variant: AuxiliaryAbsent}
	}
}

// evaluationPayload is the precalculated block together with the shape it was
// found in.
type evaluationPayload struct {
	shape         EvaluationShape
	precalculated rawPrecalculated
}

var precalculatedKeys = []string{"iqr", "stateMap_aggregates", "detailedCoverage_aggregates"}

// decodeEvaluationPayload accepts a payload with a "precalculated" wrapper or,
// failing that, one whose top level carries at least one precalculated key.
func decodeEvaluationPayload(top map[string]json.RawMessage) (evaluationPayload, error) {
	if inner, ok := top["precalculated"]; ok && !isJSONNull(inner) {
		var pre rawPrecalculated
		if err := json.Unmarshal(inner, &pre); err != nil {
			return evaluationPayload{}, fmt.Errorf("decode precalculated: %w", err)
		}
		return evaluationPayload{shape: EvaluationWrapped, precalculated: pre}, nil
	}

	bare := make(map[string]json.RawMessage, len(precalculatedKeys))
	for _, key := range precalculatedKeys {
		if v, ok := top[key]; ok {
			bare[key] = v
		}
	}
	if len(bare) == 0 {
		return evaluationPayload{}, fmt.Errorf("%w: evaluation payload has no precalculated block", ErrParse)
	}

	data, err := json.Marshal(bare)
	if err != nil {
		return evaluationPayload{}, fmt.Errorf("re-encode precalculated keys: %w", err)
	}
	var pre rawPrecalculated
	if err := json.Unmarshal(data, &pre); err != nil {
		return evaluationPayload{}, fmt.Errorf("decode bare precalculated: %w", err)
	}
	return evaluationPayload{shape: EvaluationBare, precalculated: pre}, nil
}

// Normalization.

// NormalizeCoreData decodes the core bundle into its canonical shape.
func NormalizeCoreData(data []byte) (CoreBundle, error) {
	var bundle rawCoreBundle
	if err := decodeObject(data, &bundle); err != nil {
		return CoreBundle{}, fmt.Errorf("decode core bundle: %w", err)
	}
	if bundle.Metadata == nil && bundle.MainData == nil {
		return CoreBundle{}, fmt.Errorf("%w: core bundle has neither metadata nor mainData", ErrParse)
	}

	out := EmptyCoreBundle()

	if bundle.Metadata != nil {
		md, err := normalizeMetadata(*bundle.Metadata)
		if err != nil {
			return CoreBundle{}, err
		}
		out.Metadata = md
	}

	if main := bundle.MainData; main != nil {
		for season, byDate := range main.GroundTruthData {
			states, err := normalizeDatedStates(byDate)
			if err != nil {
				return CoreBundle{}, fmt.Errorf("ground truth %s: %w", season, err)
			}
			out.GroundTruth[season] = states
		}

		for season, raw := range main.PredictionData {
			sf, err := normalizeSeasonForecasts(raw)
			if err != nil {
				return CoreBundle{}, fmt.Errorf("predictions %s: %w", season, err)
			}
			out.Predictions[season] = sf
		}

		for model, byDate := range main.NowcastTrends {
			trends, err := normalizeNowcasts(byDate)
			if err != nil {
				return CoreBundle{}, fmt.Errorf("nowcast %s: %w", model, err)
			}
			out.NowcastTrends[model] = trends
		}

		snapshots, err := normalizeSnapshots(main.HistoricalDataMap)
		if err != nil {
			return CoreBundle{}, err
		}
		out.HistoricalDataMap = snapshots
	}

	aux := bundle.auxiliary()
	out.Auxiliary = aux.normalize()
	out.AuxiliarySource = aux.variant

	return out, nil
}

// NormalizeHistoricalGroundTruth decodes the historical snapshot bundle. The
// snapshots may sit at the top level or under "historicalDataMap".
func NormalizeHistoricalGroundTruth(data []byte) (HistoricalSnapshots, error) {
	var top map[string]json.RawMessage
	if err := decodeObject(data, &top); err != nil {
		return HistoricalSnapshots{}, fmt.Errorf("decode historical bundle: %w", err)
	}

	body := data
	if inner, ok := top["historicalDataMap"]; ok {
		body = inner
	}

	var raw map[string]rawDatedStates
	if err := json.Unmarshal(body, &raw); err != nil {
		return HistoricalSnapshots{}, fmt.Errorf("decode historical snapshots: %w", err)
	}

	snapshots, err := normalizeSnapshots(raw)
	if err != nil {
		return HistoricalSnapshots{}, err
	}
	return HistoricalSnapshots{Snapshots: snapshots}, nil
}

// NormalizeEvaluationPrecalculated decodes the precalculated evaluation block.
// IQR stats are recomputed from their scores whenever scores are present.
func NormalizeEvaluationPrecalculated(data []byte) (PrecalculatedEvaluations, error) {
	var top map[string]json.RawMessage
	if err := decodeObject(data, &top); err != nil {
		return PrecalculatedEvaluations{}, fmt.Errorf("decode evaluation bundle: %w", err)
	}

	payload, err := decodeEvaluationPayload(top)
	if err != nil {
		return PrecalculatedEvaluations{}, err
	}

	out := EmptyPrecalculatedEvaluations()
	out.Shape = payload.shape

	for season, metrics := range payload.precalculated.IQR {
		for metric, models := range metrics {
			for model, horizons := range models {
				for key, entry := range horizons {
					canonical, err := canonicalHorizonKey(key)
					if err != nil {
						return PrecalculatedEvaluations{}, fmt.Errorf("iqr %s/%s/%s: %w", season, metric, model, err)
					}
					if len(entry.Scores) > 0 {
						entry.BoxplotStats = CalculateBoxplotStats(entry.Scores)
					}
					out.IQR.set(season, metric, model, canonical, entry)
				}
			}
		}
	}
	if payload.precalculated.StateMap != nil {
		out.StateMap = payload.precalculated.StateMap
	}
	if payload.precalculated.Coverage != nil {
		out.Coverage = payload.precalculated.Coverage
	}
	return out, nil
}

// NormalizeEvaluationRawScores decodes the "rawScores" block of the
// evaluation bundle. A bundle without raw scores yields an empty table.
func NormalizeEvaluationRawScores(data []byte) (RawScoreSet, error) {
	var top map[string]json.RawMessage
	if err := decodeObject(data, &top); err != nil {
		return RawScoreSet{}, fmt.Errorf("decode evaluation bundle: %w", err)
	}

	out := EmptyRawScoreSet()
	inner, ok := top["rawScores"]
	if !ok || isJSONNull(inner) {
		return out, nil
	}

	var raw rawScores
	if err := json.Unmarshal(inner, &raw); err != nil {
		return RawScoreSet{}, fmt.Errorf("decode raw scores: %w", err)
	}

	for season, metrics := range raw {
		for metric, models := range metrics {
			for model, states := range models {
				for state, horizons := range states {
					for horizon, entries := range horizons {
						scores := make([]ScoreEntry, 0, len(entries))
						for _, e := range entries {
							ref, err := ParseDate(e.ReferenceDate)
							if err != nil {
								return RawScoreSet{}, fmt.Errorf("raw scores %s/%s/%s/%s: %w", season, metric, model, state, err)
							}
							target, err := ParseDate(e.TargetEndDate)
							if err != nil {
								return RawScoreSet{}, fmt.Errorf("raw scores %s/%s/%s/%s: %w", season, metric, model, state, err)
							}
							scores = append(scores, ScoreEntry{ReferenceDate: ref, TargetEndDate: target, Score: e.Score})
						}
						sortScores(scores)
						out.Scores.set(season, metric, model, state, horizon, scores)
					}
				}
			}
		}
	}
	return out, nil
}

func normalizeMetadata(raw rawMetadata) (Metadata, error) {
	md := Metadata{
		FullRangeSeasons:       make([]SeasonOption, 0, len(raw.Seasons.FullRangeSeasons)),
		DynamicPeriods:         make([]DynamicPeriod, 0, len(raw.Seasons.DynamicTimePeriod)),
		ModelNames:             append([]string{}, raw.ModelNames...),
		DefaultSeasonTimeValue: raw.DefaultSeasonTimeValue,
	}

	for _, s := range raw.Seasons.FullRangeSeasons {
		start, end, err := seasonBounds(s)
		if err != nil {
			return Metadata{}, fmt.Errorf("season %q: %w", s.DisplayString, err)
		}
		id := s.SeasonID
		if id == "" {
			id = fmt.Sprintf("season-%d-%d", start.Year(), end.Year())
		}
		md.FullRangeSeasons = append(md.FullRangeSeasons, SeasonOption{
			Index:         s.Index,
			SeasonID:      id,
			DisplayString: s.DisplayString,
			TimeValue:     s.TimeValue,
			StartDate:     start,
			EndDate:       end,
		})
	}

	for _, p := range raw.Seasons.DynamicTimePeriod {
		start, err := ParseDate(p.StartDate)
		if err != nil {
			return Metadata{}, fmt.Errorf("period %q: %w", p.Label, err)
		}
		end, err := ParseDate(p.EndDate)
		if err != nil {
			return Metadata{}, fmt.Errorf("period %q: %w", p.Label, err)
		}
		md.DynamicPeriods = append(md.DynamicPeriods, DynamicPeriod{
			Index:           p.Index,
			Label:           p.Label,
			DisplayString:   p.DisplayString,
			SubDisplayValue: p.SubDisplayValue,
			StartDate:       start,
			EndDate:         end,
		})
	}

	return md, nil
}

// seasonBounds reads the season's dates, falling back to its "start/end"
// time value.
func seasonBounds(s rawSeason) (time.Time, time.Time, error) {
	startStr, endStr := s.StartDate, s.EndDate
	if startStr == "" || endStr == "" {
		parts := strings.Split(s.TimeValue, "/")
		if len(parts) != 2 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: no dates and malformed time value %q", ErrParse, s.TimeValue)
		}
		startStr, endStr = parts[0], parts[1]
	}
	start, err := ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: season ends before it starts", ErrParse)
	}
	return start, end, nil
}

func normalizeDatedStates(byDate rawDatedStates) (map[string][]SurveillancePoint, error) {
	out := make(map[string][]SurveillancePoint)
	for dateStr, states := range byDate {
		date, err := ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		for state, v := range states {
			out[state] = append(out[state], SurveillancePoint{
				Date:       date,
				Admissions: v.Admissions,
				WeeklyRate: v.WeeklyRate,
			})
		}
	}
	for _, points := range out {
		sortSurveillance(points)
	}
	return out, nil
}

func normalizeSnapshots(raw map[string]rawDatedStates) (SnapshotMap, error) {
	out := make(SnapshotMap, len(raw))
	for snapshot, byDate := range raw {
		key, err := CanonicalDateKey(snapshot)
		if err != nil {
			return nil, fmt.Errorf("historical snapshot: %w", err)
		}
		states, err := normalizeDatedStates(byDate)
		if err != nil {
			return nil, fmt.Errorf("historical snapshot %s: %w", key, err)
		}
		out[key] = states
	}
	return out, nil
}

// normalizeSeasonForecasts splits a season's prediction entries into the
// season-wide bounds and the per-model forecasts.
func normalizeSeasonForecasts(raw map[string]json.RawMessage) (SeasonForecasts, error) {
	sf := SeasonForecasts{Models: make(map[string]ModelForecast)}
	for key, msg := range raw {
		var err error
		switch key {
		case "firstPredRefDate":
			sf.FirstRefDate, err = optionalDate(msg)
		case "lastPredRefDate":
			sf.LastRefDate, err = optionalDate(msg)
		case "lastPredTargetDate":
			sf.LastTargetDate, err = optionalDate(msg)
		default:
			if !isJSONObject(msg) {
				continue
			}
			var m rawModelForecast
			if err = json.Unmarshal(msg, &m); err != nil {
				return SeasonForecasts{}, fmt.Errorf("model %s: %w", key, err)
			}
			var mf ModelForecast
			if mf, err = normalizeModelForecast(m); err != nil {
				return SeasonForecasts{}, fmt.Errorf("model %s: %w", key, err)
			}
			sf.Models[key] = mf
		}
		if err != nil {
			return SeasonForecasts{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return sf, nil
}

func normalizeModelForecast(raw rawModelForecast) (ModelForecast, error) {
	var mf ModelForecast
	var err error
	if mf.FirstRefDate, err = optionalDatePtr(raw.FirstPredRefDate); err != nil {
		return ModelForecast{}, err
	}
	if mf.LastRefDate, err = optionalDatePtr(raw.LastPredRefDate); err != nil {
		return ModelForecast{}, err
	}
	if mf.LastTargetDate, err = optionalDatePtr(raw.LastPredTargetDate); err != nil {
		return ModelForecast{}, err
	}

	mf.Partitions = make(map[Partition]map[string]StatePredictions, len(raw.Partitions))
	for name, byRef := range raw.Partitions {
		part := make(map[string]StatePredictions, len(byRef))
		for refStr, states := range byRef {
			ref, err := ParseDate(refStr)
			if err != nil {
				return ModelForecast{}, fmt.Errorf("partition %s: %w", name, err)
			}
			byState := make(StatePredictions)
			for state, entry := range states {
				if len(entry.Predictions) == 0 {
					continue
				}
				points := make([]PredictionPoint, 0, len(entry.Predictions))
				for targetStr, p := range entry.Predictions {
					target, err := ParseDate(targetStr)
					if err != nil {
						return ModelForecast{}, fmt.Errorf("partition %s: %w", name, err)
					}
					points = append(points, PredictionPoint{
						ReferenceDate: ref,
						TargetEndDate: target,
						Horizon:       p.Horizon,
						Median:        p.Median,
						Q05:           p.Q05,
						Q25:           p.Q25,
						Q75:           p.Q75,
						Q95:           p.Q95,
					})
				}
				sortPredictions(points)
				byState[state] = points
			}
			part[DateKey(ref)] = byState
		}
		mf.Partitions[Partition(name)] = part
	}
	return mf, nil
}

func normalizeNowcasts(byDate map[string]map[string]rawNowcastTrend) (map[string][]NowcastTrend, error) {
	out := make(map[string][]NowcastTrend)
	for dateStr, states := range byDate {
		date, err := ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		for state, v := range states {
			out[state] = append(out[state], NowcastTrend{
				ReferenceDate: date,
				Decrease:      v.Decrease,
				Increase:      v.Increase,
				Stable:        v.Stable,
			})
		}
	}
	for _, trends := range out {
		sortNowcasts(trends)
	}
	return out, nil
}

func (p auxiliaryPayload) normalize() Auxiliary {
	aux := Auxiliary{
		Locations:  make([]Location, 0, len(p.block.Locations)),
		Thresholds: make(map[string]Thresholds, len(p.block.Thresholds)),
	}
	for _, l := range p.block.Locations {
		aux.Locations = append(aux.Locations, Location{
			StateNum:   l.StateNum,
			State:      l.State,
			StateName:  l.StateName,
			Population: int64(l.Population),
		})
	}
	for state, t := range p.block.Thresholds {
		aux.Thresholds[state] = t
	}
	return aux
}

// canonicalHorizonKey sorts and re-joins a comma separated horizon set.
func canonicalHorizonKey(key string) (string, error) {
	horizons, err := ParseHorizonSet(key)
	if err != nil {
		return "", err
	}
	return HorizonSetKey(horizons), nil
}

// ParseHorizonSet parses "0,1,3" into ascending, de-duplicated horizons.
func ParseHorizonSet(key string) ([]int, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: empty horizon set", ErrParse)
	}
	seen := make(map[int]bool)
	var horizons []int
	for _, part := range strings.Split(key, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || h < 0 {
			return nil, fmt.Errorf("%w: invalid horizon %q", ErrParse, part)
		}
		if !seen[h] {
			seen[h] = true
			horizons = append(horizons, h)
		}
	}
	slices.Sort(horizons)
	return horizons, nil
}

// HorizonSetKey formats ascending horizons as an IQR key.
func HorizonSetKey(horizons []int) string {
	parts := make([]string, len(horizons))
	for i, h := range horizons {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}

func optionalDate(msg json.RawMessage) (time.Time, error) {
	var s *string
	if err := json.Unmarshal(msg, &s); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return optionalDatePtr(s)
}

func optionalDatePtr(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	return ParseDate(*s)
}

// decodeObject rejects payloads whose top level is not a JSON object.
func decodeObject(data []byte, v any) error {
	if !isJSONObject(data) {
		return fmt.Errorf("%w: payload is not a JSON object", ErrParse)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrParse, err)
	}
	return nil
}

func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isJSONNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
