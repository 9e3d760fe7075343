package domain

import (
	"slices"
	"time"
)

// Score metrics present in the evaluation bundle.
const (
	MetricWISRatio = "WIS/Baseline"
	MetricMAPE     = "MAPE"
)

// Aggregate is a running sum used to average scores across periods.
type Aggregate struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// Mean returns Sum/Count, or 0 when the aggregate is empty.
func (a Aggregate) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Add returns the combination of two aggregates.
func (a Aggregate) Add(b Aggregate) Aggregate {
	return Aggregate{Sum: a.Sum + b.Sum, Count: a.Count + b.Count}
}

// IQREntry is the score distribution for one season, metric, model and
// horizon set.
type IQREntry struct {
	BoxplotStats
	Scores []float64 `json:"scores,omitempty"`
}

// ScoreEntry is one raw score of a forecast against its target week.
type ScoreEntry struct {
	ReferenceDate time.Time `json:"referenceDate"`
	TargetEndDate time.Time `json:"targetEndDate"`
	Score         float64   `json:"score"`
}

// EvaluationShape records which payload variant produced the precalculated
// block.
type EvaluationShape string

const (
	EvaluationWrapped EvaluationShape = "wrapped"
	EvaluationBare    EvaluationShape = "bare"
)

// IQRTable is keyed season, metric, model, horizon set ("0", "0,1", ...).
type IQRTable map[string]map[string]map[string]map[string]IQREntry

// StateMapTable is keyed season, metric, model, stateNum, horizon.
type StateMapTable map[string]map[string]map[string]map[string]map[int]Aggregate

// CoverageTable is keyed season, model, horizon, prediction interval level.
type CoverageTable map[string]map[string]map[int]map[int]Aggregate

// RawScoreTable is keyed season, metric, model, stateNum, horizon. Entries are
// sorted by reference date.
type RawScoreTable map[string]map[string]map[string]map[string]map[int][]ScoreEntry

// PrecalculatedEvaluations is the normalized precalculated evaluation block.
type PrecalculatedEvaluations struct {
	Shape    EvaluationShape `json:"shape,omitempty"`
	IQR      IQRTable        `json:"iqr"`
	StateMap StateMapTable   `json:"stateMap_aggregates"`
	Coverage CoverageTable   `json:"detailedCoverage_aggregates"`
}

// EmptyPrecalculatedEvaluations returns the initial shape of the slice.
func EmptyPrecalculatedEvaluations() PrecalculatedEvaluations {
	return PrecalculatedEvaluations{
		IQR:      IQRTable{},
		StateMap: StateMapTable{},
		Coverage: CoverageTable{},
	}
}

// RawScoreSet is the normalized raw score block.
type RawScoreSet struct {
	Scores RawScoreTable `json:"rawScores"`
}

// EmptyRawScoreSet returns the initial shape of the slice.
func EmptyRawScoreSet() RawScoreSet {
	return RawScoreSet{Scores: RawScoreTable{}}
}

func (t IQRTable) set(season, metric, model, horizons string, entry IQREntry) {
	if t[season] == nil {
		t[season] = make(map[string]map[string]map[string]IQREntry)
	}
	if t[season][metric] == nil {
		t[season][metric] = make(map[string]map[string]IQREntry)
	}
	if t[season][metric][model] == nil {
		t[season][metric][model] = make(map[string]IQREntry)
	}
	t[season][metric][model][horizons] = entry
}

func (t RawScoreTable) set(season, metric, model, state string, horizon int, entries []ScoreEntry) {
	if t[season] == nil {
		t[season] = make(map[string]map[string]map[string]map[int][]ScoreEntry)
	}
	if t[season][metric] == nil {
		t[season][metric] = make(map[string]map[string]map[int][]ScoreEntry)
	}
	if t[season][metric][model] == nil {
		t[season][metric][model] = make(map[string]map[int][]ScoreEntry)
	}
	if t[season][metric][model][state] == nil {
		t[season][metric][model][state] = make(map[int][]ScoreEntry)
	}
	t[season][metric][model][state][horizon] = entries
}

func sortScores(entries []ScoreEntry) {
	slices.SortStableFunc(entries, func(a, b ScoreEntry) int { return a.ReferenceDate.Compare(b.ReferenceDate) })
}
