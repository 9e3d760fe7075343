package domain

import (
	"cmp"
	"slices"
	"time"
)

// TimeSeriesPoint is one dated value of a series. Date is always normalized.
type TimeSeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// SurveillancePoint is one week of reported hospital admissions for a state.
type SurveillancePoint struct {
	Date       time.Time `json:"date"`
	Admissions float64   `json:"admissions"`
	WeeklyRate float64   `json:"weeklyRate"`
}

// MissingAdmissions marks a week with no reported value.
const MissingAdmissions = -1

// PredictionPoint is one forecast for a target week issued on a reference date.
type PredictionPoint struct {
	ReferenceDate time.Time `json:"referenceDate"`
	TargetEndDate time.Time `json:"targetEndDate"`
	Horizon       int       `json:"horizon"`
	Median        float64   `json:"median"`
	Q05           float64   `json:"q05"`
	Q25           float64   `json:"q25"`
	Q75           float64   `json:"q75"`
	Q95           float64   `json:"q95"`
}

// Partition splits a season's reference dates relative to a model's forecasts.
type Partition string

const (
	PartitionPreForecast  Partition = "pre-forecast"
	PartitionFullForecast Partition = "full-forecast"
	PartitionForecastTail Partition = "forecast-tail"
	PartitionPostForecast Partition = "post-forecast"
)

// StatePredictions maps stateNum to its predictions sorted by target date.
type StatePredictions map[string][]PredictionPoint

// ModelForecast holds one model's predictions for one season. Partitions is
// keyed by partition, then by reference date key.
type ModelForecast struct {
	FirstRefDate   time.Time                                 `json:"firstPredRefDate"`
	LastRefDate    time.Time                                 `json:"lastPredRefDate"`
	LastTargetDate time.Time                                 `json:"lastPredTargetDate"`
	Partitions     map[Partition]map[string]StatePredictions `json:"partitions"`
}

// SeasonForecasts holds every model's predictions for one season along with
// the season-wide forecast bounds.
type SeasonForecasts struct {
	FirstRefDate   time.Time                `json:"firstPredRefDate"`
	LastRefDate    time.Time                `json:"lastPredRefDate"`
	LastTargetDate time.Time                `json:"lastPredTargetDate"`
	Models         map[string]ModelForecast `json:"models"`
}

// NowcastTrend is the probability of each trend direction on a reference date.
type NowcastTrend struct {
	ReferenceDate time.Time `json:"referenceDate"`
	Decrease      float64   `json:"decrease"`
	Increase      float64   `json:"increase"`
	Stable        float64   `json:"stable"`
}

// Location describes one state or the national aggregate.
type Location struct {
	StateNum   string `json:"stateNum"`
	State      string `json:"state"`
	StateName  string `json:"stateName"`
	Population int64  `json:"population"`
}

// Thresholds are the weekly-rate activity levels for one location.
type Thresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	VeryHigh float64 `json:"veryHigh"`
}

// Auxiliary is reference data shipped with the core bundle.
type Auxiliary struct {
	Locations  []Location            `json:"locations"`
	Thresholds map[string]Thresholds `json:"thresholds"`
}

// SeasonOption is one selectable full-range season.
type SeasonOption struct {
	Index         int       `json:"index"`
	SeasonID      string    `json:"seasonId"`
	DisplayString string    `json:"displayString"`
	TimeValue     string    `json:"timeValue"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
}

// Contains reports whether t falls within the season, inclusive.
func (s SeasonOption) Contains(t time.Time) bool {
	return !t.Before(s.StartDate) && !t.After(s.EndDate)
}

// Overlaps reports whether [start, end] intersects the season.
func (s SeasonOption) Overlaps(start, end time.Time) bool {
	return !end.Before(s.StartDate) && !start.After(s.EndDate)
}

// DynamicPeriod is a rolling evaluation window such as the last four weeks.
type DynamicPeriod struct {
	Index           int       `json:"index"`
	Label           string    `json:"label"`
	DisplayString   string    `json:"displayString"`
	SubDisplayValue string    `json:"subDisplayValue"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
}

// Metadata describes the seasons and models present in the core bundle.
type Metadata struct {
	FullRangeSeasons       []SeasonOption  `json:"fullRangeSeasons"`
	DynamicPeriods         []DynamicPeriod `json:"dynamicTimePeriod"`
	ModelNames             []string        `json:"modelNames"`
	DefaultSeasonTimeValue string          `json:"defaultSeasonTimeValue"`
}

// SnapshotMap maps a snapshot date key to the ground truth as it was reported
// on that date, by stateNum.
type SnapshotMap map[string]map[string][]SurveillancePoint

// CoreBundle is the normalized core forecast bundle.
type CoreBundle struct {
	Metadata          Metadata                                  `json:"metadata"`
	GroundTruth       map[string]map[string][]SurveillancePoint `json:"groundTruthData"`
	Predictions       map[string]SeasonForecasts                `json:"predictionData"`
	NowcastTrends     map[string]map[string][]NowcastTrend      `json:"nowcastTrends"`
	HistoricalDataMap SnapshotMap                               `json:"historicalDataMap"`
	Auxiliary         Auxiliary                                 `json:"auxiliaryData"`
	AuxiliarySource   AuxiliaryVariant                          `json:"auxiliarySource"`
}

// EmptyCoreBundle returns the initial shape of the core slice.
func EmptyCoreBundle() CoreBundle {
	return CoreBundle{
		GroundTruth:       map[string]map[string][]SurveillancePoint{},
		Predictions:       map[string]SeasonForecasts{},
		NowcastTrends:     map[string]map[string][]NowcastTrend{},
		HistoricalDataMap: SnapshotMap{},
		Auxiliary:         Auxiliary{Locations: []Location{}, Thresholds: map[string]Thresholds{}},
		AuxiliarySource:   AuxiliaryAbsent,
	}
}

// HistoricalSnapshots holds ground truth snapshots as they were reported on
// past dates.
type HistoricalSnapshots struct {
	Snapshots SnapshotMap `json:"snapshots"`
}

// EmptyHistoricalSnapshots returns the initial shape of the historical slice.
func EmptyHistoricalSnapshots() HistoricalSnapshots {
	return HistoricalSnapshots{Snapshots: SnapshotMap{}}
}

func sortSurveillance(points []SurveillancePoint) {
	slices.SortFunc(points, func(a, b SurveillancePoint) int { return a.Date.Compare(b.Date) })
}

func sortPredictions(points []PredictionPoint) {
	slices.SortFunc(points, func(a, b PredictionPoint) int {
		if c := a.TargetEndDate.Compare(b.TargetEndDate); c != 0 {
			return c
		}
		return cmp.Compare(a.Horizon, b.Horizon)
	})
}

func sortNowcasts(points []NowcastTrend) {
	slices.SortFunc(points, func(a, b NowcastTrend) int { return a.ReferenceDate.Compare(b.ReferenceDate) })
}
