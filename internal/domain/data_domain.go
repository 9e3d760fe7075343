package domain

import "fmt"

// DataDomain names one independently loadable category of dashboard data.
type DataDomain string

const (
	CoreData                DataDomain = "coreData"
	HistoricalGroundTruth   DataDomain = "historicalGroundTruth"
	EvaluationPrecalculated DataDomain = "evaluationPrecalculated"
	EvaluationRawScores     DataDomain = "evaluationRawScores"
	MapTopology             DataDomain = "mapTopology"
)

// AllDomains returns every known domain in a stable order.
func AllDomains() []DataDomain {
	return []DataDomain{
		CoreData,
		HistoricalGroundTruth,
		EvaluationPrecalculated,
		EvaluationRawScores,
		MapTopology,
	}
}

// ParseDataDomain converts a wire name into a DataDomain.
func ParseDataDomain(s string) (DataDomain, error) {
	for _, d := range AllDomains() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

func (d DataDomain) String() string { return string(d) }
