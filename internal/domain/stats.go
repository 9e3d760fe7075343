package domain

import (
	"math"
	"slices"
)

// BoxplotStats summarizes a numeric sample. The zero value is the empty-sample
// sentinel.
type BoxplotStats struct {
	Q05    float64 `json:"q05"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Q95    float64 `json:"q95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Count  int     `json:"count"`
}

// CalculateQuantile returns the linearly interpolated value at rank (n-1)*q of
// an ascending sample. An empty sample or a NaN q yields 0. q is clamped to
// [0, 1].
func CalculateQuantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 || math.IsNaN(q) {
		return 0
	}
	q = math.Max(0, math.Min(1, q))

	pos := float64(n-1) * q
	base := int(math.Floor(pos))
	rest := pos - float64(base)
	if base+1 < n {
		return sorted[base] + rest*(sorted[base+1]-sorted[base])
	}
	return sorted[base]
}

// CalculateBoxplotStats summarizes samples without modifying them.
func CalculateBoxplotStats(samples []float64) BoxplotStats {
	if len(samples) == 0 {
		return BoxplotStats{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return BoxplotStats{
		Q05:    CalculateQuantile(sorted, 0.05),
		Q25:    CalculateQuantile(sorted, 0.25),
		Median: CalculateQuantile(sorted, 0.5),
		Q75:    CalculateQuantile(sorted, 0.75),
		Q95:    CalculateQuantile(sorted, 0.95),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		Count:  len(sorted),
	}
}
