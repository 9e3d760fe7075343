// Command genmock writes a deterministic forecast dashboard dataset: the core
// bundle, historical ground truth snapshots, evaluation scores, and a minimal
// state topology. Values come from a seeded generator anchored on a fixed
// clock, so repeated runs produce identical files. The output directory uses
// the service's default asset paths and can be served with DATA_DIR.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -weeks 20
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// anchorDate is the last observed week (a Saturday).
var anchorDate = time.Date(2025, time.January, 11, 12, 0, 0, 0, time.UTC)

const maxHorizon = 3

type location struct {
	stateNum   string
	state      string
	name       string
	population int
	base       float64 // peak weekly admissions
}

var locations = []location{
	{"US", "US", "United States", 334914895, 24000},
	{"06", "CA", "California", 38965193, 2600},
	{"36", "NY", "New York", 19571216, 1700},
	{"48", "TX", "Texas", 30503301, 2100},
	{"01", "AL", "Alabama", 5108468, 420},
}

var models = []string{"FluSight-ensemble", "MOBS-GLEAM_FLUH", "UMass-flusion"}

type generator struct {
	rng      *rand.Rand
	anchor   time.Time
	weeks    int
	seasonID string
	truth    map[string]map[string]float64 // date -> state -> admissions
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory")
	weeks := flag.Int("weeks", 20, "weeks of ground truth to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" || *weeks < maxHorizon+2 {
		flag.Usage()
		return fmt.Errorf("missing -out or -weeks below %d", maxHorizon+2)
	}

	clock := clockwork.NewFakeClockAt(anchorDate)
	g := &generator{
		rng:      rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
		anchor:   domain.NormalizeToUTCMidDay(clock.Now()),
		weeks:    *weeks,
		seasonID: "season-2024-2025",
	}
	g.truth = g.groundTruth()

	files := []struct {
		path    string
		payload any
	}{
		{"app_data_core.json", g.coreBundle()},
		{"historical-ground-truth-data/historical-ground-truth-data.json", g.historical()},
		{"app_data_evaluations.json", g.evaluations()},
		{"states-10m.json", topology()},
	}
	for _, f := range files {
		path := filepath.Join(*out, filepath.FromSlash(f.path))
		if err := writeJSON(path, f.payload); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		log.Printf("wrote %s", path)
	}

	printStats(g)
	return nil
}

func (g *generator) week(i int) time.Time {
	return domain.AddWeeks(g.anchor, i-(g.weeks-1))
}

// groundTruth draws a seasonal curve per location. The second location's
// oldest week is reported missing.
func (g *generator) groundTruth() map[string]map[string]float64 {
	truth := make(map[string]map[string]float64, g.weeks)
	for i := range g.weeks {
		date := domain.DateKey(g.week(i))
		truth[date] = make(map[string]float64, len(locations))
		phase := float64(i) / float64(g.weeks-1)
		for _, loc := range locations {
			curve := 0.15 + 0.85*math.Exp(-math.Pow((phase-0.8)*3, 2))
			noise := 1 + (g.rng.Float64()-0.5)*0.1
			truth[date][loc.stateNum] = math.Round(loc.base * curve * noise)
		}
	}
	truth[domain.DateKey(g.week(0))][locations[1].stateNum] = domain.MissingAdmissions
	return truth
}

func (g *generator) observation(date, state string) map[string]float64 {
	admissions := g.truth[date][state]
	rate := 0.0
	if admissions >= 0 {
		rate = round2(admissions / float64(populationOf(state)) * 100000)
	}
	return map[string]float64{"admissions": admissions, "weeklyRate": rate}
}

func (g *generator) coreBundle() map[string]any {
	seasonStart := time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)

	groundTruth := map[string]any{}
	for date, states := range g.truth {
		byState := map[string]any{}
		for state := range states {
			byState[state] = g.observation(date, state)
		}
		groundTruth[date] = byState
	}

	return map[string]any{
		"metadata": map[string]any{
			"seasons": map[string]any{
				"fullRangeSeasons": []map[string]any{
					{"index": 0, "seasonId": "season-2023-2024", "displayString": "2023-2024", "timeValue": "2023-08-01/2024-07-31", "startDate": "2023-08-01", "endDate": "2024-07-31"},
					{"index": 1, "seasonId": g.seasonID, "displayString": "2024-2025 (Ongoing)", "timeValue": seasonStart.Format(domain.DateLayout) + "/" + domain.DateKey(g.anchor), "startDate": seasonStart.Format(domain.DateLayout), "endDate": domain.DateKey(g.anchor)},
				},
				"dynamicTimePeriod": []map[string]any{
					{"index": 0, "label": "last-4-weeks", "displayString": "Last 4 weeks", "isDynamic": true, "startDate": domain.AddWeeks(g.anchor, -3).Format(time.RFC3339), "endDate": g.anchor.Format(time.RFC3339)},
				},
			},
			"modelNames":             models,
			"defaultSeasonTimeValue": seasonStart.Format(domain.DateLayout) + "/" + domain.DateKey(g.anchor),
		},
		"mainData": map[string]any{
			"groundTruthData": map[string]any{g.seasonID: groundTruth},
			"predictionData":  map[string]any{g.seasonID: g.predictions()},
			"nowcastTrends":   g.nowcasts(),
		},
		"auxiliary-data": map[string]any{
			"locations":  auxiliaryLocations(),
			"thresholds": thresholds(),
		},
	}
}

// refDates are the last eight ground truth weeks, oldest first.
func (g *generator) refDates() []time.Time {
	refs := make([]time.Time, 0, 8)
	for i := g.weeks - 8; i < g.weeks; i++ {
		if i >= 0 {
			refs = append(refs, g.week(i))
		}
	}
	return refs
}

func (g *generator) predictions() map[string]any {
	refs := g.refDates()
	season := map[string]any{
		"firstPredRefDate":   domain.DateKey(refs[0]),
		"lastPredRefDate":    domain.DateKey(refs[len(refs)-1]),
		"lastPredTargetDate": domain.DateKey(domain.AddWeeks(refs[len(refs)-1], maxHorizon)),
	}
	for m, model := range models {
		full := map[string]any{}
		tail := map[string]any{}
		for _, ref := range refs {
			byState := map[string]any{}
			for _, loc := range locations {
				byState[loc.stateNum] = map[string]any{"predictions": g.modelPredictions(m, ref, loc)}
			}
			if domain.AddWeeks(ref, maxHorizon).After(g.anchor) {
				tail[domain.DateKey(ref)] = byState
			} else {
				full[domain.DateKey(ref)] = byState
			}
		}
		season[model] = map[string]any{
			"firstPredRefDate":   domain.DateKey(refs[0]),
			"lastPredRefDate":    domain.DateKey(refs[len(refs)-1]),
			"lastPredTargetDate": domain.DateKey(domain.AddWeeks(refs[len(refs)-1], maxHorizon)),
			"partitions": map[string]any{
				"pre-forecast":  map[string]any{},
				"full-forecast": full,
				"forecast-tail": tail,
				"post-forecast": map[string]any{},
			},
		}
	}
	return season
}

func (g *generator) modelPredictions(model int, ref time.Time, loc location) map[string]any {
	last := g.truth[domain.DateKey(ref)][loc.stateNum]
	if last < 0 {
		last = loc.base * 0.2
	}
	bias := 1 + float64(model-1)*0.04
	out := map[string]any{}
	for h := 0; h <= maxHorizon; h++ {
		median := math.Round(last * bias * (1 + 0.03*float64(h)) * (1 + (g.rng.Float64()-0.5)*0.06))
		spread := median * (0.08 + 0.05*float64(h))
		out[domain.DateKey(domain.AddWeeks(ref, h))] = map[string]any{
			"horizon": h,
			"median":  median,
			"q25":     math.Round(median - spread*0.5),
			"q75":     math.Round(median + spread*0.5),
			"q05":     math.Round(median - spread*1.5),
			"q95":     math.Round(median + spread*1.5),
		}
	}
	return out
}

func (g *generator) nowcasts() map[string]any {
	byDate := map[string]any{}
	for _, ref := range g.refDates() {
		byState := map[string]any{}
		for _, loc := range locations {
			inc := round2(0.2 + g.rng.Float64()*0.5)
			dec := round2((1 - inc) * g.rng.Float64())
			byState[loc.stateNum] = map[string]float64{
				"increase": inc,
				"decrease": dec,
				"stable":   round2(1 - inc - dec),
			}
		}
		byDate[domain.DateKey(ref)] = byState
	}
	return map[string]any{models[0]: byDate}
}

// historical publishes, for each of the last four weeks, the series as it
// looked that week: later weeks missing and the newest value under-reported.
func (g *generator) historical() map[string]any {
	snapshots := map[string]any{}
	for i := g.weeks - 4; i < g.weeks; i++ {
		snapshot := g.week(i)
		byDate := map[string]any{}
		for j := 0; j <= i; j++ {
			date := domain.DateKey(g.week(j))
			byState := map[string]any{}
			for _, loc := range locations {
				obs := g.observation(date, loc.stateNum)
				if j == i && obs["admissions"] > 0 {
					obs["admissions"] = math.Round(obs["admissions"] * 0.92)
				}
				byState[loc.stateNum] = obs
			}
			byDate[date] = byState
		}
		snapshots[domain.DateKey(snapshot)] = byDate
	}
	return map[string]any{"historicalDataMap": snapshots}
}

func (g *generator) evaluations() map[string]any {
	metrics := []string{domain.MetricWISRatio, domain.MetricMAPE}

	raw := map[string]any{}
	iqr := map[string]any{}
	stateMap := map[string]any{}
	coverage := map[string]any{}

	for _, metric := range metrics {
		rawByModel := map[string]any{}
		iqrByModel := map[string]any{}
		mapByModel := map[string]any{}
		for m, model := range models {
			rawByState := map[string]any{}
			mapByState := map[string]any{}
			byHorizonSet := map[string][]float64{}
			for _, loc := range locations {
				rawByHorizon := map[string]any{}
				mapByHorizon := map[string]any{}
				for h := 0; h <= maxHorizon; h++ {
					entries, scores := g.scores(metric, m, h)
					rawByHorizon[fmt.Sprint(h)] = entries
					mapByHorizon[fmt.Sprint(h)] = aggregate(scores)
					key := fmt.Sprint(h)
					byHorizonSet[key] = append(byHorizonSet[key], scores...)
					byHorizonSet["0,1,2,3"] = append(byHorizonSet["0,1,2,3"], scores...)
				}
				rawByState[loc.stateNum] = rawByHorizon
				mapByState[loc.stateNum] = mapByHorizon
			}
			iqrEntries := map[string]any{}
			for key, scores := range byHorizonSet {
				slices.Sort(scores)
				iqrEntries[key] = map[string]any{"scores": scores}
			}
			rawByModel[model] = rawByState
			iqrByModel[model] = iqrEntries
			mapByModel[model] = mapByState
		}
		raw[metric] = rawByModel
		iqr[metric] = iqrByModel
		stateMap[metric] = mapByModel
	}

	for _, model := range models {
		byHorizon := map[string]any{}
		for h := 0; h <= maxHorizon; h++ {
			n := len(locations) * len(g.scoredRefs(h))
			byHorizon[fmt.Sprint(h)] = map[string]any{
				"50": map[string]any{"sum": math.Round(float64(n) * (0.55 - 0.03*float64(h))), "count": n},
				"95": map[string]any{"sum": math.Round(float64(n) * (0.93 - 0.02*float64(h))), "count": n},
			}
		}
		coverage[model] = byHorizon
	}

	return map[string]any{
		"precalculated": map[string]any{
			"iqr":                         map[string]any{g.seasonID: iqr},
			"stateMap_aggregates":         map[string]any{g.seasonID: stateMap},
			"detailedCoverage_aggregates": map[string]any{g.seasonID: coverage},
		},
		"rawScores": map[string]any{g.seasonID: raw},
	}
}

// scoredRefs are the reference dates whose horizon-h target has been observed.
func (g *generator) scoredRefs(h int) []time.Time {
	var refs []time.Time
	for _, ref := range g.refDates() {
		if !domain.AddWeeks(ref, h).After(g.anchor) {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (g *generator) scores(metric string, model, h int) ([]map[string]any, []float64) {
	refs := g.scoredRefs(h)
	entries := make([]map[string]any, 0, len(refs))
	scores := make([]float64, 0, len(refs))
	for _, ref := range refs {
		var score float64
		switch metric {
		case domain.MetricMAPE:
			score = round2(5 + float64(h)*3 + float64(model)*1.5 + g.rng.Float64()*8)
		default:
			score = round2(0.6 + float64(h)*0.08 + float64(model)*0.05 + g.rng.Float64()*0.4)
		}
		entries = append(entries, map[string]any{
			"referenceDate": domain.DateKey(ref),
			"targetEndDate": domain.DateKey(domain.AddWeeks(ref, h)),
			"score":         score,
		})
		scores = append(scores, score)
	}
	return entries, scores
}

func aggregate(scores []float64) map[string]any {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return map[string]any{"sum": round2(sum), "count": len(scores)}
}

func auxiliaryLocations() []map[string]any {
	out := make([]map[string]any, len(locations))
	for i, loc := range locations {
		out[i] = map[string]any{
			"stateNum":   loc.stateNum,
			"state":      loc.state,
			"stateName":  loc.name,
			"population": loc.population,
		}
	}
	return out
}

func thresholds() map[string]any {
	out := map[string]any{}
	for _, loc := range locations {
		perCapita := loc.base / float64(loc.population) * 100000
		out[loc.stateNum] = map[string]float64{
			"medium":   round2(perCapita * 0.3),
			"high":     round2(perCapita * 0.6),
			"veryHigh": round2(perCapita * 0.9),
		}
	}
	return out
}

func topology() map[string]any {
	geometries := make([]map[string]any, 0, len(locations))
	for _, loc := range locations[1:] {
		geometries = append(geometries, map[string]any{
			"type":       "Polygon",
			"id":         loc.stateNum,
			"arcs":       [][]int{{0}},
			"properties": map[string]string{"name": loc.name},
		})
	}
	return map[string]any{
		"type": "Topology",
		"objects": map[string]any{
			"states": map[string]any{"type": "GeometryCollection", "geometries": geometries},
			"nation": map[string]any{"type": "GeometryCollection", "geometries": []any{}},
		},
		"arcs": [][][]int{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
	}
}

func populationOf(state string) int {
	for _, loc := range locations {
		if loc.stateNum == state {
			return loc.population
		}
	}
	return 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(g *generator) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Anchor week: %s\n", domain.DateKey(g.anchor))
	fmt.Printf("Ground truth: %d weeks x %d locations\n", g.weeks, len(locations))
	fmt.Printf("Reference dates: %d (%s to %s)\n", len(g.refDates()),
		domain.DateKey(g.refDates()[0]), domain.DateKey(g.refDates()[len(g.refDates())-1]))
	for h := 0; h <= maxHorizon; h++ {
		fmt.Printf("Scored refs at horizon %d: %d\n", h, len(g.scoredRefs(h)))
	}
	fmt.Printf("Models: %v\n", models)
}
