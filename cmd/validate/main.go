// Command validate loads a forecast data directory through the same pipelines
// the service uses and checks the normalized result for integrity: every
// domain loads, dates sit at midday UTC, boxplot statistics are ordered,
// ground truth states have locations, seasons do not overlap, and prediction
// horizons agree with their dates.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data/mock
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/adapter/source"
	"github.com/couchcryptid/forecast-data-service/internal/config"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/couchcryptid/forecast-data-service/internal/pipeline"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "", "directory containing the forecast data assets")
	timeout := flag.Duration("timeout", time.Minute, "overall load timeout")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	code := run(ctx, *dataDir, cfg.Paths)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, dataDir string, paths map[domain.DataDomain]string) int {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	st := store.New(clockwork.NewRealClock(), metrics)
	src := source.NewFileSource(dataDir, metrics)

	set := pipeline.NewSet(st, logger,
		pipeline.NewCoreData(src, paths[domain.CoreData], st, logger, metrics),
		pipeline.NewHistoricalGroundTruth(src, paths[domain.HistoricalGroundTruth], st, logger, metrics),
		pipeline.NewEvaluationPrecalculated(src, paths[domain.EvaluationPrecalculated], st, logger, metrics),
		pipeline.NewEvaluationRawScores(src, paths[domain.EvaluationRawScores], st, logger, metrics),
		pipeline.NewTopology(src, paths[domain.MapTopology], st, logger, metrics),
	)

	fmt.Println("=== Forecast Data Integrity Validation ===")
	fmt.Println()
	fmt.Printf("Data directory: %s\n", dataDir)

	loadErr := set.LoadAll(ctx, domain.AllDomains()...)

	core, _ := st.Core.Select()
	historical, _ := st.Historical.Select()
	precalculated, _ := st.Precalculated.Select()
	raw, _ := st.RawScores.Select()

	phases := []*phase{
		validateLoads(st, loadErr),
		validateDates(core, historical, raw),
		validateBoxplots(precalculated),
		validateLocations(core),
		validateSeasons(core),
		validateHorizons(core),
	}

	fmt.Println()
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Core: %d seasons, %d models, %d locations; %d historical snapshots\n",
		len(core.Metadata.FullRangeSeasons), len(core.Metadata.ModelNames),
		len(core.Auxiliary.Locations), len(historical.Snapshots))

	failed := false
	for _, p := range phases {
		if p.passed() {
			continue
		}
		failed = true
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if !failed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateLoads(st *store.Store, loadErr error) *phase {
	p := &phase{name: "Domain loads"}
	if loadErr != nil {
		p.errorf("load: %v", loadErr)
	}
	for _, status := range st.Snapshot() {
		if status.State != domain.StateLoaded {
			p.errorf("%s is %s", status.Domain, status.State)
		}
	}
	return p
}

func validateDates(core domain.CoreBundle, historical domain.HistoricalSnapshots, raw domain.RawScoreSet) *phase {
	p := &phase{name: "Dates normalized to 12:00 UTC"}
	check := func(where string, t time.Time) {
		if !t.IsZero() && !t.Equal(domain.NormalizeToUTCMidDay(t)) {
			p.errorf("%s: %s", where, t.Format(time.RFC3339))
		}
	}

	for _, s := range core.Metadata.FullRangeSeasons {
		check("season "+s.SeasonID+" start", s.StartDate)
		check("season "+s.SeasonID+" end", s.EndDate)
	}
	for season, states := range core.GroundTruth {
		for state, points := range states {
			for _, pt := range points {
				check(fmt.Sprintf("ground truth %s/%s", season, state), pt.Date)
			}
		}
	}
	for season, sf := range core.Predictions {
		for model, mf := range sf.Models {
			for _, byRef := range mf.Partitions {
				for _, byState := range byRef {
					for state, points := range byState {
						for _, pt := range points {
							where := fmt.Sprintf("prediction %s/%s/%s", season, model, state)
							check(where, pt.ReferenceDate)
							check(where, pt.TargetEndDate)
						}
					}
				}
			}
		}
	}
	for model, states := range core.NowcastTrends {
		for state, trends := range states {
			for _, tr := range trends {
				check(fmt.Sprintf("nowcast %s/%s", model, state), tr.ReferenceDate)
			}
		}
	}
	for snapshot, states := range historical.Snapshots {
		for state, points := range states {
			for _, pt := range points {
				check(fmt.Sprintf("historical %s/%s", snapshot, state), pt.Date)
			}
		}
	}
	for season, metrics := range raw.Scores {
		for metric, models := range metrics {
			for model, states := range models {
				for state, horizons := range states {
					for h, entries := range horizons {
						where := fmt.Sprintf("raw score %s/%s/%s/%s/%d", season, metric, model, state, h)
						for _, e := range entries {
							check(where, e.ReferenceDate)
							check(where, e.TargetEndDate)
						}
					}
				}
			}
		}
	}
	return p
}

func validateBoxplots(pre domain.PrecalculatedEvaluations) *phase {
	p := &phase{name: "IQR statistics ordered"}
	for season, metrics := range pre.IQR {
		for metric, models := range metrics {
			for model, entries := range models {
				for key, e := range entries {
					where := fmt.Sprintf("%s/%s/%s/%s", season, metric, model, key)
					if len(e.Scores) > 0 && e.Count != len(e.Scores) {
						p.errorf("%s: count %d, %d scores", where, e.Count, len(e.Scores))
					}
					if e.Count == 0 {
						continue
					}
					ordered := []float64{e.Min, e.Q05, e.Q25, e.Median, e.Q75, e.Q95, e.Max}
					if !slices.IsSorted(ordered) {
						p.errorf("%s: quantiles out of order %v", where, ordered)
					}
					if e.Mean < e.Min || e.Mean > e.Max {
						p.errorf("%s: mean %.3f outside [%.3f, %.3f]", where, e.Mean, e.Min, e.Max)
					}
				}
			}
		}
	}
	return p
}

func validateLocations(core domain.CoreBundle) *phase {
	p := &phase{name: "Ground truth states have locations"}
	known := make(map[string]bool, len(core.Auxiliary.Locations))
	for _, loc := range core.Auxiliary.Locations {
		if known[loc.StateNum] {
			p.errorf("duplicate location %s", loc.StateNum)
		}
		known[loc.StateNum] = true
	}
	if len(known) == 0 {
		p.errorf("no locations (auxiliary block %s)", core.AuxiliarySource)
		return p
	}

	missing := map[string]bool{}
	for _, states := range core.GroundTruth {
		for state := range states {
			if !known[state] {
				missing[state] = true
			}
		}
	}
	for _, state := range slices.Sorted(maps.Keys(missing)) {
		p.errorf("state %s has ground truth but no location", state)
	}
	for state := range known {
		if _, ok := core.Auxiliary.Thresholds[state]; !ok {
			p.errorf("state %s has no thresholds", state)
		}
	}
	return p
}

func validateSeasons(core domain.CoreBundle) *phase {
	p := &phase{name: "Seasons ordered and disjoint"}
	seasons := core.Metadata.FullRangeSeasons
	seen := map[string]bool{}
	for i, s := range seasons {
		if seen[s.SeasonID] {
			p.errorf("duplicate season id %s", s.SeasonID)
		}
		seen[s.SeasonID] = true
		if s.EndDate.Before(s.StartDate) {
			p.errorf("season %s ends before it starts", s.SeasonID)
		}
		if i > 0 && !seasons[i-1].EndDate.Before(s.StartDate) {
			p.errorf("season %s overlaps or precedes %s", s.SeasonID, seasons[i-1].SeasonID)
		}
	}
	for season := range core.GroundTruth {
		if !seen[season] {
			p.errorf("ground truth for unknown season %s", season)
		}
	}
	return p
}

func validateHorizons(core domain.CoreBundle) *phase {
	p := &phase{name: "Prediction horizons match dates"}
	for season, sf := range core.Predictions {
		for model, mf := range sf.Models {
			for part, byRef := range mf.Partitions {
				for _, byState := range byRef {
					for state, points := range byState {
						for _, pt := range points {
							where := fmt.Sprintf("%s/%s/%s/%s %s", season, model, part, state, domain.DateKey(pt.ReferenceDate))
							if !domain.AddWeeks(pt.ReferenceDate, pt.Horizon).Equal(pt.TargetEndDate) {
								p.errorf("%s: horizon %d but target %s", where, pt.Horizon, domain.DateKey(pt.TargetEndDate))
							}
							if !slices.IsSorted([]float64{pt.Q05, pt.Q25, pt.Median, pt.Q75, pt.Q95}) {
								p.errorf("%s: quantiles out of order at horizon %d", where, pt.Horizon)
							}
						}
					}
				}
			}
		}
	}
	return p
}
