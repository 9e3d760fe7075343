// Package domain models the forecast dashboard data domains and the pure
// transformations applied to them before they reach the store.
//
// # Data Source
//
// Every domain is a pre-computed static JSON asset produced by the upstream
// data processing job and served from a CDN or a local data directory:
//
//	coreData                 app_data_core.json
//	historicalGroundTruth    historical-ground-truth-data/historical-ground-truth-data.json
//	evaluationPrecalculated  app_data_evaluations.json ("precalculated" block)
//	evaluationRawScores      app_data_evaluations.json ("rawScores" block)
//	mapTopology              states-10m.json (TopoJSON)
//
// # Date Conventions
//
// Dates arrive as "YYYY-MM-DD" strings, RFC 3339 timestamps, or naive
// "YYYY-MM-DDTHH:MM:SS" timestamps written by pandas. All of them are
// normalized to 12:00 UTC on their UTC calendar date (see
// [NormalizeToUTCMidDay]) so that series sourced from different files join on
// identical values. Map keys that hold a date are always the canonical
// "YYYY-MM-DD" form returned by [DateKey].
//
// # Location Keys
//
// States are keyed by their two-digit FIPS code ("01", "06", ...) with "US"
// for the national aggregate. The code is called stateNum throughout.
//
// # Missing Values
//
//	Ground truth admissions of -1 mark a week with no reported value. The
//	placeholder is preserved so charts can render gaps.
//	Prediction quantiles that are absent decode as 0.
//
// # Payload Variants
//
// The core bundle carries its auxiliary block under either "auxiliaryData" or
// "auxiliary-data". The evaluation bundle may omit the "precalculated" wrapper.
// Each accepted variant is decoded into an explicit tagged shape and mapped to
// one canonical type by the Normalize functions in this package; loaders never
// branch on raw keys.
//
// # Statistics
//
// Quantiles use linear interpolation between closest ranks (the R-7 method).
// See [CalculateQuantile] and [CalculateBoxplotStats].
package domain
