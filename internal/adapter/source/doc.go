// Package source implements pipeline.Source for the two places the static
// JSON assets live: a local data directory and an HTTP file host.
package source
