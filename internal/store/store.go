// Package store holds the normalized data of every domain together with its
// load state. A Store is constructed once per process and passed to loaders
// and selectors; only a domain's own loader publishes into its slice.
package store

import (
	"fmt"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

type slice interface {
	Clear()
	IsLoaded() bool
	selectAny() (any, bool)
}

// Store aggregates one slice per domain and the load state tracker.
type Store struct {
	Core          *Slice[domain.CoreBundle]
	Historical    *Slice[domain.HistoricalSnapshots]
	Precalculated *Slice[domain.PrecalculatedEvaluations]
	RawScores     *Slice[domain.RawScoreSet]
	Topology      *Slice[domain.Topology]

	Tracker *Tracker

	slices map[domain.DataDomain]slice
}

// New creates a store with every slice empty.
func New(clock clockwork.Clock, metrics *observability.Metrics) *Store {
	s := &Store{
		Core:          NewSlice(domain.EmptyCoreBundle),
		Historical:    NewSlice(domain.EmptyHistoricalSnapshots),
		Precalculated: NewSlice(domain.EmptyPrecalculatedEvaluations),
		RawScores:     NewSlice(domain.EmptyRawScoreSet),
		Topology:      NewSlice(func() domain.Topology { return domain.Topology{} }),
		Tracker:       NewTracker(clock, metrics),
	}
	s.slices = map[domain.DataDomain]slice{
		domain.CoreData:                s.Core,
		domain.HistoricalGroundTruth:   s.Historical,
		domain.EvaluationPrecalculated: s.Precalculated,
		domain.EvaluationRawScores:     s.RawScores,
		domain.MapTopology:             s.Topology,
	}
	return s
}

// Reset clears every slice and returns every domain to Empty. Like Clear it
// refuses while any domain is loading, leaving the store untouched.
func (s *Store) Reset() error {
	return s.Tracker.resetAll(func(d domain.DataDomain) {
		if sl, ok := s.slices[d]; ok {
			sl.Clear()
		}
	})
}

// Clear empties d's slice and moves it to Empty. A domain that is loading
// cannot be cleared.
func (s *Store) Clear(d domain.DataDomain) error {
	sl, err := s.slice(d)
	if err != nil {
		return err
	}
	if s.Tracker.IsLoading(d) {
		return fmt.Errorf("%s: %w: load in flight", d, domain.ErrInvalidTransition)
	}
	sl.Clear()
	return s.Tracker.Reset(d)
}

// IsLoaded reports whether d's slice holds published data.
func (s *Store) IsLoaded(d domain.DataDomain) bool {
	sl, err := s.slice(d)
	if err != nil {
		return false
	}
	return sl.IsLoaded()
}

// Status returns the load status of d.
func (s *Store) Status(d domain.DataDomain) domain.DomainStatus {
	st := s.Tracker.Status(d)
	st.IsLoaded = s.IsLoaded(d)
	return st
}

// Snapshot returns the status of every domain.
func (s *Store) Snapshot() []domain.DomainStatus {
	all := domain.AllDomains()
	out := make([]domain.DomainStatus, 0, len(all))
	for _, d := range all {
		out = append(out, s.Status(d))
	}
	return out
}

// Data returns d's slice contents without their static type.
func (s *Store) Data(d domain.DataDomain) (any, bool, error) {
	sl, err := s.slice(d)
	if err != nil {
		return nil, false, err
	}
	data, loaded := sl.selectAny()
	return data, loaded, nil
}

// Subscribe returns a channel of state changes and its cancel function.
func (s *Store) Subscribe(buffer int) (<-chan domain.StateChange, func()) {
	return s.Tracker.Subscribe(buffer)
}

// UpdateLoadingState flags d as loading, or settles it to Loaded or Failed
// according to whether its slice was published.
func (s *Store) UpdateLoadingState(d domain.DataDomain, isLoading bool) error {
	if _, err := s.slice(d); err != nil {
		return err
	}
	if isLoading {
		return s.Tracker.Begin(d, "")
	}
	if s.IsLoaded(d) {
		return s.Tracker.Succeed(d)
	}
	return s.Tracker.Fail(d, "load settled without data")
}

func (s *Store) slice(d domain.DataDomain) (slice, error) {
	sl, ok := s.slices[d]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, d)
	}
	return sl, nil
}

