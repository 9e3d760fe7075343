package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type trackerEntry struct {
	state     domain.LoadState
	err       string
	attemptID string
	updatedAt time.Time
}

// Tracker holds the load state machine of every domain and fans state
// changes out to subscribers. Subscribers that fall behind lose events; the
// tracker never blocks on them.
type Tracker struct {
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu      sync.RWMutex
	entries map[domain.DataDomain]*trackerEntry
	subs    map[int]chan domain.StateChange
	nextSub int
}

// NewTracker creates a tracker with every domain Empty.
func NewTracker(clock clockwork.Clock, metrics *observability.Metrics) *Tracker {
	t := &Tracker{
		clock:   clock,
		metrics: metrics,
		entries: make(map[domain.DataDomain]*trackerEntry),
		subs:    make(map[int]chan domain.StateChange),
	}
	now := clock.Now()
	for _, d := range domain.AllDomains() {
		t.entries[d] = &trackerEntry{state: domain.StateEmpty, updatedAt: now}
		t.setGauge(d, domain.StateEmpty)
	}
	return t
}

// Begin moves d to Loading for the given attempt. Only Empty and Failed
// domains may begin loading.
func (t *Tracker) Begin(d domain.DataDomain, attemptID string) error {
	return t.transition(d, domain.StateLoading, "", attemptID)
}

// Succeed moves d from Loading to Loaded.
func (t *Tracker) Succeed(d domain.DataDomain) error {
	return t.transition(d, domain.StateLoaded, "", "")
}

// Fail moves d from Loading to Failed and records msg.
func (t *Tracker) Fail(d domain.DataDomain, msg string) error {
	return t.transition(d, domain.StateFailed, msg, "")
}

// Reset moves a Loaded or Failed domain back to Empty. Resetting an Empty
// domain is a no-op.
func (t *Tracker) Reset(d domain.DataDomain) error {
	if t.State(d) == domain.StateEmpty {
		return nil
	}
	return t.transition(d, domain.StateEmpty, "", "")
}

// State returns the current state of d.
func (t *Tracker) State(d domain.DataDomain) domain.LoadState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[d]; ok {
		return e.state
	}
	return domain.StateEmpty
}

// IsLoading reports whether d has a load in flight.
func (t *Tracker) IsLoading(d domain.DataDomain) bool {
	return t.State(d) == domain.StateLoading
}

// Status returns the tracked status of d. IsLoaded is left to the store.
func (t *Tracker) Status(d domain.DataDomain) domain.DomainStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[d]
	if !ok {
		return domain.DomainStatus{Domain: d, State: domain.StateEmpty}
	}
	return domain.DomainStatus{
		Domain:    d,
		State:     e.state,
		IsLoading: e.state == domain.StateLoading,
		Error:     e.err,
		AttemptID: e.attemptID,
		UpdatedAt: e.updatedAt,
	}
}

// Subscribe returns a channel of state changes and a function that
// unsubscribes and closes it.
func (t *Tracker) Subscribe(buffer int) (<-chan domain.StateChange, func()) {
	ch := make(chan domain.StateChange, buffer)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// resetAll moves every domain to Empty, calling clear for each domain while
// the lock is held so no load can begin in between. It changes nothing and
// fails if any domain is loading.
func (t *Tracker) resetAll(clear func(domain.DataDomain)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for d, e := range t.entries {
		if e.state == domain.StateLoading {
			return fmt.Errorf("%s: %w: load in flight", d, domain.ErrInvalidTransition)
		}
	}
	now := t.clock.Now()
	for d, e := range t.entries {
		clear(d)
		if e.state == domain.StateEmpty {
			continue
		}
		change := t.newChange(d, e.state, domain.StateEmpty, "", "", now)
		*e = trackerEntry{state: domain.StateEmpty, updatedAt: now}
		t.setGauge(d, domain.StateEmpty)
		t.broadcast(change)
	}
	return nil
}

func (t *Tracker) transition(d domain.DataDomain, to domain.LoadState, errMsg, attemptID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[d]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownDomain, d)
	}
	from := e.state
	if _, err := from.Transition(to); err != nil {
		return fmt.Errorf("%s: %w", d, err)
	}

	now := t.clock.Now()
	if attemptID == "" {
		attemptID = e.attemptID
	}
	if to == domain.StateEmpty {
		attemptID = ""
	}
	*e = trackerEntry{state: to, err: errMsg, attemptID: attemptID, updatedAt: now}

	t.setGauge(d, to)
	t.broadcast(t.newChange(d, from, to, errMsg, attemptID, now))
	return nil
}

func (t *Tracker) newChange(d domain.DataDomain, from, to domain.LoadState, errMsg, attemptID string, at time.Time) domain.StateChange {
	return domain.StateChange{
		ID:        uuid.NewString(),
		Domain:    d,
		From:      from,
		To:        to,
		Error:     errMsg,
		AttemptID: attemptID,
		At:        at,
	}
}

// broadcast must be called with t.mu held.
func (t *Tracker) broadcast(change domain.StateChange) {
	for _, ch := range t.subs {
		select {
		case ch <- change:
		default:
			t.metrics.EventsDropped.Inc()
		}
	}
}

func (t *Tracker) setGauge(d domain.DataDomain, current domain.LoadState) {
	for _, s := range []domain.LoadState{domain.StateEmpty, domain.StateLoading, domain.StateLoaded, domain.StateFailed} {
		v := 0.0
		if s == current {
			v = 1
		}
		t.metrics.DomainState.WithLabelValues(string(d), s.String()).Set(v)
	}
}
