package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"golang.org/x/sync/errgroup"
)

// resetter is implemented by loaders that keep state outside the store.
type resetter interface {
	Reset()
}

// Set routes load and clear requests to the loader of each domain.
type Set struct {
	store   *store.Store
	loaders map[domain.DataDomain]Loader
	logger  *slog.Logger
}

// NewSet groups loaders over st.
func NewSet(st *store.Store, logger *slog.Logger, loaders ...Loader) *Set {
	s := &Set{store: st, loaders: make(map[domain.DataDomain]Loader, len(loaders)), logger: logger}
	for _, l := range loaders {
		s.loaders[l.Domain()] = l
	}
	return s
}

// Store returns the store the loaders publish into.
func (s *Set) Store() *store.Store { return s.store }

// Load loads d and waits for the attempt to settle.
func (s *Set) Load(ctx context.Context, d domain.DataDomain) error {
	l, err := s.loader(d)
	if err != nil {
		return err
	}
	return l.Load(ctx)
}

// Clear empties d so a later Load fetches it again.
func (s *Set) Clear(d domain.DataDomain) error {
	l, err := s.loader(d)
	if err != nil {
		return err
	}
	if err := s.store.Clear(d); err != nil {
		return err
	}
	if r, ok := l.(resetter); ok {
		r.Reset()
	}
	return nil
}

// Reload clears d and loads it again.
func (s *Set) Reload(ctx context.Context, d domain.DataDomain) error {
	if err := s.Clear(d); err != nil {
		return err
	}
	return s.Load(ctx, d)
}

// Reset empties every domain and drops the state loaders keep outside the
// store. It fails while any domain is loading.
func (s *Set) Reset() error {
	if err := s.store.Reset(); err != nil {
		return err
	}
	for _, l := range s.loaders {
		if r, ok := l.(resetter); ok {
			r.Reset()
		}
	}
	return nil
}

// LoadAll loads the given domains concurrently and returns every failure.
func (s *Set) LoadAll(ctx context.Context, domains ...domain.DataDomain) error {
	errs := make([]error, len(domains))
	var g errgroup.Group
	for i, d := range domains {
		g.Go(func() error {
			errs[i] = s.Load(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Preload loads the given domains concurrently, retrying each failed domain
// with exponential backoff until it loads or ctx is done.
func (s *Set) Preload(ctx context.Context, domains ...domain.DataDomain) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range domains {
		g.Go(func() error {
			return s.loadWithRetry(ctx, d)
		})
	}
	return g.Wait()
}

func (s *Set) loadWithRetry(ctx context.Context, d domain.DataDomain) error {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		err := s.Load(ctx, d)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrUnknownDomain) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("preload failed, retrying", "domain", string(d), "error", err, "backoff", backoff)
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// CheckReadiness returns nil once the core bundle is loaded.
func (s *Set) CheckReadiness(_ context.Context) error {
	if !s.store.IsLoaded(domain.CoreData) {
		st := s.store.Status(domain.CoreData)
		if st.Error != "" {
			return fmt.Errorf("core data not loaded: %s", st.Error)
		}
		return fmt.Errorf("core data not loaded: %s", st.State)
	}
	return nil
}

func (s *Set) loader(d domain.DataDomain) (Loader, error) {
	l, ok := s.loaders[d]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, d)
	}
	return l, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
