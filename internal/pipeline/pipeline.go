package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"github.com/google/uuid"
)

// Source reads a static asset by path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Transform normalizes a raw payload into a domain's canonical shape.
type Transform[T any] func(data []byte) (T, error)

// Loader loads one domain into the store.
type Loader interface {
	Domain() domain.DataDomain
	Load(ctx context.Context) error
}

// Pipeline loads one domain: fetch, normalize, publish. Load is idempotent and
// safe for concurrent use; at most one attempt per domain is in flight.
type Pipeline[T any] struct {
	domain    domain.DataDomain
	path      string
	source    Source
	transform Transform[T]
	slice     *store.Slice[T]
	tracker   *store.Tracker
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	pending *attempt
}

type attempt struct {
	id   string
	done chan struct{}
	err  error
}

// New creates a Pipeline publishing into slice.
func New[T any](d domain.DataDomain, path string, src Source, transform Transform[T], slice *store.Slice[T], tracker *store.Tracker, logger *slog.Logger, metrics *observability.Metrics) *Pipeline[T] {
	return &Pipeline[T]{
		domain:    d,
		path:      path,
		source:    src,
		transform: transform,
		slice:     slice,
		tracker:   tracker,
		logger:    logger.With("domain", string(d)),
		metrics:   metrics,
	}
}

// Domain returns the domain this pipeline loads.
func (p *Pipeline[T]) Domain() domain.DataDomain { return p.domain }

// Load publishes the domain unless it is already loaded. A call that arrives
// while an attempt is in flight starts no work and waits for that attempt.
// The attempt itself is not cancelled by ctx; ctx only bounds the wait.
// A failed attempt clears the slice, marks the domain Failed and returns the
// error; the domain stays retryable.
func (p *Pipeline[T]) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.slice.IsLoaded() {
		p.mu.Unlock()
		p.metrics.LoadAttempts.WithLabelValues(string(p.domain), "skipped").Inc()
		return nil
	}
	if a := p.pending; a != nil {
		p.mu.Unlock()
		return wait(ctx, a)
	}

	a := &attempt{id: uuid.NewString(), done: make(chan struct{})}
	if err := p.tracker.Begin(p.domain, a.id); err != nil {
		p.mu.Unlock()
		return err
	}
	p.pending = a
	p.mu.Unlock()

	go p.run(context.WithoutCancel(ctx), a)
	return wait(ctx, a)
}

func (p *Pipeline[T]) run(ctx context.Context, a *attempt) {
	start := time.Now()
	logger := p.logger.With("attempt_id", a.id)
	logger.Info("domain load started", "path", p.path)

	err := p.fetchAndPublish(ctx)
	p.metrics.LoadDuration.WithLabelValues(string(p.domain)).Observe(time.Since(start).Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.slice.Clear()
		if terr := p.tracker.Fail(p.domain, err.Error()); terr != nil {
			logger.Warn("record load failure", "error", terr)
		}
		p.metrics.LoadAttempts.WithLabelValues(string(p.domain), "failure").Inc()
		logger.Error("domain load failed", "error", err, "duration", time.Since(start))
	} else if terr := p.tracker.Succeed(p.domain); terr != nil {
		// The domain left Loading underneath the attempt; drop what it published.
		p.slice.Clear()
		err = terr
		p.metrics.LoadAttempts.WithLabelValues(string(p.domain), "failure").Inc()
		logger.Warn("domain load discarded", "error", terr)
	} else {
		p.metrics.LoadAttempts.WithLabelValues(string(p.domain), "success").Inc()
		logger.Info("domain load complete", "duration", time.Since(start))
	}

	a.err = err
	p.pending = nil
	close(a.done)
}

// fetchAndPublish runs one attempt. A panic while normalizing is reported as
// a parse failure so the domain never stays Loading.
func (p *Pipeline[T]) fetchAndPublish(ctx context.Context) (err error) {
	data, err := p.source.Fetch(ctx, p.path)
	if err != nil {
		return domain.NewFetchError(p.domain, p.path, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = domain.NewParseError(p.domain, p.path, fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := p.transform(data)
	if err != nil {
		return domain.NewParseError(p.domain, p.path, err)
	}
	p.slice.Set(v)
	return nil
}

func wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
