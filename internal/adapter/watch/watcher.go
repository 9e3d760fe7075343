// Package watch reloads domains when their files in the data directory change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/debounce"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// Reloader clears and reloads a domain.
type Reloader interface {
	Reload(ctx context.Context, d domain.DataDomain) error
}

// Watcher maps file changes under a data directory onto domain reloads.
// Bursts of events for one domain, such as an editor's write-then-rename,
// collapse into a single reload.
type Watcher struct {
	root     string
	files    map[string][]domain.DataDomain
	reloader Reloader
	clock    clockwork.Clock
	interval time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	debouncers map[domain.DataDomain]*debounce.Debouncer
}

// New creates a watcher for the given domain paths, relative to root.
func New(root string, paths map[domain.DataDomain]string, reloader Reloader, clock clockwork.Clock, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Watcher {
	files := make(map[string][]domain.DataDomain, len(paths))
	for d, p := range paths {
		abs := filepath.Clean(filepath.Join(root, filepath.FromSlash(p)))
		files[abs] = append(files[abs], d)
	}
	for _, ds := range files {
		slices.Sort(ds)
	}
	return &Watcher{
		root:       root,
		files:      files,
		reloader:   reloader,
		clock:      clock,
		interval:   interval,
		metrics:    metrics,
		logger:     logger,
		debouncers: make(map[domain.DataDomain]*debounce.Debouncer),
	}
}

// Dirs returns the directories that hold watched files.
func (w *Watcher) Dirs() []string {
	var dirs []string
	for f := range w.files {
		dirs = append(dirs, filepath.Dir(f))
	}
	slices.Sort(dirs)
	return slices.Compact(dirs)
}

// Run watches until ctx is done. Directories are watched instead of files so
// atomic replacements are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	var watched []string
	for _, dir := range w.Dirs() {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("directory not watched", "dir", dir, "error", err)
			continue
		}
		watched = append(watched, dir)
	}
	if len(watched) == 0 {
		return fmt.Errorf("no watchable directories under %s", w.root)
	}
	w.logger.Info("data directory watcher started", "root", w.root, "dirs", watched)
	defer w.stop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	domains, ok := w.files[filepath.Clean(ev.Name)]
	if !ok {
		return
	}
	for _, d := range domains {
		w.debouncer(ctx, d).Trigger()
	}
}

func (w *Watcher) debouncer(ctx context.Context, d domain.DataDomain) *debounce.Debouncer {
	w.mu.Lock()
	defer w.mu.Unlock()
	if db, ok := w.debouncers[d]; ok {
		return db
	}
	db := debounce.New(w.clock, w.interval, func() { w.reload(ctx, d) })
	w.debouncers[d] = db
	return db
}

// reload clears and reloads d. A domain that is mid-load cannot be cleared,
// so the change is retried once the debounce interval passes again.
func (w *Watcher) reload(ctx context.Context, d domain.DataDomain) {
	if ctx.Err() != nil {
		return
	}
	w.metrics.WatchReloads.WithLabelValues(string(d)).Inc()
	w.logger.Info("data file changed, reloading", "domain", string(d))
	err := w.reloader.Reload(ctx, d)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition):
		w.logger.Info("domain busy, reload deferred", "domain", string(d), "retry_in", w.interval)
		w.debouncer(ctx, d).Trigger()
	default:
		w.logger.Error("reload failed", "domain", string(d), "error", err)
	}
}

// stop runs reloads still pending when the event stream ends while ctx is
// live, then stops every debouncer.
func (w *Watcher) stop(ctx context.Context) {
	w.mu.Lock()
	debouncers := make([]*debounce.Debouncer, 0, len(w.debouncers))
	for _, db := range w.debouncers {
		debouncers = append(debouncers, db)
	}
	w.mu.Unlock()

	for _, db := range debouncers {
		if ctx.Err() == nil {
			db.Flush()
		}
		db.Stop()
	}
}
