package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/observability"
)

const sourceFile = "file"

// FileSource reads assets from a local data directory.
type FileSource struct {
	root    string
	fsys    fs.FS
	metrics *observability.Metrics
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string, metrics *observability.Metrics) *FileSource {
	return &FileSource{root: dir, fsys: os.DirFS(dir), metrics: metrics}
}

// Root returns the data directory.
func (s *FileSource) Root() string { return s.root }

// Fetch reads dir/path. Paths may not escape the data directory.
func (s *FileSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := fs.ReadFile(s.fsys, strings.TrimPrefix(path, "/"))
	s.metrics.SourceFetchDuration.WithLabelValues(sourceFile).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SourceRequests.WithLabelValues(sourceFile, "error").Inc()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s.metrics.SourceRequests.WithLabelValues(sourceFile, "success").Inc()
	s.metrics.SourceBytes.WithLabelValues(sourceFile).Add(float64(len(data)))
	return data, nil
}
