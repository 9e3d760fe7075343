//go:build smoke

package source

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit a real data host and require DATA_BASE_URL.
// Run with: go test -tags=smoke ./internal/adapter/source/ -v -count=1

func smokeSource(t *testing.T) *HTTPSource {
	t.Helper()
	baseURL := os.Getenv("DATA_BASE_URL")
	if baseURL == "" {
		t.Fatal("DATA_BASE_URL must be set to run smoke tests")
	}
	return NewHTTPSource(baseURL, 30*time.Second, 4, observability.NewMetricsForTesting(), testLogger())
}

func TestSmoke_CoreBundleNormalizes(t *testing.T) {
	s := smokeSource(t)

	data, err := s.Fetch(context.Background(), "app_data_core.json")
	require.NoError(t, err)

	core, err := domain.NormalizeCoreData(data)
	require.NoError(t, err)
	assert.NotEmpty(t, core.Metadata.FullRangeSeasons)
	assert.NotEmpty(t, core.Metadata.ModelNames)
}

func TestSmoke_TopologyNormalizes(t *testing.T) {
	s := smokeSource(t)

	data, err := s.Fetch(context.Background(), "states-10m.json")
	require.NoError(t, err)

	topo, err := domain.NormalizeTopology(data)
	require.NoError(t, err)
	assert.Contains(t, topo.Objects, "states")
}
