package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadState_Transitions(t *testing.T) {
	tests := []struct {
		from  LoadState
		to    LoadState
		legal bool
	}{
		{StateEmpty, StateLoading, true},
		{StateLoading, StateLoaded, true},
		{StateLoading, StateFailed, true},
		{StateFailed, StateLoading, true},
		{StateLoaded, StateEmpty, true},
		{StateFailed, StateEmpty, true},
		{StateEmpty, StateLoaded, false},
		{StateEmpty, StateFailed, false},
		{StateLoading, StateLoading, false},
		{StateLoading, StateEmpty, false},
		{StateLoaded, StateLoading, false},
		{StateLoaded, StateFailed, false},
		{StateFailed, StateLoaded, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.legal {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestLoadState_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]LoadState{"s": StateFailed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"failed"}`, string(data))

	var decoded map[string]LoadState
	require.NoError(t, json.Unmarshal([]byte(`{"s":"loading"}`), &decoded))
	assert.Equal(t, StateLoading, decoded["s"])

	assert.Error(t, json.Unmarshal([]byte(`{"s":"stuck"}`), &decoded))
}

func TestParseDataDomain(t *testing.T) {
	for _, d := range AllDomains() {
		got, err := ParseDataDomain(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	_, err := ParseDataDomain("locations")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestLoadError(t *testing.T) {
	cause := assert.AnError
	err := NewFetchError(CoreData, "app_data_core.json", cause)

	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "coreData")
	assert.Contains(t, err.Error(), "app_data_core.json")

	var le *LoadError
	require.ErrorAs(t, NewCacheError(MapTopology, err), &le)
	assert.Equal(t, MapTopology, le.Domain)
	assert.ErrorIs(t, le, ErrCache)
	assert.ErrorIs(t, le, ErrFetch)
}
