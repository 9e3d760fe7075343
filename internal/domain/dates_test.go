package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToUTCMidDay(t *testing.T) {
	expected := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)

	t.Run("same UTC day different times", func(t *testing.T) {
		early := NormalizeToUTCMidDay(time.Date(2024, 1, 6, 0, 0, 1, 0, time.UTC))
		late := NormalizeToUTCMidDay(time.Date(2024, 1, 6, 23, 59, 59, 999, time.UTC))
		assert.Equal(t, expected, early)
		assert.Equal(t, early, late)
	})

	t.Run("different UTC days", func(t *testing.T) {
		a := NormalizeToUTCMidDay(time.Date(2024, 1, 6, 23, 0, 0, 0, time.UTC))
		b := NormalizeToUTCMidDay(time.Date(2024, 1, 7, 1, 0, 0, 0, time.UTC))
		assert.NotEqual(t, a, b)
	})

	t.Run("uses the UTC calendar date", func(t *testing.T) {
		eastern := time.FixedZone("EST", -5*60*60)
		local := time.Date(2024, 1, 5, 21, 30, 0, 0, eastern)
		assert.Equal(t, expected, NormalizeToUTCMidDay(local))
	})
}

func TestIsUTCDateEqual(t *testing.T) {
	pacific := time.FixedZone("PST", -8*60*60)

	assert.True(t, IsUTCDateEqual(
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC),
	))
	assert.True(t, IsUTCDateEqual(
		time.Date(2024, 3, 1, 20, 0, 0, 0, pacific),
		time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	))
	assert.False(t, IsUTCDateEqual(
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	))
}

func TestParseDate(t *testing.T) {
	expected := time.Date(2023, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"date only", "2023-10-14"},
		{"naive timestamp", "2023-10-14T00:00:00"},
		{"space separated", "2023-10-14 18:45:00"},
		{"RFC 3339 UTC", "2023-10-14T05:00:00Z"},
		{"RFC 3339 with millis", "2023-10-14T00:00:00.000Z"},
		{"RFC 3339 offset", "2023-10-13T22:00:00-04:00"},
		{"surrounding whitespace", "  2023-10-14 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2023-13-01", "14/10/2023"} {
		_, err := ParseDate(input)
		assert.ErrorIs(t, err, ErrParse, "input %q", input)
	}
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "2024-02-29", DateKey(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)))

	key, err := CanonicalDateKey("2024-02-29T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", key)
}

func TestAddWeeks(t *testing.T) {
	start := time.Date(2024, 12, 21, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 11, 12, 0, 0, 0, time.UTC), AddWeeks(start, 3))
	assert.Equal(t, time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC), AddWeeks(start, -1))
}
