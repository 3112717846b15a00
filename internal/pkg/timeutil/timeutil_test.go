package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlexible(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name  string
		input interface{}
	}{
		{"iso zulu", "2024-01-02T03:04:05Z"},
		{"iso offset", "2024-01-02T05:04:05+02:00"},
		{"iso naive", "2024-01-02T03:04:05"},
		{"unix float", float64(want.Unix())},
		{"unix string", "1704164645"},
		{"json number", json.Number("1704164645")},
		{"time value", want.In(time.FixedZone("x", 3600))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFlexible(tc.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseFlexibleRejectsGarbage(t *testing.T) {
	_, err := ParseFlexible("yesterday")
	require.Error(t, err)
	_, err = ParseFlexible(nil)
	require.Error(t, err)
	_, err = ParseFlexible([]string{"x"})
	require.Error(t, err)
}

func TestLocalDateCrossesMidnight(t *testing.T) {
	utc := time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", LocalDate(utc, "America/Los_Angeles"))
	assert.Equal(t, "2024-03-10", LocalDate(utc, "UTC"))
	assert.Equal(t, "2024-03-10", LocalDate(utc, "Not/AZone"))
}

func TestNormalizeTimezone(t *testing.T) {
	assert.Equal(t, "UTC", NormalizeTimezone(""))
	assert.Equal(t, "UTC", NormalizeTimezone("Mars/Olympus"))
	assert.Equal(t, "Europe/Berlin", NormalizeTimezone(" Europe/Berlin "))
}
