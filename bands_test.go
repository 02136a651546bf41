package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyToBand(t *testing.T) {
	tests := []struct {
		freq float64
		band string
	}{
		{136_000, "2200m"},
		{1_840_000, "160m"},
		{3_573_000, "80m"},
		{7_074_000, "40m"},
		{10_136_000, "30m"},
		{14_074_000, "20m"},
		{14_350_000, "20m"},
		{21_074_000, "15m"},
		{28_074_000, "10m"},
		{50_313_000, "6m"},
		{144_174_000, "2m"},
		{9_000_000, "other"},
		{0, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.band, FrequencyToBand(tt.freq), "%.0f Hz", tt.freq)
	}
}

func TestLocatorToLatLon(t *testing.T) {
	lat, lon, err := LocatorToLatLon("FN31")
	require.NoError(t, err)
	assert.InDelta(t, 41.5, lat, 1e-9)
	assert.InDelta(t, -73.0, lon, 1e-9)

	lat, lon, err = LocatorToLatLon("fn31pr")
	require.NoError(t, err)
	assert.InDelta(t, 41.729, lat, 0.01)
	assert.InDelta(t, -72.708, lon, 0.01)

	_, _, err = LocatorToLatLon("FN31PR12")
	assert.NoError(t, err)

	for _, bad := range []string{"", "FN3", "SN31", "FNA1", "FN31ZZ", "FN31PRAB"} {
		_, _, err := LocatorToLatLon(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocatorDistanceKm(t *testing.T) {
	d, err := LocatorDistanceKm("FN31", "IO91")
	require.NoError(t, err)
	assert.InDelta(t, 5393, d, 5)

	d, err = LocatorDistanceKm("JO62", "JO62")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = LocatorDistanceKm("FN31", "??")
	assert.Error(t, err)
}
