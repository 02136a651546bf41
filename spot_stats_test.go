package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestComputeSpotStats_Empty(t *testing.T) {
	s := ComputeSpotStats(nil)
	assert.Zero(t, s.Count)
	assert.Zero(t, s.MeanSNR)
	assert.NotNil(t, s.ByBand)
}

func TestComputeSpotStats(t *testing.T) {
	enriched := Call{Callsign: "W1AW", Country: "United States", Info: &CallInfo{State: "CT"}}
	views := []SpotView{
		{Spot: Spot{Call: Call{Callsign: "JA1ABC", Country: "Japan"}, SNR: -20, Band: "20m", Distance: floatPtr(10000)}, NewCountry: true},
		{Spot: Spot{Call: Call{Callsign: "JA1ABC", Country: "Japan"}, SNR: -10, Band: "20m"}, NewCountry: true},
		{Spot: Spot{Call: enriched, SNR: 0, Band: "40m", Distance: floatPtr(2000)}, NewState: true},
		{Spot: Spot{Call: Call{Callsign: "QQ1QQ"}, SNR: 10, Band: "other"}},
	}

	s := ComputeSpotStats(views)
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 3, s.UniqueCalls)
	assert.InDelta(t, -5.0, s.MeanSNR, 1e-9)
	assert.Greater(t, s.StdDevSNR, 0.0)
	assert.InDelta(t, -10.0, s.MedianSNR, 1e-9)
	assert.InDelta(t, 6000.0, s.MeanDistance, 1e-9)
	assert.InDelta(t, 10000.0, s.MaxDistance, 1e-9)
	assert.Equal(t, map[string]int{"20m": 2, "40m": 1, "other": 1}, s.ByBand)
	assert.Equal(t, map[string]int{"Japan": 2, "United States": 1}, s.ByCountry)
	assert.Equal(t, 1, s.NewCountries)
	assert.Equal(t, 1, s.NewStates)
	assert.Equal(t, 1, s.EnrichedCalls)
}

func TestComputeSpotStats_SingleSpotHasNoDeviation(t *testing.T) {
	s := ComputeSpotStats([]SpotView{{Spot: Spot{Call: Call{Callsign: "K1ABC"}, SNR: -7}}})
	assert.Equal(t, -7.0, s.MeanSNR)
	assert.Zero(t, s.StdDevSNR)
	assert.Equal(t, -7.0, s.MedianSNR)
}

func TestModel_QuerySpotStats(t *testing.T) {
	m := NewModel(DefaultConfig(), ModelDeps{})
	m.AddSpot(testSpot("K1ABC", -3))
	m.AddSpot(testSpot("K1ABD", -5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	stats, err := m.QuerySpotStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, -4.0, stats.MeanSNR, 1e-9)
	assert.Equal(t, map[string]int{"20m": 2}, stats.ByBand)
}
