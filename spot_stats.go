package main

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpotStats summarises the retained spots
type SpotStats struct {
	Count         int            `json:"count"`
	UniqueCalls   int            `json:"unique_calls"`
	MeanSNR       float64        `json:"mean_snr"`
	StdDevSNR     float64        `json:"stddev_snr"`
	MedianSNR     float64        `json:"median_snr"`
	MeanDistance  float64        `json:"mean_distance_km"`
	MaxDistance   float64        `json:"max_distance_km"`
	ByBand        map[string]int `json:"by_band"`
	ByCountry     map[string]int `json:"by_country"`
	NewCountries  int            `json:"new_countries"`
	NewStates     int            `json:"new_states"`
	EnrichedCalls int            `json:"enriched_calls"`
}

// ComputeSpotStats works on views so the cross-check flags are counted too
func ComputeSpotStats(views []SpotView) SpotStats {
	s := SpotStats{
		Count:     len(views),
		ByBand:    make(map[string]int),
		ByCountry: make(map[string]int),
	}
	if len(views) == 0 {
		return s
	}

	snrs := make([]float64, 0, len(views))
	var distances []float64
	calls := make(map[string]bool)
	newCountries := make(map[string]bool)
	newStates := make(map[string]bool)
	for _, v := range views {
		snrs = append(snrs, float64(v.SNR))
		if v.Distance != nil {
			distances = append(distances, *v.Distance)
		}
		s.ByBand[v.Band]++
		if v.Call.Country != "" {
			s.ByCountry[v.Call.Country]++
		}
		if !calls[v.Call.Callsign] && v.Call.Enriched() {
			s.EnrichedCalls++
		}
		calls[v.Call.Callsign] = true
		if v.NewCountry {
			newCountries[v.Call.Country] = true
		}
		if v.NewState {
			newStates[v.Call.State()] = true
		}
	}
	s.UniqueCalls = len(calls)
	s.NewCountries = len(newCountries)
	s.NewStates = len(newStates)

	s.MeanSNR, s.StdDevSNR = stat.MeanStdDev(snrs, nil)
	if len(snrs) < 2 {
		s.StdDevSNR = 0
	}
	sort.Float64s(snrs)
	s.MedianSNR = stat.Quantile(0.5, stat.Empirical, snrs, nil)

	if len(distances) > 0 {
		s.MeanDistance = stat.Mean(distances, nil)
		sort.Float64s(distances)
		s.MaxDistance = distances[len(distances)-1]
	}
	return s
}

// QuerySpotStats computes stats over the current spots through the event loop
func (m *Model) QuerySpotStats(ctx context.Context) (SpotStats, error) {
	return query(ctx, m, func(m *Model) SpotStats { return ComputeSpotStats(m.SpotViews(0)) })
}
